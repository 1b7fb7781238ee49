package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected(t *testing.T, bus *Bus) *Transport {
	t.Helper()
	tr := NewTransport(bus)
	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func receive(t *testing.T, ch <-chan dds.Delivery) dds.Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return dds.Delivery{}
	}
}

func TestTransport_PublishBeforeConnect(t *testing.T) {
	tr := NewTransport(NewBus(0))

	err := tr.Publish(context.Background(), "c", []byte("x"), dds.DefaultQoS())
	assert.True(t, errors.Is(err, dds.ErrNotConnected))

	_, err = tr.Subscribe(context.Background(), "c", dds.DefaultQoS())
	assert.True(t, errors.Is(err, dds.ErrNotConnected))
}

func TestTransport_ConnectEmitsConnected(t *testing.T) {
	tr := connected(t, NewBus(0))

	ev := <-tr.Events()
	assert.Equal(t, dds.Connected, ev.Kind)
	assert.Equal(t, "memory", tr.Name())
}

func TestTransport_PublishSubscribe(t *testing.T) {
	bus := NewBus(0)
	pub := connected(t, bus)
	sub := connected(t, bus)

	ch, err := sub.Subscribe(context.Background(), "tms.0.heartbeat_topic", dds.DefaultQoS())
	require.NoError(t, err)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, pub.Publish(context.Background(), "tms.0.heartbeat_topic", []byte(p), dds.DefaultQoS()))
	}

	assert.Equal(t, "a", string(receive(t, ch).Payload))
	assert.Equal(t, "b", string(receive(t, ch).Payload))
	assert.Equal(t, "c", string(receive(t, ch).Payload))
}

func TestTransport_ChannelsAreIsolated(t *testing.T) {
	bus := NewBus(0)
	tr := connected(t, bus)

	ch, err := tr.Subscribe(context.Background(), "one", dds.DefaultQoS())
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), "two", []byte("x"), dds.DefaultQoS()))

	select {
	case d := <-ch:
		t.Fatalf("unexpected delivery on %s", d.Channel)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_PayloadIsCopied(t *testing.T) {
	bus := NewBus(0)
	tr := connected(t, bus)
	ch, err := tr.Subscribe(context.Background(), "c", dds.DefaultQoS())
	require.NoError(t, err)

	payload := []byte("abc")
	require.NoError(t, tr.Publish(context.Background(), "c", payload, dds.DefaultQoS()))
	payload[0] = 'z'

	assert.Equal(t, "abc", string(receive(t, ch).Payload))
}

func TestBus_FullReliableSubscription(t *testing.T) {
	bus := NewBus(1)
	tr := connected(t, bus)
	_, err := tr.Subscribe(context.Background(), "c", dds.DefaultQoS())
	require.NoError(t, err)

	require.NoError(t, tr.Publish(context.Background(), "c", []byte("1"), dds.DefaultQoS()))
	err = tr.Publish(context.Background(), "c", []byte("2"), dds.DefaultQoS())
	assert.True(t, errors.Is(err, dds.ErrWouldBlock))

	// Best effort drops instead.
	assert.NoError(t, tr.Publish(context.Background(), "c", []byte("3"), dds.QoS{Reliability: dds.BestEffort}))
}

func TestBus_Drop(t *testing.T) {
	bus := NewBus(0)
	tr := connected(t, bus)
	ch, err := tr.Subscribe(context.Background(), "c", dds.DefaultQoS())
	require.NoError(t, err)

	bus.Drop("c")

	_, ok := <-ch
	assert.False(t, ok)
}

func TestTransport_CloseDetachesSubscriptions(t *testing.T) {
	bus := NewBus(0)
	pub := connected(t, bus)
	sub := NewTransport(bus)
	require.NoError(t, sub.Connect(context.Background()))

	_, err := sub.Subscribe(context.Background(), "c", dds.DefaultQoS())
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	bus.mu.RLock()
	assert.Empty(t, bus.subs["c"])
	bus.mu.RUnlock()

	assert.NoError(t, pub.Publish(context.Background(), "c", []byte("x"), dds.DefaultQoS()))
	assert.True(t, errors.Is(sub.Publish(context.Background(), "c", nil, dds.DefaultQoS()), dds.ErrClosed))
	assert.True(t, errors.Is(sub.Connect(context.Background()), dds.ErrClosed))
}

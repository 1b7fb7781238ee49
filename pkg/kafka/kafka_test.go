package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Brokers: []string{"localhost:9092"}}.Validate())
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Brokers: []string{" "}}.Validate())
}

func TestNewTransport_Defaults(t *testing.T) {
	tr := NewTransport(Config{Brokers: []string{"localhost:9092"}}, zerolog.Nop())

	assert.Equal(t, "tms-heartbeat", tr.cfg.ClientID)
	assert.Equal(t, 1024, tr.cfg.MaxBufferedRecords)
	assert.Equal(t, "kafka", tr.Name())
	assert.NoError(t, tr.Close())
}

func TestTransport_PublishBeforeConnect(t *testing.T) {
	tr := NewTransport(Config{Brokers: []string{"localhost:9092"}}, zerolog.Nop())

	err := tr.Publish(context.Background(), "c", []byte("x"), dds.DefaultQoS())
	assert.True(t, errors.Is(err, dds.ErrNotConnected))

	require.NoError(t, tr.Close())
	err = tr.Publish(context.Background(), "c", []byte("x"), dds.DefaultQoS())
	assert.True(t, errors.Is(err, dds.ErrClosed))
}

func TestHooks_EmitStatusEvents(t *testing.T) {
	sink := dds.NewEventSink(4)
	h := hooks{events: sink, logger: zerolog.Nop()}
	meta := kgo.BrokerMetadata{Host: "broker", Port: 9092}

	h.OnBrokerConnect(meta, time.Millisecond, nil, nil)
	h.OnBrokerConnect(meta, time.Millisecond, nil, errors.New("refused"))
	h.OnBrokerDisconnect(meta, nil)

	ev := <-sink.Events()
	assert.Equal(t, dds.Connected, ev.Kind)
	assert.Equal(t, "broker:9092", ev.Detail)

	ev = <-sink.Events()
	assert.Equal(t, dds.ConnectionLost, ev.Kind)
	assert.EqualError(t, ev.Err, "refused")

	ev = <-sink.Events()
	assert.Equal(t, dds.ConnectionLost, ev.Kind)
	assert.NoError(t, ev.Err)
}

func TestTransport_ConcurrentClose(t *testing.T) {
	tr := NewTransport(Config{Brokers: []string{"localhost:9092"}}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.Close())
		}()
	}
	wg.Wait()

	err := tr.Publish(context.Background(), "c", []byte("x"), dds.DefaultQoS())
	assert.True(t, errors.Is(err, dds.ErrClosed))
}

func runRedpanda(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	// The advertised address must be reachable from the host, so the port is
	// bound one to one.
	req := testcontainers.ContainerRequest{
		Image:        "docker.redpanda.com/redpandadata/redpanda:v24.1.8",
		ExposedPorts: []string{"19092:19092/tcp"},
		Cmd: []string{"redpanda", "start", "--overprovisioned", "--smp", "1", "--memory", "512M", "--reserve-memory", "0M",
			"--check=false", "--node-id", "0", "--kafka-addr", "0.0.0.0:19092", "--advertise-kafka-addr", "127.0.0.1:19092"},
		WaitingFor: wait.ForLog("Successfully started Redpanda").WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("redpanda container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	return "127.0.0.1:19092"
}

func TestKafkaContainerIntegration(t *testing.T) {
	broker := runRedpanda(t)
	cfg := Config{Brokers: []string{broker}}

	pub := NewTransport(cfg, zerolog.Nop())
	sub := NewTransport(cfg, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, pub.Connect(ctx))
	require.NoError(t, sub.Connect(ctx))
	defer pub.Close()
	defer sub.Close()

	channel := "tms.0.heartbeat_topic"
	deliveries, err := sub.Subscribe(ctx, channel, dds.DefaultQoS())
	require.NoError(t, err)

	// The consumer starts at the end of the topic, so keep publishing until
	// it has caught on.
	qos := dds.QoS{Reliability: dds.Reliable, MaxBlockingTime: 5 * time.Second}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case d := <-deliveries:
			assert.Equal(t, channel, d.Channel)
			assert.Contains(t, string(d.Payload), "heartbeat-")
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, qos.MaxBlockingTime)
			_ = pub.Publish(pctx, channel, []byte(fmt.Sprintf("heartbeat-%d", i)), qos)
			pcancel()
		case <-ctx.Done():
			t.Fatal("timed out waiting for kafka delivery")
		}
	}
}

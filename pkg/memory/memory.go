// Package memory is an in-process transport. Every Transport attached to the
// same Bus sees the others' publications, in publish order.
package memory

import (
	"context"
	"sync"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
)

// DefaultBufferSize is the per-subscription queue length.
const DefaultBufferSize = 256

// Bus connects transports living in the same process.
type Bus struct {
	bufferSize int

	mu   sync.RWMutex
	subs map[string][]*subscription
}

type subscription struct {
	owner *Transport
	ch    chan dds.Delivery
}

// NewBus creates a bus whose subscriptions queue up to bufferSize payloads.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		bufferSize: bufferSize,
		subs:       make(map[string][]*subscription),
	}
}

// publish delivers to every subscription of channel. With a zero blocking
// bound a full subscription fails the write with ErrWouldBlock; the payload
// still reaches every subscription that had room.
func (b *Bus) publish(ctx context.Context, channel string, payload []byte, qos dds.QoS) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var blocked bool
	for _, sub := range b.subs[channel] {
		d := dds.Delivery{Channel: channel, Payload: append([]byte(nil), payload...)}
		select {
		case sub.ch <- d:
			continue
		default:
		}

		if qos.MaxBlockingTime == 0 {
			if qos.IsReliable() {
				blocked = true
			}
			continue
		}

		select {
		case sub.ch <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if blocked {
		return dds.ErrWouldBlock
	}
	return nil
}

func (b *Bus) subscribe(owner *Transport, channel string) *subscription {
	sub := &subscription{owner: owner, ch: make(chan dds.Delivery, b.bufferSize)}

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	return sub
}

// remove detaches every subscription owned by owner without closing it.
func (b *Bus) remove(owner *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subs := range b.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.owner != owner {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, channel)
		} else {
			b.subs[channel] = kept
		}
	}
}

// Drop closes every subscription on channel, as a broker revoking them would.
func (b *Bus) Drop(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[channel] {
		close(sub.ch)
	}
	delete(b.subs, channel)
}

// Transport attaches one participant to a Bus.
type Transport struct {
	bus    *Bus
	events *dds.EventSink

	mu        sync.Mutex
	connected bool
	closed    bool
}

// NewTransport creates a transport on bus.
func NewTransport(bus *Bus) *Transport {
	return &Transport{bus: bus, events: dds.NewEventSink(0)}
}

func (t *Transport) Name() string { return "memory" }

func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return dds.ErrClosed
	}
	t.connected = true
	t.events.Emit(dds.Connected, "memory bus", nil)
	return nil
}

func (t *Transport) ready() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		return dds.ErrClosed
	case !t.connected:
		return dds.ErrNotConnected
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, channel string, payload []byte, qos dds.QoS) error {
	if err := t.ready(); err != nil {
		return err
	}
	return t.bus.publish(ctx, channel, payload, qos)
}

func (t *Transport) Subscribe(ctx context.Context, channel string, _ dds.QoS) (<-chan dds.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.ready(); err != nil {
		return nil, err
	}
	return t.bus.subscribe(t, channel).ch, nil
}

func (t *Transport) Events() <-chan dds.StatusEvent {
	return t.events.Events()
}

// Emit injects a status event, as a network transport would on a
// connection change.
func (t *Transport) Emit(kind dds.StatusKind, detail string, err error) {
	t.events.Emit(kind, detail, err)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	t.bus.remove(t)
	return nil
}

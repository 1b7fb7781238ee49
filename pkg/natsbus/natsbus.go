// Package natsbus is a dds.Transport over core NATS.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config holds NATS connection configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for identification.
	Name string

	// Token for token-based auth.
	Token string

	// User and Password for basic auth.
	User     string
	Password string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited
	MaxReconnects int

	// ConnectTimeout for initial connection.
	ConnectTimeout time.Duration

	// BufferSize for subscription channels.
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
		BufferSize:     256,
	}
}

// Transport implements dds.Transport using NATS.
type Transport struct {
	cfg    Config
	logger zerolog.Logger
	events *dds.EventSink

	mu        sync.Mutex
	conn      *nats.Conn
	subs      []*nats.Subscription
	closed    chan struct{}
	closeOnce sync.Once
}

// NewTransport creates an unconnected NATS transport.
func NewTransport(cfg Config, logger zerolog.Logger) *Transport {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	return &Transport{
		cfg:    cfg,
		logger: logger.With().Str("transport", "nats").Str("url", cfg.URL).Logger(),
		events: dds.NewEventSink(0),
		closed: make(chan struct{}),
	}
}

func (t *Transport) Name() string { return "nats" }

// options constructs NATS connection options from config, wiring the
// connection callbacks into status events.
func (t *Transport) options() []nats.Option {
	opts := []nats.Option{
		nats.ReconnectWait(t.cfg.ReconnectWait),
		nats.MaxReconnects(t.cfg.MaxReconnects),
		nats.Timeout(t.cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.logger.Warn().Err(err).Msg("NATS disconnected")
			t.events.Emit(dds.ConnectionLost, t.cfg.URL, err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Info().Str("server", nc.ConnectedUrl()).Msg("NATS reconnected")
			t.events.Emit(dds.Connected, nc.ConnectedUrl(), nil)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			if errors.Is(err, nats.ErrSlowConsumer) {
				t.events.Emit(dds.SampleLost, subject, err)
				return
			}
			t.logger.Error().Err(err).Str("channel", subject).Msg("NATS async error")
			t.events.Emit(dds.ConnectionLost, subject, err)
		}),
	}

	if t.cfg.Name != "" {
		opts = append(opts, nats.Name(t.cfg.Name))
	}
	if t.cfg.Token != "" {
		opts = append(opts, nats.Token(t.cfg.Token))
	}
	if t.cfg.User != "" {
		opts = append(opts, nats.UserInfo(t.cfg.User, t.cfg.Password))
	}
	return opts
}

func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := nats.Connect(t.cfg.URL, t.options()...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.events.Emit(dds.Connected, conn.ConnectedUrl(), nil)
	t.logger.Info().Str("server", conn.ConnectedUrl()).Msg("Connected to NATS")
	return nil
}

func (t *Transport) connection() (*nats.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.conn == nil:
		return nil, dds.ErrNotConnected
	case t.conn.IsClosed():
		return nil, dds.ErrClosed
	}
	return t.conn, nil
}

// Publish never queues into the reconnect buffer: a disconnected client
// fails the write immediately.
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte, qos dds.QoS) error {
	conn, err := t.connection()
	if err != nil {
		return err
	}
	if !conn.IsConnected() {
		return dds.ErrNotConnected
	}

	if err := conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}

	if qos.IsReliable() && qos.MaxBlockingTime > 0 {
		if err := conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
	}
	return nil
}

func (t *Transport) Subscribe(_ context.Context, channel string, _ dds.QoS) (<-chan dds.Delivery, error) {
	conn, err := t.connection()
	if err != nil {
		return nil, err
	}

	out := make(chan dds.Delivery, t.cfg.BufferSize)
	sub, err := conn.Subscribe(channel, func(m *nats.Msg) {
		select {
		case out <- dds.Delivery{Channel: m.Subject, Payload: m.Data}:
		case <-t.closed:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	t.logger.Info().Str("channel", channel).Msg("Subscribed to NATS subject")
	return out, nil
}

func (t *Transport) Events() <-chan dds.StatusEvent {
	return t.events.Events()
}

// markClosed reports whether this call closed the transport.
func (t *Transport) markClosed() bool {
	first := false
	t.closeOnce.Do(func() {
		close(t.closed)
		first = true
	})
	return first
}

func (t *Transport) Close() error {
	if !t.markClosed() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for _, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	t.subs = nil
	if t.conn != nil {
		t.conn.Close()
	}
	return errors.Join(errs...)
}

// Package rabbitmq is a dds.Transport over AMQP 0-9-1. Every dds channel is
// a fanout exchange; each subscription owns an exclusive, auto-deleted queue.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Config holds the broker connection settings.
type Config struct {
	URL            string
	Username       string
	Password       string
	ExchangePrefix string
	Heartbeat      time.Duration
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("rabbitmq url is required")
	}
	if !strings.HasPrefix(c.URL, "amqp://") && !strings.HasPrefix(c.URL, "amqps://") {
		return fmt.Errorf("rabbitmq url must use the amqp or amqps scheme")
	}
	return nil
}

// Transport implements dds.Transport over RabbitMQ.
type Transport struct {
	cfg    Config
	logger zerolog.Logger
	events *dds.EventSink

	mu        sync.Mutex
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	declared  map[string]struct{}
	consumers []*amqp.Channel

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewTransport creates an unconnected RabbitMQ transport.
func NewTransport(cfg Config, logger zerolog.Logger) *Transport {
	return &Transport{
		cfg:      cfg,
		logger:   logger.With().Str("transport", "rabbitmq").Logger(),
		events:   dds.NewEventSink(0),
		declared: make(map[string]struct{}),
		closed:   make(chan struct{}),
	}
}

func (t *Transport) Name() string { return "rabbitmq" }

func (t *Transport) exchangeName(channel string) string {
	return t.cfg.ExchangePrefix + channel
}

func (t *Transport) Connect(ctx context.Context) error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dialCfg := amqp.Config{Heartbeat: t.cfg.Heartbeat, Properties: amqp.NewConnectionProperties()}
	dialCfg.Properties.SetClientConnectionName("tms-heartbeat")
	if t.cfg.Username != "" {
		dialCfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: t.cfg.Username, Password: t.cfg.Password}}
	}

	conn, err := amqp.DialConfig(t.cfg.URL, dialCfg)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := pubCh.Confirm(false); err != nil {
		pubCh.Close()
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	t.mu.Lock()
	t.conn, t.pubCh = conn, pubCh
	t.mu.Unlock()

	t.wg.Add(1)
	go t.watchConnection(conn.NotifyClose(make(chan *amqp.Error, 1)), conn.NotifyBlocked(make(chan amqp.Blocking, 4)))

	t.events.Emit(dds.Connected, conn.RemoteAddr().String(), nil)
	t.logger.Info().Str("server", conn.RemoteAddr().String()).Msg("Connected to RabbitMQ")
	return nil
}

// watchConnection turns connection notifications into status events.
func (t *Transport) watchConnection(closes <-chan *amqp.Error, blocks <-chan amqp.Blocking) {
	defer t.wg.Done()
	for {
		select {
		case <-t.closed:
			return
		case amqpErr, ok := <-closes:
			if !ok {
				return
			}
			if amqpErr != nil {
				t.logger.Error().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("RabbitMQ connection closed")
				t.events.Emit(dds.ConnectionLost, amqpErr.Reason, amqpErr)
			}
		case b, ok := <-blocks:
			if !ok {
				blocks = nil
				continue
			}
			if b.Active {
				t.logger.Warn().Str("reason", b.Reason).Msg("RabbitMQ flow blocked")
				t.events.Emit(dds.FlowBlocked, b.Reason, nil)
			} else {
				t.events.Emit(dds.FlowUnblocked, "", nil)
			}
		}
	}
}

// declare makes sure the fanout exchange for channel exists.
func (t *Transport) declare(ch *amqp.Channel, channel string) error {
	name := t.exchangeName(channel)
	if _, ok := t.declared[name]; ok {
		return nil
	}
	if err := ch.ExchangeDeclare(name, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	t.declared[name] = struct{}{}
	return nil
}

// Publish sends on the confirm-mode channel. Reliable writes are
// persistent; with a blocking bound the broker ack is awaited, otherwise a
// negative ack surfaces later as a PublicationFailed event.
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte, qos dds.QoS) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.conn.IsClosed() {
		return dds.ErrNotConnected
	}
	if err := t.declare(t.pubCh, channel); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Transient,
		Body:         payload,
	}
	if !qos.IsReliable() {
		return t.pubCh.PublishWithContext(ctx, t.exchangeName(channel), "", false, false, msg)
	}

	msg.DeliveryMode = amqp.Persistent
	confirm, err := t.pubCh.PublishWithDeferredConfirmWithContext(ctx, t.exchangeName(channel), "", false, false, msg)
	if err != nil {
		return err
	}
	if confirm == nil {
		return nil
	}

	if qos.MaxBlockingTime == 0 {
		t.wg.Add(1)
		go t.watchConfirm(confirm, channel)
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", dds.ErrWouldBlock, err)
	}
	if !acked {
		return fmt.Errorf("publication to %s was nacked", channel)
	}
	return nil
}

func (t *Transport) watchConfirm(confirm *amqp.DeferredConfirmation, channel string) {
	defer t.wg.Done()
	select {
	case <-confirm.Done():
		if !confirm.Acked() {
			t.logger.Error().Str("channel", channel).Msg("Publication was nacked")
			t.events.Emit(dds.PublicationFailed, channel, errors.New("broker nacked publication"))
		}
	case <-t.closed:
	}
}

// Subscribe binds an exclusive queue to the channel's exchange. Reliable
// subscriptions ack each delivery only after it has been handed over.
func (t *Transport) Subscribe(_ context.Context, channel string, qos dds.QoS) (<-chan dds.Delivery, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.conn.IsClosed() {
		return nil, dds.ErrNotConnected
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	cleanup := func(err error) (<-chan dds.Delivery, error) {
		ch.Close()
		return nil, err
	}

	if err := t.declare(ch, channel); err != nil {
		return cleanup(err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return cleanup(fmt.Errorf("declare queue: %w", err))
	}
	if err := ch.QueueBind(q.Name, "", t.exchangeName(channel), false, nil); err != nil {
		return cleanup(fmt.Errorf("bind queue %s: %w", q.Name, err))
	}

	manualAck := qos.IsReliable()
	deliveries, err := ch.Consume(q.Name, "", !manualAck, true, false, false, nil)
	if err != nil {
		return cleanup(fmt.Errorf("consume queue %s: %w", q.Name, err))
	}
	t.consumers = append(t.consumers, ch)

	out := make(chan dds.Delivery)
	t.wg.Add(1)
	go t.forward(deliveries, out, channel, manualAck)

	t.logger.Info().Str("channel", channel).Str("queue", q.Name).Msg("Subscribed to RabbitMQ exchange")
	return out, nil
}

// forward closes out when the broker ends the consumer.
func (t *Transport) forward(deliveries <-chan amqp.Delivery, out chan<- dds.Delivery, channel string, manualAck bool) {
	defer t.wg.Done()
	for {
		select {
		case <-t.closed:
			return
		case d, ok := <-deliveries:
			if !ok {
				select {
				case <-t.closed:
				default:
					t.logger.Error().Str("channel", channel).Msg("RabbitMQ consumer ended")
					close(out)
				}
				return
			}
			select {
			case out <- dds.Delivery{Channel: channel, Payload: d.Body}:
				if manualAck {
					if err := d.Ack(false); err != nil {
						t.logger.Warn().Err(err).Msg("Failed to ack delivery")
					}
				}
			case <-t.closed:
				return
			}
		}
	}
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
	var errs []error
	for _, ch := range t.consumers {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	t.consumers = nil
	if t.pubCh != nil {
		if err := t.pubCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if t.conn != nil {
		if err := t.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	t.mu.Unlock()

	t.wg.Wait()
	return errors.Join(errs...)
}

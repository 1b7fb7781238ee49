// Package kafka is a dds.Transport over Kafka. Every dds channel maps to one
// topic; records are produced to partition 0 so consumers see publish order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds the cluster connection settings.
type Config struct {
	Brokers            []string
	ClientID           string
	MaxBufferedRecords int
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("kafka broker address must not be empty")
		}
	}
	return nil
}

// hooks reports broker connectivity as status events.
type hooks struct {
	events *dds.EventSink
	logger zerolog.Logger
}

var (
	_ kgo.HookBrokerConnect    = hooks{}
	_ kgo.HookBrokerDisconnect = hooks{}
)

func brokerAddr(meta kgo.BrokerMetadata) string {
	return net.JoinHostPort(meta.Host, fmt.Sprint(meta.Port))
}

func (h hooks) OnBrokerConnect(meta kgo.BrokerMetadata, _ time.Duration, _ net.Conn, err error) {
	if err != nil {
		h.logger.Warn().Err(err).Str("broker", brokerAddr(meta)).Msg("Kafka broker connection failed")
		h.events.Emit(dds.ConnectionLost, brokerAddr(meta), err)
		return
	}
	h.events.Emit(dds.Connected, brokerAddr(meta), nil)
}

func (h hooks) OnBrokerDisconnect(meta kgo.BrokerMetadata, _ net.Conn) {
	h.events.Emit(dds.ConnectionLost, brokerAddr(meta), nil)
}

// Transport implements dds.Transport using franz-go.
type Transport struct {
	cfg    Config
	logger zerolog.Logger
	events *dds.EventSink
	hooks  hooks

	mu        sync.Mutex
	producer  *kgo.Client
	consumers []*kgo.Client

	closed    chan struct{}
	closeOnce sync.Once
	pollCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewTransport creates an unconnected Kafka transport.
func NewTransport(cfg Config, logger zerolog.Logger) *Transport {
	if cfg.ClientID == "" {
		cfg.ClientID = "tms-heartbeat"
	}
	if cfg.MaxBufferedRecords <= 0 {
		cfg.MaxBufferedRecords = 1024
	}
	logger = logger.With().Str("transport", "kafka").Logger()
	events := dds.NewEventSink(0)
	pollCtx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:     cfg,
		logger:  logger,
		events:  events,
		hooks:   hooks{events: events, logger: logger},
		closed:  make(chan struct{}),
		pollCtx: pollCtx,
		cancel:  cancel,
	}
}

func (t *Transport) Name() string { return "kafka" }

func (t *Transport) baseOpts() []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(t.cfg.Brokers...),
		kgo.ClientID(t.cfg.ClientID),
		kgo.WithHooks(t.hooks),
	}
}

// Connect creates the producer and checks the cluster is reachable.
func (t *Transport) Connect(ctx context.Context) error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}

	opts := append(t.baseOpts(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
		kgo.MaxBufferedRecords(t.cfg.MaxBufferedRecords),
	)
	producer, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("new kafka client: %w", err)
	}
	if err := producer.Ping(ctx); err != nil {
		producer.Close()
		return fmt.Errorf("ping kafka: %w", err)
	}

	t.mu.Lock()
	t.producer = producer
	t.mu.Unlock()

	t.logger.Info().Strs("brokers", t.cfg.Brokers).Msg("Connected to Kafka")
	return nil
}

// Publish uses TryProduce for non-blocking writes, so a full producer
// buffer fails fast with ErrWouldBlock instead of waiting.
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte, qos dds.QoS) error {
	t.mu.Lock()
	producer := t.producer
	t.mu.Unlock()

	select {
	case <-t.closed:
		return dds.ErrClosed
	default:
	}
	if producer == nil {
		return dds.ErrNotConnected
	}

	rec := &kgo.Record{Topic: channel, Partition: 0, Value: payload}

	if qos.MaxBlockingTime > 0 {
		if err := producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
			return fmt.Errorf("kafka produce: %w", err)
		}
		return nil
	}

	// The promise can run before TryProduce returns; such results are
	// reported to the caller, later ones as status events.
	var (
		promiseMu sync.Mutex
		returned  bool
		syncErr   error
	)
	producer.TryProduce(ctx, rec, func(r *kgo.Record, err error) {
		promiseMu.Lock()
		if !returned {
			syncErr = err
			promiseMu.Unlock()
			return
		}
		promiseMu.Unlock()
		if err != nil {
			t.logger.Error().Err(err).Str("channel", r.Topic).Msg("Kafka produce failed")
			t.events.Emit(dds.PublicationFailed, r.Topic, err)
		}
	})
	promiseMu.Lock()
	returned = true
	promiseMu.Unlock()

	if errors.Is(syncErr, kgo.ErrMaxBuffered) {
		return dds.ErrWouldBlock
	}
	return syncErr
}

// Subscribe starts a group-less consumer positioned at the end of the
// topic; there is no catch-up for late joiners.
func (t *Transport) Subscribe(_ context.Context, channel string, _ dds.QoS) (<-chan dds.Delivery, error) {
	select {
	case <-t.closed:
		return nil, dds.ErrClosed
	default:
	}

	opts := append(t.baseOpts(),
		kgo.ConsumeTopics(channel),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.AllowAutoTopicCreation(),
	)
	consumer, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka consumer: %w", err)
	}

	t.mu.Lock()
	t.consumers = append(t.consumers, consumer)
	t.mu.Unlock()

	out := make(chan dds.Delivery)
	t.wg.Add(1)
	go t.poll(consumer, channel, out)

	t.logger.Info().Str("channel", channel).Msg("Consuming Kafka topic")
	return out, nil
}

func (t *Transport) poll(consumer *kgo.Client, channel string, out chan<- dds.Delivery) {
	defer t.wg.Done()
	for {
		fetches := consumer.PollFetches(t.pollCtx)
		if fetches.IsClientClosed() || t.pollCtx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			t.logger.Warn().Err(err).Str("channel", topic).Int32("partition", partition).Msg("Kafka fetch error")
			t.events.Emit(dds.ConnectionLost, topic, err)
		})

		stopped := false
		fetches.EachRecord(func(r *kgo.Record) {
			if stopped {
				return
			}
			select {
			case out <- dds.Delivery{Channel: channel, Payload: r.Value}:
			case <-t.closed:
				stopped = true
			}
		})
		if stopped {
			return
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
	t.cancel()

	t.mu.Lock()
	consumers := t.consumers
	producer := t.producer
	t.consumers = nil
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	t.wg.Wait()

	if producer != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := producer.Flush(flushCtx); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to flush Kafka producer")
		}
		producer.Close()
	}
	return nil
}

package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/benmeehan/tms-heartbeat/pkg/file"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTClient defines the subset of the paho client used by the transport.
type MQTTClient interface {
	Connect() mqtt.Token
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Config holds the broker connection settings.
type Config struct {
	Broker         string
	ClientID       string
	CACertificate  string // optional, enables TLS
	Username       string
	Password       string
	ConnectTimeout time.Duration
	BufferSize     int
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// MqttService is a dds.Transport backed by an MQTT broker.
type MqttService struct {
	cfg        Config
	client     MQTTClient
	fileClient file.FileOperations
	logger     zerolog.Logger
	events     *dds.EventSink

	// newClient is replaced in tests.
	newClient func(opts *mqtt.ClientOptions) MQTTClient

	mu        sync.Mutex
	subs      map[string]subscription
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(cfg Config, fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &MqttService{
		cfg:        cfg,
		fileClient: fileClient,
		logger:     logger.With().Str("transport", "mqtt").Str("broker", cfg.Broker).Logger(),
		events:     dds.NewEventSink(0),
		newClient:  func(opts *mqtt.ClientOptions) MQTTClient { return mqtt.NewClient(opts) },
		subs:       make(map[string]subscription),
		closed:     make(chan struct{}),
	}
}

func (s *MqttService) Name() string { return "mqtt" }

// clientOptions builds the paho options, including TLS when a CA
// certificate is configured.
func (s *MqttService) clientOptions() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	if s.cfg.CACertificate != "" {
		caCert, err := s.fileClient.ReadFileRaw(s.cfg.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: caCertPool, MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("MQTT connection lost")
		s.events.Emit(dds.ConnectionLost, s.cfg.Broker, err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.logger.Info().Msg("MQTT reconnecting")
		s.events.Emit(dds.Reconnecting, s.cfg.Broker, nil)
	})

	return opts, nil
}

// onConnect runs on every (re)connection. The session is clean, so
// subscriptions are restored here.
func (s *MqttService) onConnect(_ mqtt.Client) {
	s.events.Emit(dds.Connected, s.cfg.Broker, nil)

	s.mu.Lock()
	subs := make(map[string]subscription, len(s.subs))
	for topic, sub := range s.subs {
		subs[topic] = sub
	}
	client := s.client
	s.mu.Unlock()

	for topic, sub := range subs {
		topic := topic
		token := client.Subscribe(topic, sub.qos, sub.handler)
		go s.watchToken(token, func(err error) {
			s.logger.Error().Err(err).Str("channel", topic).Msg("Failed to restore subscription")
			s.events.Emit(dds.ConnectionLost, "resubscribe "+topic, err)
		})
	}
}

// Connect connects to the MQTT broker.
func (s *MqttService) Connect(ctx context.Context) error {
	opts, err := s.clientOptions()
	if err != nil {
		return err
	}

	client := s.newClient(opts)
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.Broker, err)
	}

	s.logger.Info().Str("client_id", s.cfg.ClientID).Msg("Connected to MQTT broker")
	return nil
}

// mqttQoS maps reliability onto MQTT delivery levels.
func mqttQoS(qos dds.QoS) byte {
	if qos.IsReliable() {
		return 1
	}
	return 0
}

// Publish sends a message to the specified topic. Paho queues publishes
// while reconnecting, so a closed connection fails fast here instead.
func (s *MqttService) Publish(ctx context.Context, channel string, payload []byte, qos dds.QoS) error {
	select {
	case <-s.closed:
		return dds.ErrClosed
	default:
	}
	if s.client == nil || !s.client.IsConnectionOpen() {
		return dds.ErrNotConnected
	}

	token := s.client.Publish(channel, mqttQoS(qos), false, payload)

	if qos.MaxBlockingTime == 0 {
		select {
		case <-token.Done():
			return token.Error()
		default:
		}
		go s.watchToken(token, s.publicationFailed(channel))
		return nil
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		go s.watchToken(token, s.publicationFailed(channel))
		return fmt.Errorf("%w: %v", dds.ErrWouldBlock, ctx.Err())
	}
}

func (s *MqttService) publicationFailed(channel string) func(error) {
	return func(err error) {
		s.logger.Error().Err(err).Str("channel", channel).Msg("Publication was not acknowledged")
		s.events.Emit(dds.PublicationFailed, channel, err)
	}
}

// watchToken reports a token failure once it completes.
func (s *MqttService) watchToken(token mqtt.Token, onError func(error)) {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			onError(err)
		}
	case <-s.closed:
	}
}

// Subscribe subscribes to the specified topic and streams its payloads.
func (s *MqttService) Subscribe(ctx context.Context, channel string, qos dds.QoS) (<-chan dds.Delivery, error) {
	if s.client == nil {
		return nil, dds.ErrNotConnected
	}

	out := make(chan dds.Delivery, s.cfg.BufferSize)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case out <- dds.Delivery{Channel: msg.Topic(), Payload: msg.Payload()}:
		case <-s.closed:
		}
	}

	token := s.client.Subscribe(channel, mqttQoS(qos), handler)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	s.mu.Lock()
	s.subs[channel] = subscription{qos: mqttQoS(qos), handler: handler}
	s.mu.Unlock()

	s.logger.Info().Str("channel", channel).Msg("Subscribed to MQTT topic")
	return out, nil
}

func (s *MqttService) Events() <-chan dds.StatusEvent {
	return s.events.Events()
}

// markClosed reports whether this call closed the transport.
func (s *MqttService) markClosed() bool {
	first := false
	s.closeOnce.Do(func() {
		close(s.closed)
		first = true
	})
	return first
}

// Close unsubscribes and disconnects the MQTT client.
func (s *MqttService) Close() error {
	if !s.markClosed() {
		return nil
	}
	if s.client == nil {
		return nil
	}

	s.mu.Lock()
	topics := make([]string, 0, len(s.subs))
	for topic := range s.subs {
		topics = append(topics, topic)
	}
	s.subs = make(map[string]subscription)
	s.mu.Unlock()

	if len(topics) > 0 && s.client.IsConnectionOpen() {
		token := s.client.Unsubscribe(topics...)
		if !token.WaitTimeout(time.Second) {
			s.logger.Warn().Strs("channels", topics).Msg("Timed out unsubscribing")
		} else if err := token.Error(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to unsubscribe")
		}
	}

	s.client.Disconnect(250)
	s.logger.Info().Msg("Disconnected from MQTT broker")
	return nil
}

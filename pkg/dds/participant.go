package dds

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ParticipantConfig identifies the domain a participant joins.
type ParticipantConfig struct {
	DomainID      int
	ChannelPrefix string
	// StatusBuffer is the capacity of every writer/reader status channel.
	StatusBuffer int
}

// Participant owns the transport and every entity created from it.
type Participant struct {
	domainID     int
	prefix       string
	statusBuffer int
	transport    Transport
	logger       zerolog.Logger

	mu       sync.Mutex
	closed   bool
	writerCh []chan StatusEvent
	readerCh []chan StatusEvent

	done chan struct{}
	wg   sync.WaitGroup
}

// NewParticipant connects the transport and joins the domain.
func NewParticipant(ctx context.Context, cfg ParticipantConfig, transport Transport, logger zerolog.Logger) (*Participant, error) {
	if transport == nil {
		return nil, &InitError{Step: "DomainParticipant", Err: fmt.Errorf("no transport configured")}
	}
	if cfg.DomainID < 0 {
		return nil, &InitError{Step: "DomainParticipant", Err: fmt.Errorf("invalid domain id %d", cfg.DomainID)}
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "dds"
	}
	if cfg.StatusBuffer <= 0 {
		cfg.StatusBuffer = 64
	}

	if err := transport.Connect(ctx); err != nil {
		return nil, &InitError{Step: "DomainParticipant", Err: fmt.Errorf("%s: %w", transport.Name(), err)}
	}

	p := &Participant{
		domainID:     cfg.DomainID,
		prefix:       cfg.ChannelPrefix,
		statusBuffer: cfg.StatusBuffer,
		transport:    transport,
		logger:       logger.With().Str("transport", transport.Name()).Int("domain_id", cfg.DomainID).Logger(),
		done:         make(chan struct{}),
	}

	p.wg.Add(1)
	go p.dispatchEvents()

	p.logger.Info().Msg("DomainParticipant joined domain")
	return p, nil
}

// DomainID returns the domain this participant joined.
func (p *Participant) DomainID() int { return p.domainID }

// dispatchEvents fans transport events out to writers and readers.
func (p *Participant) dispatchEvents() {
	defer p.wg.Done()

	events := p.transport.Events()
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.logger.Debug().Str("event", ev.String()).Msg("Transport status event")

			p.mu.Lock()
			if ev.Kind.forWriters() {
				for _, ch := range p.writerCh {
					p.offer(ch, ev)
				}
			}
			if ev.Kind.forReaders() {
				for _, ch := range p.readerCh {
					p.offer(ch, ev)
				}
			}
			p.mu.Unlock()
		}
	}
}

// offer drops the event when the listener is not keeping up.
func (p *Participant) offer(ch chan StatusEvent, ev StatusEvent) {
	select {
	case ch <- ev:
	default:
		p.logger.Debug().Str("event", ev.String()).Msg("Status channel full, dropping event")
	}
}

func (p *Participant) registerWriter() (chan StatusEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	ch := make(chan StatusEvent, p.statusBuffer)
	p.writerCh = append(p.writerCh, ch)
	return ch, nil
}

// registerReader also reserves a slot in the participant's wait group for
// the reader goroutine; the caller must release it if setup fails.
func (p *Participant) registerReader() (chan StatusEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	p.wg.Add(1)
	ch := make(chan StatusEvent, p.statusBuffer)
	p.readerCh = append(p.readerCh, ch)
	return ch, nil
}

func (p *Participant) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// channelName maps a topic name onto the transport namespace.
func (p *Participant) channelName(topic string) string {
	return fmt.Sprintf("%s.%d.%s", p.prefix, p.domainID, topic)
}

// CreateTopic declares the logical channel both roles agree on.
func (p *Participant) CreateTopic(name, typeName string, qos QoS) (*Topic, error) {
	if p.isClosed() {
		return nil, &InitError{Step: "Topic", Err: ErrClosed}
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(typeName) == "" {
		return nil, &InitError{Step: "Topic", Err: fmt.Errorf("%w: name and type name are required", ErrInvalidTopic)}
	}
	if strings.ContainsAny(name, " \t\n*>#+/") {
		return nil, &InitError{Step: "Topic", Err: fmt.Errorf("%w: %q contains reserved characters", ErrInvalidTopic, name)}
	}
	return &Topic{
		participant: p,
		name:        name,
		typeName:    typeName,
		channel:     p.channelName(name),
		qos:         qos,
	}, nil
}

// CreatePublisher returns the factory for writers.
func (p *Participant) CreatePublisher(qos QoS) (*Publisher, error) {
	if p.isClosed() {
		return nil, &InitError{Step: "Publisher", Err: ErrClosed}
	}
	return &Publisher{participant: p, qos: qos}, nil
}

// CreateSubscriber returns the factory for readers.
func (p *Participant) CreateSubscriber(qos QoS) (*Subscriber, error) {
	if p.isClosed() {
		return nil, &InitError{Step: "Subscriber", Err: ErrClosed}
	}
	return &Subscriber{participant: p, qos: qos}, nil
}

// Close stops every reader and releases the transport.
func (p *Participant) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()

	if err := p.transport.Close(); err != nil {
		return fmt.Errorf("failed to close %s transport: %w", p.transport.Name(), err)
	}
	p.logger.Info().Msg("DomainParticipant closed")
	return nil
}

// Topic is the read-only descriptor shared by writers and readers.
type Topic struct {
	participant *Participant
	name        string
	typeName    string
	channel     string
	qos         QoS
}

func (t *Topic) Name() string     { return t.name }
func (t *Topic) TypeName() string { return t.typeName }
func (t *Topic) Channel() string  { return t.channel }
func (t *Topic) QoS() QoS         { return t.qos }

// Publisher creates writers.
type Publisher struct {
	participant *Participant
	qos         QoS
}

// Subscriber creates readers.
type Subscriber struct {
	participant *Participant
	qos         QoS
}

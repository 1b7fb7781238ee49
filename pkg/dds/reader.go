package dds

import (
	"context"
	"errors"
	"fmt"
)

// Sample is either a received value or the error that ended the stream.
type Sample[T any] struct {
	Value T
	Err   error
}

// Reader receives samples of type T from one topic.
type Reader[T any] struct {
	participant *Participant
	topic       *Topic
	codec       codec[T]
	samples     chan Sample[T]
	events      chan StatusEvent
}

// NewReader subscribes to topic. The reader inherits the subscriber's QoS.
func NewReader[T any](ctx context.Context, subscriber *Subscriber, topic *Topic) (*Reader[T], error) {
	if subscriber == nil || topic == nil {
		return nil, &InitError{Step: "DataReader", Err: fmt.Errorf("subscriber and topic are required")}
	}
	if subscriber.participant != topic.participant {
		return nil, &InitError{Step: "DataReader", Err: fmt.Errorf("topic %q belongs to another participant", topic.name)}
	}

	p := subscriber.participant
	events, err := p.registerReader()
	if err != nil {
		return nil, &InitError{Step: "DataReader", Err: err}
	}

	deliveries, err := p.transport.Subscribe(ctx, topic.channel, subscriber.qos)
	if err != nil {
		p.wg.Done()
		return nil, &InitError{Step: "DataReader", Err: fmt.Errorf("subscribe %s: %w", topic.channel, err)}
	}

	r := &Reader[T]{
		participant: p,
		topic:       topic,
		codec:       newCodec[T](topic.typeName),
		samples:     make(chan Sample[T]),
		events:      events,
	}

	go r.run(deliveries)

	return r, nil
}

// run decodes deliveries in arrival order. The sample channel is closed
// after a ReadError or when the participant closes.
func (r *Reader[T]) run(deliveries <-chan Delivery) {
	defer r.participant.wg.Done()
	defer close(r.samples)

	for {
		select {
		case <-r.participant.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				if r.participant.isClosed() {
					return
				}
				r.fail(ErrSubscriptionLost)
				return
			}

			value, err := r.codec.decode(d.Payload)
			if errors.Is(err, ErrTypeMismatch) {
				r.participant.logger.Warn().Err(err).Str("channel", d.Channel).Msg("Rejected sample")
				r.participant.offer(r.events, NewStatusEvent(SampleRejected, r.topic.channel, err))
				continue
			}
			if err != nil {
				r.fail(err)
				return
			}

			select {
			case r.samples <- Sample[T]{Value: value}:
			case <-r.participant.done:
				return
			}
		}
	}
}

func (r *Reader[T]) fail(err error) {
	r.participant.logger.Error().Err(err).Str("channel", r.topic.channel).Msg("Sample stream failed")
	select {
	case r.samples <- Sample[T]{Err: &ReadError{Err: err}}:
	case <-r.participant.done:
	}
}

// Samples streams received values until a ReadError is delivered.
func (r *Reader[T]) Samples() <-chan Sample[T] {
	return r.samples
}

// StatusEvents streams reader status notifications. The stream is live:
// events raised before the reader was created are not replayed.
func (r *Reader[T]) StatusEvents() <-chan StatusEvent {
	return r.events
}

// Topic returns the topic this reader listens on.
func (r *Reader[T]) Topic() *Topic {
	return r.topic
}

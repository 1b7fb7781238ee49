package dds

import (
	"context"
	"fmt"
)

// Writer publishes samples of type T on one topic.
type Writer[T any] struct {
	participant *Participant
	topic       *Topic
	qos         QoS
	codec       codec[T]
	events      chan StatusEvent
}

// NewWriter creates a writer for topic. The writer inherits the
// publisher's QoS.
func NewWriter[T any](publisher *Publisher, topic *Topic) (*Writer[T], error) {
	if publisher == nil || topic == nil {
		return nil, &InitError{Step: "DataWriter", Err: fmt.Errorf("publisher and topic are required")}
	}
	if publisher.participant != topic.participant {
		return nil, &InitError{Step: "DataWriter", Err: fmt.Errorf("topic %q belongs to another participant", topic.name)}
	}

	events, err := publisher.participant.registerWriter()
	if err != nil {
		return nil, &InitError{Step: "DataWriter", Err: err}
	}

	return &Writer[T]{
		participant: publisher.participant,
		topic:       topic,
		qos:         publisher.qos,
		codec:       newCodec[T](topic.typeName),
		events:      events,
	}, nil
}

// Write serializes and submits one sample. Failures are returned as
// *WriteError and are never retried.
func (w *Writer[T]) Write(ctx context.Context, sample T) error {
	if w.participant.isClosed() {
		return &WriteError{Err: ErrClosed}
	}

	payload, err := w.codec.encode(sample)
	if err != nil {
		return &WriteError{Err: err}
	}

	if w.qos.MaxBlockingTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.qos.MaxBlockingTime)
		defer cancel()
	}

	if err := w.participant.transport.Publish(ctx, w.topic.channel, payload, w.qos); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// StatusEvents streams writer status notifications for the life of the
// participant. The stream is live: events raised before the writer was
// created, such as the transport's initial Connected, are not replayed.
func (w *Writer[T]) StatusEvents() <-chan StatusEvent {
	return w.events
}

// Topic returns the topic this writer publishes on.
func (w *Writer[T]) Topic() *Topic {
	return w.topic
}

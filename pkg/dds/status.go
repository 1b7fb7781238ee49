package dds

import (
	"fmt"
	"strings"
	"time"
)

// StatusKind classifies an asynchronous status notification.
type StatusKind int

const (
	Connected StatusKind = iota + 1
	ConnectionLost
	Reconnecting
	PublicationFailed
	SampleRejected
	SampleLost
	FlowBlocked
	FlowUnblocked
)

var statusKindNames = map[StatusKind]string{
	Connected:         "Connected",
	ConnectionLost:    "ConnectionLost",
	Reconnecting:      "Reconnecting",
	PublicationFailed: "PublicationFailed",
	SampleRejected:    "SampleRejected",
	SampleLost:        "SampleLost",
	FlowBlocked:       "FlowBlocked",
	FlowUnblocked:     "FlowUnblocked",
}

func (k StatusKind) String() string {
	if name, ok := statusKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// forWriters reports whether writers should observe events of this kind.
func (k StatusKind) forWriters() bool {
	switch k {
	case SampleRejected, SampleLost:
		return false
	default:
		return true
	}
}

// forReaders reports whether readers should observe events of this kind.
func (k StatusKind) forReaders() bool {
	switch k {
	case PublicationFailed, FlowBlocked, FlowUnblocked:
		return false
	default:
		return true
	}
}

// StatusEvent is a connection or delivery notification, distinct from data.
type StatusEvent struct {
	Kind   StatusKind
	Detail string
	Err    error
	Time   time.Time
}

// NewStatusEvent stamps a status event with the current time.
func NewStatusEvent(kind StatusKind, detail string, err error) StatusEvent {
	return StatusEvent{Kind: kind, Detail: detail, Err: err, Time: time.Now()}
}

func (e StatusEvent) String() string {
	var parts []string
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Err != nil {
		parts = append(parts, "error: "+e.Err.Error())
	}
	if len(parts) == 0 {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s { %s }", e.Kind, strings.Join(parts, ", "))
}

// EventSink is a lossy, never-closed event channel for transports. Emit
// never blocks, so it is safe to call from library callbacks.
type EventSink struct {
	ch chan StatusEvent
}

// NewEventSink creates a sink buffering up to size events.
func NewEventSink(size int) *EventSink {
	if size <= 0 {
		size = 64
	}
	return &EventSink{ch: make(chan StatusEvent, size)}
}

// Emit queues an event and reports whether it was accepted.
func (s *EventSink) Emit(kind StatusKind, detail string, err error) bool {
	select {
	case s.ch <- NewStatusEvent(kind, detail, err):
		return true
	default:
		return false
	}
}

// Events returns the receive side of the sink.
func (s *EventSink) Events() <-chan StatusEvent {
	return s.ch
}

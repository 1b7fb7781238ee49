// Package dds is the distribution service binding used by the heartbeat roles.
//
// It exposes a small DDS-like object model (participant, topic, publisher,
// subscriber, writer, reader) on top of any publish-subscribe Transport.
package dds

import (
	"fmt"
	"strings"
	"time"
)

// Reliability selects the delivery mode requested from the transport.
type Reliability int

const (
	// BestEffort allows the transport to drop messages.
	BestEffort Reliability = iota
	// Reliable asks the transport for acknowledged delivery.
	Reliable
)

// String returns the configuration name of the reliability kind.
func (r Reliability) String() string {
	switch r {
	case BestEffort:
		return "best_effort"
	case Reliable:
		return "reliable"
	default:
		return fmt.Sprintf("reliability(%d)", int(r))
	}
}

// ParseReliability converts a configuration value into a Reliability.
func ParseReliability(s string) (Reliability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reliable", "":
		return Reliable, nil
	case "best_effort", "best-effort", "besteffort":
		return BestEffort, nil
	default:
		return BestEffort, fmt.Errorf("unknown reliability %q", s)
	}
}

// QoS is the quality-of-service descriptor handed to the transport.
type QoS struct {
	Reliability Reliability
	// MaxBlockingTime bounds how long a write may wait for the transport.
	// Zero means writes never wait and fail immediately instead.
	MaxBlockingTime time.Duration
}

// DefaultQoS is reliable delivery with non-blocking writes.
func DefaultQoS() QoS {
	return QoS{Reliability: Reliable, MaxBlockingTime: 0}
}

// IsReliable reports whether acknowledged delivery was requested.
func (q QoS) IsReliable() bool {
	return q.Reliability == Reliable
}

func (q QoS) String() string {
	return fmt.Sprintf("%s(max_blocking_time=%s)", q.Reliability, q.MaxBlockingTime)
}

package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benmeehan/tms-heartbeat/internal/models"
	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/benmeehan/tms-heartbeat/pkg/identity"
	"github.com/rs/zerolog"
)

// HeartbeatWriter is the writer side of the heartbeat topic.
type HeartbeatWriter interface {
	Write(ctx context.Context, hb models.Heartbeat) error
	StatusEvents() <-chan dds.StatusEvent
}

// Emitter is the device role: it publishes one heartbeat per interval.
type Emitter struct {
	DeviceInfo identity.DeviceInfoInterface
	Writer     HeartbeatWriter
	Interval   time.Duration
	Reporter   Reporter
	Logger     zerolog.Logger

	seq atomic.Uint32
}

// NewEmitter initializes a new Emitter.
func NewEmitter(deviceInfo identity.DeviceInfoInterface, writer HeartbeatWriter, interval time.Duration,
	reporter Reporter, logger zerolog.Logger) *Emitter {

	return &Emitter{
		DeviceInfo: deviceInfo,
		Writer:     writer,
		Interval:   interval,
		Reporter:   reporter,
		Logger:     logger.With().Str("role", "device").Logger(),
	}
}

func (e *Emitter) Name() string { return "device" }

// NextSequence returns the sequence number the next tick will carry.
func (e *Emitter) NextSequence() uint32 {
	return e.seq.Load()
}

// Run emits heartbeats until ctx is cancelled. Write failures are reported
// and never stop the loop.
func (e *Emitter) Run(ctx context.Context) error {
	deviceID := e.DeviceInfo.GetDeviceID()

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	events := e.Writer.StatusEvents()

	e.Logger.Info().Str("device_id", deviceID).Dur("interval", e.Interval).Msg("Start publisher message sending")

	for {
		select {
		case <-ticker.C:
			e.emit(ctx, deviceID)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.Logger.Debug().Str("event", ev.String()).Msg("DataWriter status event")
			e.Reporter.WriterEvent(ev)

		case <-ctx.Done():
			e.Logger.Info().Uint32("next_sequence_number", e.NextSequence()).Msg("Emitter stopping gracefully")
			return nil
		}
	}
}

// emit sends one heartbeat. The sequence number advances whatever the
// outcome of the write.
func (e *Emitter) emit(ctx context.Context, deviceID string) {
	hb := models.Heartbeat{
		DeviceID:       deviceID,
		SequenceNumber: e.seq.Add(1) - 1,
	}

	if err := e.Writer.Write(ctx, hb); err != nil {
		e.Logger.Error().Err(err).Uint32("sequence_number", hb.SequenceNumber).Msg("Failed to write heartbeat")
		e.Reporter.WriteFailed(err)
	} else {
		e.Logger.Debug().Uint32("sequence_number", hb.SequenceNumber).Msg("Heartbeat written")
	}
	e.Reporter.Sent(hb.SequenceNumber)
}

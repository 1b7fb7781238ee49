package services

import (
	"context"
	"errors"

	"github.com/benmeehan/tms-heartbeat/internal/models"
	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/rs/zerolog"
)

// HeartbeatReader is the reader side of the heartbeat topic.
type HeartbeatReader interface {
	Samples() <-chan dds.Sample[models.Heartbeat]
	StatusEvents() <-chan dds.StatusEvent
}

// Observer is the dashboard role: it reports every heartbeat it receives.
type Observer struct {
	Reader   HeartbeatReader
	Roster   *Roster
	Reporter Reporter
	Logger   zerolog.Logger
}

// NewObserver initializes a new Observer. roster may be nil.
func NewObserver(reader HeartbeatReader, roster *Roster, reporter Reporter, logger zerolog.Logger) *Observer {
	return &Observer{
		Reader:   reader,
		Roster:   roster,
		Reporter: reporter,
		Logger:   logger.With().Str("role", "dashboard").Logger(),
	}
}

func (o *Observer) Name() string { return "dashboard" }

// Run reports samples and status events in arrival order. A ReadError ends
// observation of both and is returned; cancellation returns nil.
func (o *Observer) Run(ctx context.Context) error {
	samples := o.Reader.Samples()
	events := o.Reader.StatusEvents()

	o.Logger.Info().Msg("Start dashboard message listening")

	for {
		select {
		case s, ok := <-samples:
			if !ok {
				o.Logger.Info().Msg("Sample stream closed")
				return nil
			}
			if s.Err != nil {
				return o.fail(s.Err)
			}
			if o.Roster != nil {
				o.Roster.Observe(s.Value)
			}
			o.Logger.Debug().Str("device_id", s.Value.DeviceID).Uint32("sequence_number", s.Value.SequenceNumber).Msg("Heartbeat received")
			o.Reporter.Received(s.Value)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.Logger.Debug().Str("event", ev.String()).Msg("DataReader status event")
			o.Reporter.ReaderEvent(ev)

		case <-ctx.Done():
			o.Logger.Info().Msg("Observer stopping gracefully")
			return nil
		}
	}
}

func (o *Observer) fail(err error) error {
	var readErr *dds.ReadError
	if !errors.As(err, &readErr) {
		err = &dds.ReadError{Err: err}
	}
	o.Logger.Error().Err(err).Msg("Sample stream failed, observation terminated")
	o.Reporter.ReadFailed(err)
	return err
}

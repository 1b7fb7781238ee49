package services

import (
	"sort"
	"time"

	"github.com/benmeehan/tms-heartbeat/internal/models"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// DeviceRecord summarizes the heartbeats received from one device.
type DeviceRecord struct {
	DeviceID     string
	FirstSeen    time.Time
	LastSeen     time.Time
	LastSequence uint32
	Received     uint64
}

// Roster tracks every device a dashboard has heard from. It only observes;
// it never filters or reorders heartbeats.
type Roster struct {
	devices cmap.ConcurrentMap[string, DeviceRecord]
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRoster creates an empty roster.
func NewRoster(logger zerolog.Logger) *Roster {
	return &Roster{
		devices: cmap.New[DeviceRecord](),
		logger:  logger,
		now:     time.Now,
	}
}

// Observe records hb and reports whether its device was seen for the first
// time.
func (r *Roster) Observe(hb models.Heartbeat) (DeviceRecord, bool) {
	now := r.now()
	isNew := false

	rec := r.devices.Upsert(hb.DeviceID, DeviceRecord{}, func(exist bool, current, _ DeviceRecord) DeviceRecord {
		if !exist {
			isNew = true
			current = DeviceRecord{DeviceID: hb.DeviceID, FirstSeen: now}
		}
		current.LastSeen = now
		current.LastSequence = hb.SequenceNumber
		current.Received++
		return current
	})

	if isNew {
		r.logger.Info().Str("device_id", hb.DeviceID).Uint32("sequence_number", hb.SequenceNumber).Msg("New device seen")
	}
	return rec, isNew
}

// Get returns the record of one device.
func (r *Roster) Get(deviceID string) (DeviceRecord, bool) {
	return r.devices.Get(deviceID)
}

// Count returns the number of distinct devices seen.
func (r *Roster) Count() int {
	return r.devices.Count()
}

// Snapshot returns all records ordered by device id.
func (r *Roster) Snapshot() []DeviceRecord {
	items := r.devices.Items()
	out := make([]DeviceRecord, 0, len(items))
	for _, rec := range items {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

package services

import (
	"testing"
	"time"

	"github.com/benmeehan/tms-heartbeat/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoster_Observe(t *testing.T) {
	r := NewRoster(zerolog.Nop())
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return t0 }

	rec, isNew := r.Observe(models.Heartbeat{DeviceID: "aa", SequenceNumber: 3})
	assert.True(t, isNew)
	assert.Equal(t, DeviceRecord{DeviceID: "aa", FirstSeen: t0, LastSeen: t0, LastSequence: 3, Received: 1}, rec)

	t1 := t0.Add(time.Second)
	r.now = func() time.Time { return t1 }

	rec, isNew = r.Observe(models.Heartbeat{DeviceID: "aa", SequenceNumber: 1})
	assert.False(t, isNew)
	assert.Equal(t, t0, rec.FirstSeen)
	assert.Equal(t, t1, rec.LastSeen)
	assert.Equal(t, uint32(1), rec.LastSequence)
	assert.Equal(t, uint64(2), rec.Received)
}

func TestRoster_SnapshotIsSorted(t *testing.T) {
	r := NewRoster(zerolog.Nop())
	for _, id := range []string{"cc", "aa", "bb", "aa"} {
		r.Observe(models.Heartbeat{DeviceID: id})
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "aa", snap[0].DeviceID)
	assert.Equal(t, "bb", snap[1].DeviceID)
	assert.Equal(t, "cc", snap[2].DeviceID)
	assert.Equal(t, uint64(2), snap[0].Received)
	assert.Equal(t, 3, r.Count())

	_, ok := r.Get("dd")
	assert.False(t, ok)
}

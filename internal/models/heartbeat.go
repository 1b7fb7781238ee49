package models

import "fmt"

// Heartbeat is the liveness signal a device emits once per tick.
type Heartbeat struct {
	DeviceID       string `json:"device_id"`
	SequenceNumber uint32 `json:"sequence_number"`
}

func (h Heartbeat) String() string {
	return fmt.Sprintf("deviceId %s, sequenceNumber %d", h.DeviceID, h.SequenceNumber)
}

package identity

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// DeviceID is a random 128-bit identifier rendered as 32 lowercase hex
// characters without dashes.
type DeviceID string

// NewIdentity generates a fresh DeviceID from a version 4 UUID.
func NewIdentity() DeviceID {
	id := uuid.New()
	return DeviceID(hex.EncodeToString(id[:]))
}

func (d DeviceID) String() string { return string(d) }

// DeviceInfoInterface defines methods for reading the device identity.
type DeviceInfoInterface interface {
	GetDeviceID() string
}

// DeviceInfo holds the identity generated at startup. It is never persisted.
type DeviceInfo struct {
	id DeviceID
}

// NewDeviceInfo initializes a DeviceInfo with a newly generated identity.
func NewDeviceInfo() *DeviceInfo {
	return &DeviceInfo{id: NewIdentity()}
}

// NewDeviceInfoWithID wraps an existing identity.
func NewDeviceInfoWithID(id DeviceID) *DeviceInfo {
	return &DeviceInfo{id: id}
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.id.String()
}

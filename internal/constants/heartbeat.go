package constants

import "time"

const (
	// HeartbeatTopicName is the topic both roles agree on.
	HeartbeatTopicName = "heartbeat_topic"

	// HeartbeatTypeName is the registered type name of the heartbeat payload.
	HeartbeatTypeName = "TMS_Heartbeat"

	// HeartbeatInterval is the fixed emission cadence of a device.
	HeartbeatInterval = 1 * time.Second
)

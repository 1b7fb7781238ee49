package constants

// ServerType selects which role the process plays.
type ServerType string

const (
	ServerTypePub ServerType = "pub"
	ServerTypeSub ServerType = "sub"
)

// Transport kinds accepted in transport.kind.
const (
	TransportMQTT     = "mqtt"
	TransportNATS     = "nats"
	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"
	TransportMemory   = "memory"
)

// Process exit statuses.
const (
	ExitOK         = 0
	ExitInitError  = 1
	ExitUsageError = 2
	ExitReadError  = 3
)

// ServerName is printed in the startup banner.
const ServerName = "GO DDS TMS SERVER"

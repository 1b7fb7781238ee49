package service_registry

import (
	"fmt"

	"github.com/benmeehan/tms-heartbeat/internal/constants"
	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/benmeehan/tms-heartbeat/pkg/kafka"
	"github.com/benmeehan/tms-heartbeat/pkg/memory"
	"github.com/benmeehan/tms-heartbeat/pkg/mqtt"
	"github.com/benmeehan/tms-heartbeat/pkg/natsbus"
	"github.com/benmeehan/tms-heartbeat/pkg/rabbitmq"
)

// NewTransport builds the transport selected by transport.kind. The
// transport is not connected yet.
func (sr *ServiceRegistry) NewTransport() (dds.Transport, error) {
	cfg := sr.config.Transport
	deviceID := sr.deviceInfo.GetDeviceID()

	// Ordered transport definitions with inline constructors
	transportsInOrder := []struct {
		kind        string
		constructor func() (dds.Transport, error)
	}{
		{
			kind: constants.TransportMQTT,
			constructor: func() (dds.Transport, error) {
				return mqtt.NewMqttService(mqtt.Config{
					Broker:         cfg.MQTT.Broker,
					ClientID:       cfg.MQTT.ClientID + "-" + deviceID,
					CACertificate:  cfg.MQTT.CACertificate,
					Username:       cfg.MQTT.Username,
					Password:       cfg.MQTT.Password,
					ConnectTimeout: cfg.MQTT.ConnectTimeout,
				}, sr.fileClient, sr.Logger), nil
			},
		},
		{
			kind: constants.TransportNATS,
			constructor: func() (dds.Transport, error) {
				return natsbus.NewTransport(natsbus.Config{
					URL:            cfg.NATS.URL,
					Name:           cfg.NATS.Name + "-" + deviceID,
					Token:          cfg.NATS.Token,
					ReconnectWait:  cfg.NATS.ReconnectWait,
					MaxReconnects:  cfg.NATS.MaxReconnects,
					ConnectTimeout: cfg.NATS.ConnectTimeout,
				}, sr.Logger), nil
			},
		},
		{
			kind: constants.TransportRabbitMQ,
			constructor: func() (dds.Transport, error) {
				rcfg := rabbitmq.Config{
					URL:            cfg.RabbitMQ.URL,
					ExchangePrefix: cfg.RabbitMQ.ExchangePrefix,
					Heartbeat:      cfg.RabbitMQ.Heartbeat,
				}
				if err := rcfg.Validate(); err != nil {
					return nil, err
				}
				return rabbitmq.NewTransport(rcfg, sr.Logger), nil
			},
		},
		{
			kind: constants.TransportKafka,
			constructor: func() (dds.Transport, error) {
				kcfg := kafka.Config{
					Brokers:  cfg.Kafka.Brokers,
					ClientID: cfg.Kafka.ClientID,
				}
				if err := kcfg.Validate(); err != nil {
					return nil, err
				}
				return kafka.NewTransport(kcfg, sr.Logger), nil
			},
		},
		{
			kind: constants.TransportMemory,
			constructor: func() (dds.Transport, error) {
				if sr.bus == nil {
					sr.bus = memory.NewBus(cfg.Memory.BufferSize)
				}
				return memory.NewTransport(sr.bus), nil
			},
		},
	}

	for _, t := range transportsInOrder {
		if t.kind != cfg.Kind {
			continue
		}
		transport, err := t.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s transport", t.kind)
			return nil, fmt.Errorf("failed to create %s transport: %w", t.kind, err)
		}
		sr.Logger.Info().Str("transport", t.kind).Msg("Transport created")
		return transport, nil
	}
	return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
}

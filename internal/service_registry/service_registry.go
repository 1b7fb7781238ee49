package service_registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/benmeehan/tms-heartbeat/internal/constants"
	"github.com/benmeehan/tms-heartbeat/internal/models"
	"github.com/benmeehan/tms-heartbeat/internal/registry"
	"github.com/benmeehan/tms-heartbeat/internal/services"
	"github.com/benmeehan/tms-heartbeat/internal/utils"
	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/benmeehan/tms-heartbeat/pkg/file"
	"github.com/benmeehan/tms-heartbeat/pkg/identity"
	"github.com/benmeehan/tms-heartbeat/pkg/memory"
	"github.com/rs/zerolog"
)

// ServiceRegistry builds the distribution service objects and the role
// that runs on top of them.
type ServiceRegistry struct {
	config     *utils.Config
	fileClient file.FileOperations
	deviceInfo identity.DeviceInfoInterface
	reporter   services.Reporter
	Logger     zerolog.Logger

	bus         *memory.Bus
	transport   dds.Transport
	participant *dds.Participant
	roster      *services.Roster
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(config *utils.Config, fileClient file.FileOperations, deviceInfo identity.DeviceInfoInterface,
	reporter services.Reporter, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		config:     config,
		fileClient: fileClient,
		deviceInfo: deviceInfo,
		reporter:   reporter,
		Logger:     logger,
	}
}

// UseMemoryBus makes the memory transport attach to bus, so several
// registries in one process can exchange heartbeats.
func (sr *ServiceRegistry) UseMemoryBus(bus *memory.Bus) *ServiceRegistry {
	sr.bus = bus
	return sr
}

// UseTransport overrides the configured transport.
func (sr *ServiceRegistry) UseTransport(t dds.Transport) *ServiceRegistry {
	sr.transport = t
	return sr
}

// Roster returns the device roster of a dashboard, or nil for a device.
func (sr *ServiceRegistry) Roster() *services.Roster {
	return sr.roster
}

// Setup creates, in order, the participant, the topic and the role's
// publisher/writer or subscriber/reader. Any failure is an *dds.InitError
// and leaves nothing open.
func (sr *ServiceRegistry) Setup(ctx context.Context, serverType constants.ServerType) (registry.Role, error) {
	transport := sr.transport
	if transport == nil {
		var err error
		if transport, err = sr.NewTransport(); err != nil {
			return nil, &dds.InitError{Step: "Transport", Err: err}
		}
	}

	participant, err := dds.NewParticipant(ctx, dds.ParticipantConfig{
		DomainID:      sr.config.DomainID,
		ChannelPrefix: sr.config.Transport.ChannelPrefix,
	}, transport, sr.Logger)
	if err != nil {
		if cerr := transport.Close(); cerr != nil {
			sr.Logger.Warn().Err(cerr).Msg("Failed to close transport")
		}
		return nil, err
	}
	sr.participant = participant
	sr.reporter.Created("DomainParticipant")

	role, err := sr.setupRole(ctx, serverType)
	if err != nil {
		sr.Logger.Error().Err(err).Msg("Setup failed, closing participant")
		if cerr := sr.Close(); cerr != nil {
			sr.Logger.Error().Err(cerr).Msg("Failed to close participant")
		}
		return nil, err
	}
	return role, nil
}

func (sr *ServiceRegistry) setupRole(ctx context.Context, serverType constants.ServerType) (registry.Role, error) {
	qos, err := sr.config.DDSQoS()
	if err != nil {
		return nil, &dds.InitError{Step: "Quality of Service", Err: err}
	}
	sr.reporter.Created("Quality of Service")
	sr.Logger.Debug().Str("qos", qos.String()).Msg("QoS configured")

	topic, err := sr.participant.CreateTopic(constants.HeartbeatTopicName, constants.HeartbeatTypeName, qos)
	if err != nil {
		return nil, err
	}
	sr.reporter.Topic(topic.TypeName())
	sr.Logger.Debug().Str("channel", topic.Channel()).Msg("Topic created")

	// Ordered role definitions with inline constructors
	rolesInOrder := []struct {
		serverType  constants.ServerType
		constructor func() (registry.Role, error)
	}{
		{
			serverType: constants.ServerTypePub,
			constructor: func() (registry.Role, error) {
				publisher, err := sr.participant.CreatePublisher(qos)
				if err != nil {
					return nil, err
				}
				sr.reporter.Created("DDS TMS Device")

				sr.reporter.Starting("device", sr.deviceInfo.GetDeviceID())

				writer, err := dds.NewWriter[models.Heartbeat](publisher, topic)
				if err != nil {
					return nil, err
				}
				sr.reporter.Created("DDS DataWriter")

				return services.NewEmitter(sr.deviceInfo, writer, constants.HeartbeatInterval, sr.reporter, sr.Logger), nil
			},
		},
		{
			serverType: constants.ServerTypeSub,
			constructor: func() (registry.Role, error) {
				subscriber, err := sr.participant.CreateSubscriber(qos)
				if err != nil {
					return nil, err
				}
				sr.reporter.Created("DDS TMS Dashboard")

				sr.reporter.Starting("dashboard", sr.deviceInfo.GetDeviceID())

				reader, err := dds.NewReader[models.Heartbeat](ctx, subscriber, topic)
				if err != nil {
					return nil, err
				}
				sr.reporter.Created("DDS DataReader")

				sr.roster = services.NewRoster(sr.Logger)
				return services.NewObserver(reader, sr.roster, sr.reporter, sr.Logger), nil
			},
		},
	}

	for _, r := range rolesInOrder {
		if r.serverType != serverType {
			continue
		}
		role, err := r.constructor()
		if err != nil {
			var initErr *dds.InitError
			if !errors.As(err, &initErr) {
				err = &dds.InitError{Step: string(serverType) + " role", Err: err}
			}
			sr.Logger.Error().Err(err).Msgf("Failed to create %s role", serverType)
			return nil, err
		}
		sr.Logger.Info().Str("role", role.Name()).Msg("Role ready")
		return role, nil
	}
	return nil, &dds.InitError{Step: "role", Err: fmt.Errorf("unknown servertype %q", serverType)}
}

// Close releases the participant and its transport.
func (sr *ServiceRegistry) Close() error {
	if sr.participant == nil {
		return nil
	}
	p := sr.participant
	sr.participant = nil
	return p.Close()
}

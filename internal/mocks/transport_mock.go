package mocks

import (
	"context"

	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of the dds.Transport interface
type MockTransport struct {
	mock.Mock
	EventsCh chan dds.StatusEvent
}

// NewMockTransport creates a transport mock with a buffered event channel.
func NewMockTransport() *MockTransport {
	return &MockTransport{EventsCh: make(chan dds.StatusEvent, 16)}
}

func (m *MockTransport) Name() string { return "mock" }

func (m *MockTransport) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransport) Publish(ctx context.Context, channel string, payload []byte, qos dds.QoS) error {
	args := m.Called(ctx, channel, payload, qos)
	return args.Error(0)
}

func (m *MockTransport) Subscribe(ctx context.Context, channel string, qos dds.QoS) (<-chan dds.Delivery, error) {
	args := m.Called(ctx, channel, qos)
	if ch, ok := args.Get(0).(chan dds.Delivery); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransport) Events() <-chan dds.StatusEvent {
	return m.EventsCh
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

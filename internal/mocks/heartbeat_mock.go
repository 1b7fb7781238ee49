package mocks

import (
	"context"

	"github.com/benmeehan/tms-heartbeat/internal/models"
	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/stretchr/testify/mock"
)

// MockHeartbeatWriter is a mock implementation of the HeartbeatWriter interface
type MockHeartbeatWriter struct {
	mock.Mock
	Events chan dds.StatusEvent
}

// NewMockHeartbeatWriter creates a writer mock with a buffered status channel.
func NewMockHeartbeatWriter() *MockHeartbeatWriter {
	return &MockHeartbeatWriter{Events: make(chan dds.StatusEvent, 16)}
}

func (m *MockHeartbeatWriter) Write(ctx context.Context, hb models.Heartbeat) error {
	args := m.Called(ctx, hb)
	return args.Error(0)
}

func (m *MockHeartbeatWriter) StatusEvents() <-chan dds.StatusEvent {
	return m.Events
}

// FakeHeartbeatReader feeds samples and status events from test-owned
// channels.
type FakeHeartbeatReader struct {
	SamplesCh chan dds.Sample[models.Heartbeat]
	EventsCh  chan dds.StatusEvent
}

// NewFakeHeartbeatReader creates a reader with buffered channels.
func NewFakeHeartbeatReader() *FakeHeartbeatReader {
	return &FakeHeartbeatReader{
		SamplesCh: make(chan dds.Sample[models.Heartbeat], 16),
		EventsCh:  make(chan dds.StatusEvent, 16),
	}
}

func (f *FakeHeartbeatReader) Samples() <-chan dds.Sample[models.Heartbeat] {
	return f.SamplesCh
}

func (f *FakeHeartbeatReader) StatusEvents() <-chan dds.StatusEvent {
	return f.EventsCh
}

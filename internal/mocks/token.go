package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockToken is a mock implementation of the mqtt.Token interface
type MockToken struct {
	mock.Mock
}

// Error returns the error associated with the token
func (m *MockToken) Error() error {
	args := m.Called()
	return args.Error(0)
}

// Wait waits for the token to complete
func (m *MockToken) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

// Done channel returns the done channel for the token
func (m *MockToken) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

// WaitTimeout waits for the token to complete or timeout
func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}

// DoneToken returns a token that has already completed with err.
func DoneToken(err error) *MockToken {
	done := make(chan struct{})
	close(done)

	token := new(MockToken)
	token.On("Done").Return((<-chan struct{})(done))
	token.On("Error").Return(err)
	token.On("Wait").Return(true)
	token.On("WaitTimeout", mock.Anything).Return(true)
	return token
}

// PendingToken returns a token that completes with err once done is closed.
func PendingToken(done <-chan struct{}, err error) *MockToken {
	token := new(MockToken)
	token.On("Done").Return(done)
	token.On("Error").Return(err)
	return token
}

package dds

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("distribution service closed")
	ErrNotConnected     = errors.New("transport not connected")
	ErrWouldBlock       = errors.New("transport cannot accept write without blocking")
	ErrSubscriptionLost = errors.New("subscription lost")
	ErrInvalidTopic     = errors.New("invalid topic")
	ErrTypeMismatch     = errors.New("sample type does not match topic type")
)

// InitError reports a failed setup step. It is always fatal.
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to create %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// WriteError reports a single failed emission.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError terminates a sample stream.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read failed: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

package control

import (
	"errors"
	"fmt"
)

// Sentinel errors for the control package.
var (
	// ErrMissingURL indicates the endpoint URL was not provided.
	ErrMissingURL = errors.New("control: endpoint URL is required")

	// ErrNotConnected indicates no connection is open.
	ErrNotConnected = errors.New("control: not connected")

	// ErrInvalidFrame indicates an inbound payload could not be decoded.
	ErrInvalidFrame = errors.New("control: invalid frame")

	// ErrEmptyCommand indicates Send was called without commands.
	ErrEmptyCommand = errors.New("control: no commands to send")
)

// ConnectionError describes a failed dial or a lost connection.
type ConnectionError struct {
	// Reason describes what failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates the channel will dial again.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("control: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("control: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the channel will retry.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsRetryable returns true if err is a retryable connection error.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}
	return false
}

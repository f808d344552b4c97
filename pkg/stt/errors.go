package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure cases.
var (
	// ErrNotReady is returned by Start outside the Ready state.
	ErrNotReady = errors.New("stt: session not ready")

	// ErrReleased indicates the session was released.
	ErrReleased = errors.New("stt: session released")

	// ErrNotBound indicates the recognizer was used before Bind.
	ErrNotBound = errors.New("stt: recognizer not bound")

	// ErrStreamClosed indicates audio was written after Finish or Cancel.
	ErrStreamClosed = errors.New("stt: recognition stream closed")

	// ErrAudioTooLong indicates the capture exceeded the backend limit.
	ErrAudioTooLong = errors.New("stt: audio exceeds maximum length")
)

// InitErrorKind classifies why a session failed to initialize.
type InitErrorKind int

const (
	// KindPermission means audio capture is not permitted.
	KindPermission InitErrorKind = iota + 1
	// KindSampleRate means no candidate sample rate is supported.
	KindSampleRate
	// KindDevice means the capture device could not be opened.
	KindDevice
	// KindBackend means the recognizer failed to bind.
	KindBackend
)

// String returns the kind name.
func (k InitErrorKind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindSampleRate:
		return "sample_rate"
	case KindDevice:
		return "device"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// InitError reports a fatal session initialization failure.
type InitError struct {
	Kind  InitErrorKind
	Cause error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("stt: init failed (%s): %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Cause
}

// IsInitError reports whether err is an InitError of the given kind.
// A zero kind matches any InitError.
func IsInitError(err error, kind InitErrorKind) bool {
	var initErr *InitError
	if !errors.As(err, &initErr) {
		return false
	}
	return kind == 0 || initErr.Kind == kind
}

package voiceclient

import (
	"errors"
	"fmt"
)

// Sentinel errors for the voiceclient package.
var (
	// ErrMissingServerURL indicates the server URL was not provided.
	ErrMissingServerURL = errors.New("voiceclient: server URL is required")

	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("voiceclient: not connected")

	// ErrAlreadyConnected indicates the client is already connected.
	ErrAlreadyConnected = errors.New("voiceclient: already connected")

	// ErrAlreadyRecording indicates a recording session is active.
	ErrAlreadyRecording = errors.New("voiceclient: already recording")

	// ErrNotRecording indicates no recording session is active.
	ErrNotRecording = errors.New("voiceclient: not recording")

	// ErrTooShort indicates the recording was under the minimum duration.
	ErrTooShort = errors.New("voiceclient: recording too short")

	// ErrNoAudioContent indicates the recording was effectively silent.
	ErrNoAudioContent = errors.New("voiceclient: no audio content detected")

	// ErrReconnectExhausted indicates reconnection attempts ran out.
	ErrReconnectExhausted = errors.New("voiceclient: reconnect attempts exhausted")

	// ErrServer wraps an error message reported by the server.
	ErrServer = errors.New("voiceclient: server error")
)

// ConnectionError represents a WebSocket transport error.
type ConnectionError struct {
	// Reason describes what failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("voiceclient: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("voiceclient: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
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

// IsQualityGate returns true for advisory recording rejections that the
// caller should show to the user rather than treat as failures.
func IsQualityGate(err error) bool {
	return errors.Is(err, ErrTooShort) || errors.Is(err, ErrNoAudioContent)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}
	return false
}

// Package playback provides ordered audio playback for go-voiceform.
//
// The Queue serializes server audio chunks and plays them strictly in
// arrival order through a Sink. Sinks are created per playback generation
// and torn down on hard stop; opening and closing the output device is
// the single-owner substitute for locking it.
package playback

import (
	"fmt"
	"log/slog"
)

// Sink plays one buffer of audio to the output device.
type Sink interface {
	// Play plays the samples at the given rate, blocking until playback
	// completes or Stop is called. A stopped playback returns nil.
	Play(samples []float32, sampleRate int) error

	// Stop aborts playback immediately.
	// It is safe to call from any goroutine and more than once.
	Stop()

	// Close releases the output device.
	Close() error

	// Name returns the backend name (e.g., "portaudio", "mock").
	Name() string
}

// SinkFactory creates a fresh Sink for one playback generation.
type SinkFactory func(logger *slog.Logger) (Sink, error)

// Backend represents the playback backend type.
type Backend string

const (
	// BackendPortAudio plays through the default PortAudio output device.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses an in-memory sink for testing.
	BackendMock Backend = "mock"
)

// NewSinkFactory returns a SinkFactory for the named backend.
func NewSinkFactory(backend Backend) (SinkFactory, error) {
	switch backend {
	case BackendPortAudio, "":
		return newPortAudioSink, nil
	case BackendMock:
		return func(logger *slog.Logger) (Sink, error) {
			return NewMockSink(), nil
		}, nil
	default:
		return nil, fmt.Errorf("playback: unsupported backend: %s", backend)
	}
}

package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Source captures audio from a microphone or other input device.
// Frames are normalized float samples in [-1, 1], mono.
type Source interface {
	// Start begins audio capture.
	// After calling Start, frames are delivered on the Frames channel.
	Start(ctx context.Context) error

	// Stop halts audio capture and closes the Frames channel.
	// It is safe to call Stop multiple times.
	Stop() error

	// Frames returns the channel that receives captured frames.
	// Each frame is owned by the receiver once delivered.
	Frames() <-chan []float32

	// Config returns the current capture configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// Stats contains statistics about a capture source.
type Stats struct {
	// FramesRead is the total number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// SamplesRead is the total number of samples delivered.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of dropped frames (consumer too slow).
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the capture backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() Stats
}

// NewSource creates a new audio source for the configured backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating capture source",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"frame_ms", cfg.FrameDuration.Milliseconds(),
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendPortAudio, "":
		return newPortAudioSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

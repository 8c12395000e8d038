// Package capture provides microphone audio capture for go-voiceform.
//
// A Source delivers normalized float frames from the audio hardware; the
// Accumulator re-chunks those frames into the fixed-size chunks the
// recording layer consumes. Two backends are supported:
//   - PortAudio - production capture on Linux/macOS/Windows
//   - Mock - CI/testing without hardware (silence or sine wave)
package capture

import (
	"fmt"
	"time"
)

// Backend represents the capture backend type.
type Backend string

const (
	// BackendPortAudio uses PortAudio for microphone input.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a synthetic generator for testing.
	BackendMock Backend = "mock"
)

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "portaudio"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (the rate the voice server transcribes at)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// FrameDuration is the size of hardware callback frames.
	// Default: 20ms (320 samples at 16kHz)
	FrameDuration time.Duration `yaml:"frame_duration" json:"frame_duration"`

	// ChunkDuration is the size of chunks emitted by the Accumulator.
	// Default: 500ms (8000 samples at 16kHz)
	ChunkDuration time.Duration `yaml:"chunk_duration" json:"chunk_duration"`

	// Device is the backend-specific input device name, empty for default.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendPortAudio,
		SampleRate:    16000,
		FrameDuration: 20 * time.Millisecond,
		ChunkDuration: 500 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %v", c.ChunkDuration)
	}
	return nil
}

// FrameSize returns the number of samples per hardware frame.
func (c Config) FrameSize() int {
	return int(float64(c.SampleRate) * c.FrameDuration.Seconds())
}

// ChunkSize returns the number of samples per accumulator chunk.
func (c Config) ChunkSize() int {
	return int(float64(c.SampleRate) * c.ChunkDuration.Seconds())
}

package voiceclient

import (
	"log/slog"
	"time"

	"github.com/voiceform/go-voiceform/pkg/capture"
	"github.com/voiceform/go-voiceform/pkg/playback"
)

// Mode selects how recorded audio reaches the server.
type Mode string

const (
	// ModeBatch buffers the whole utterance and sends it as a single
	// batch message when recording stops.
	ModeBatch Mode = "batch"

	// ModeStreaming flushes buffered audio as incremental chunk
	// messages while recording, closed by an end-of-audio marker.
	ModeStreaming Mode = "streaming"
)

// Config holds configuration for the voice client.
type Config struct {
	// ServerURL is the WebSocket base URL, e.g. "ws://localhost:8000".
	ServerURL string

	// ClientID identifies this client to the server. Generated when empty.
	ClientID string

	// AIRole selects the assistant persona announced after connecting.
	AIRole string

	// Mode selects batch or streaming audio delivery.
	Mode Mode

	// SampleRate is the capture and playback sample rate in Hz.
	SampleRate int

	// CaptureBackend selects the microphone backend ("portaudio" or "mock").
	CaptureBackend string

	// PlaybackBackend selects the speaker backend ("portaudio" or "mock").
	PlaybackBackend string

	// MinUtterance is the minimum accepted recording duration.
	MinUtterance time.Duration

	// MaxUtterance is the maximum recording duration; longer recordings
	// are truncated to this length.
	MaxUtterance time.Duration

	// SilenceThreshold is the mean absolute amplitude below which a
	// batch recording is rejected as silent.
	SilenceThreshold float64

	// LowLevelThreshold is the mean absolute amplitude below which a
	// diagnostic warning is logged. Independent of SilenceThreshold.
	LowLevelThreshold float64

	// StreamFlush is the buffered duration that triggers a streaming flush.
	StreamFlush time.Duration

	// MinStreamFlush is the minimum buffered duration worth sending
	// as the final streaming flush.
	MinStreamFlush time.Duration

	// Timeout is the WebSocket dial timeout.
	Timeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration

	// ReconnectAttempts is the number of reconnection attempts.
	ReconnectAttempts int

	// ReconnectDelay is the base delay for exponential reconnect backoff.
	ReconnectDelay time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// captureSource overrides the capture backend, for tests.
	captureSource capture.Source

	// sinkFactory overrides the playback backend, for tests.
	sinkFactory playback.SinkFactory
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AIRole:            "co-worker",
		Mode:              ModeBatch,
		SampleRate:        16000,
		CaptureBackend:    "portaudio",
		PlaybackBackend:   "portaudio",
		MinUtterance:      500 * time.Millisecond,
		MaxUtterance:      60 * time.Second,
		SilenceThreshold:  0.005,
		LowLevelThreshold: 0.01,
		StreamFlush:       500 * time.Millisecond,
		MinStreamFlush:    300 * time.Millisecond,
		Timeout:           10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrMissingServerURL
	}
	return nil
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithServerURL sets the WebSocket base URL.
func WithServerURL(url string) Option {
	return func(c *Config) {
		c.ServerURL = url
	}
}

// WithClientID sets the client identifier.
func WithClientID(id string) Option {
	return func(c *Config) {
		c.ClientID = id
	}
}

// WithAIRole sets the assistant persona.
func WithAIRole(role string) Option {
	return func(c *Config) {
		c.AIRole = role
	}
}

// WithMode sets batch or streaming delivery.
func WithMode(mode Mode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithSampleRate sets the audio sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithCaptureBackend sets the microphone backend.
func WithCaptureBackend(backend string) Option {
	return func(c *Config) {
		c.CaptureBackend = backend
	}
}

// WithPlaybackBackend sets the speaker backend.
func WithPlaybackBackend(backend string) Option {
	return func(c *Config) {
		c.PlaybackBackend = backend
	}
}

// WithTimeout sets the dial timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithReconnect configures reconnection behavior.
func WithReconnect(attempts int, baseDelay time.Duration) Option {
	return func(c *Config) {
		c.ReconnectAttempts = attempts
		c.ReconnectDelay = baseDelay
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithCaptureSource injects a pre-built capture source, bypassing the
// backend factory. Used for tests and custom integrations.
func WithCaptureSource(src capture.Source) Option {
	return func(c *Config) {
		c.captureSource = src
	}
}

// WithSinkFactory injects a playback sink factory, bypassing the
// backend selection. Used for tests and custom integrations.
func WithSinkFactory(f playback.SinkFactory) Option {
	return func(c *Config) {
		c.sinkFactory = f
	}
}

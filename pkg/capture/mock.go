package capture

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock capture source for testing.
// It generates synthetic audio (silence or a sine wave).
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	frames  chan []float32
	stopCh  chan struct{}

	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a new mock capture source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		frames:    make(chan []float32, 16),
		stopCh:    make(chan struct{}),
		frequency: 0, // Silence by default
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.frames = make(chan []float32, 16)

	go m.generateLoop(ctx, m.frames, m.stopCh)

	m.logger.Info("mock capture source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, frames chan<- []float32, stopCh <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.FrameDuration)
	defer ticker.Stop()
	defer close(frames)

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			frame := m.generateFrame()
			select {
			case frames <- frame:
				m.framesRead.Add(1)
				m.samplesRead.Add(int64(len(frame)))
			default:
				m.overruns.Add(1)
			}
		}
	}
}

func (m *MockSource) generateFrame() []float32 {
	size := m.cfg.FrameSize()
	frame := make([]float32, size)

	if m.frequency == 0 {
		return frame
	}

	step := 2 * math.Pi * m.frequency / float64(m.cfg.SampleRate)
	for i := range frame {
		frame[i] = float32(m.amplitude * math.Sin(m.phase))
		m.phase += step
		if m.phase > 2*math.Pi {
			m.phase -= 2 * math.Pi
		}
	}
	return frame
}

// Stop halts generation and closes the frames channel.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)
	return nil
}

// Frames returns the frame channel.
func (m *MockSource) Frames() <-chan []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Config returns the capture configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases the source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	running := m.running
	m.mu.Unlock()

	if running {
		return m.Stop()
	}
	return nil
}

// Stats returns capture statistics.
func (m *MockSource) Stats() Stats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return Stats{
		FramesRead:  m.framesRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

var _ SourceWithStats = (*MockSource)(nil)

package playback

import (
	"sync"
	"time"
)

// MockSink is an in-memory sink for testing. It records what it was asked
// to play and completes immediately, or after a configured delay so tests
// can exercise cancellation mid-playback.
type MockSink struct {
	mu       sync.Mutex
	stopped  bool
	stopCh   chan struct{}
	played   [][]float32
	rates    []int
	playTime time.Duration
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithPlayTime makes each Play take the given duration unless stopped.
func WithPlayTime(d time.Duration) MockSinkOption {
	return func(m *MockSink) {
		m.playTime = d
	}
}

// NewMockSink creates a new mock sink.
func NewMockSink(opts ...MockSinkOption) *MockSink {
	m := &MockSink{
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Play records the buffer and simulates playback.
func (m *MockSink) Play(samples []float32, sampleRate int) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.played = append(m.played, samples)
	m.rates = append(m.rates, sampleRate)
	d := m.playTime
	m.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-m.stopCh:
		}
	}
	return nil
}

// Stop aborts the simulated playback.
func (m *MockSink) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}

// Close releases the sink.
func (m *MockSink) Close() error {
	m.Stop()
	return nil
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Played returns the buffers played so far.
func (m *MockSink) Played() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]float32, len(m.played))
	copy(out, m.played)
	return out
}

// Rates returns the sample rates of the buffers played so far.
func (m *MockSink) Rates() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.rates))
	copy(out, m.rates)
	return out
}

// Stopped reports whether the sink was stopped.
func (m *MockSink) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

var _ Sink = (*MockSink)(nil)

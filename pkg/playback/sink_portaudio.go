package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// writeFrameSize is the number of samples handed to the device per write.
// Small enough that Stop takes effect within ~20ms at 16kHz.
const writeFrameSize = 512

// portAudioSink plays audio through the default PortAudio output device.
// The output stream is opened inside Play and closed when it returns, so
// only one logical device context exists at a time.
type portAudioSink struct {
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	stream  *portaudio.Stream
}

func newPortAudioSink(logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &portAudioSink{
		logger: logger.With("component", "playback.portaudio"),
	}, nil
}

// Play writes the samples to the default output device in small frames,
// checking for Stop between writes.
func (s *portAudioSink) Play(samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("playback: portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	buf := make([]float32, writeFrameSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("playback: open output stream: %w", err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		stream.Close()
		return nil
	}
	s.stream = stream
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
		stream.Close()
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("playback: start output stream: %w", err)
	}

	for off := 0; off < len(samples); off += writeFrameSize {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			stream.Abort()
			return nil
		}

		n := copy(buf, samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			// Underflow produces a click but playback can continue.
			if err == portaudio.OutputUnderflowed {
				continue
			}
			s.mu.Lock()
			stopped = s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			return fmt.Errorf("playback: write: %w", err)
		}
	}

	return stream.Stop()
}

// Stop aborts the current playback.
func (s *portAudioSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.stream != nil {
		s.stream.Abort()
	}
}

// Close releases the sink. The Play path owns the stream, so Close only
// marks the sink unusable.
func (s *portAudioSink) Close() error {
	s.Stop()
	return nil
}

// Name returns "portaudio".
func (s *portAudioSink) Name() string {
	return "portaudio"
}

package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// portAudioSource captures microphone audio through PortAudio.
//
// The PortAudio stream is opened on Start and closed on Stop, so the
// microphone is only held while a recording session is active. A failure
// to initialize or open the stream (no device, permission denied) is
// returned from Start and no capture begins.
type portAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	frames  chan []float32
	stopCh  chan struct{}
	doneCh  chan struct{}
	stream  *portaudio.Stream

	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &portAudioSource{
		cfg:    cfg,
		logger: logger.With("component", "capture.portaudio"),
	}, nil
}

// Start initializes PortAudio and opens the default input stream.
func (s *portAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: portaudio init: %w", err)
	}

	buf := make([]float32, s.cfg.FrameSize())
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.cfg.SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("capture: open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("capture: start input stream: %w", err)
	}

	s.stream = stream
	s.running = true
	s.frames = make(chan []float32, 16)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.readLoop(ctx, stream, buf, s.frames, s.stopCh, s.doneCh)

	s.logger.Info("portaudio capture started",
		"sample_rate", s.cfg.SampleRate,
		"frame_size", len(buf),
	)

	return nil
}

// readLoop pulls frames from the hardware until stopped. It owns the
// frames channel and closes it on exit.
func (s *portAudioSource) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32, frames chan<- []float32, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer close(frames)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			// Overflow means we lost samples but the stream is alive.
			if err == portaudio.InputOverflowed {
				s.overruns.Add(1)
				continue
			}
			s.logger.Error("capture read failed", "error", err)
			return
		}

		frame := make([]float32, len(buf))
		copy(frame, buf)

		select {
		case frames <- frame:
			s.framesRead.Add(1)
			s.samplesRead.Add(int64(len(frame)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop halts capture and releases the input stream.
func (s *portAudioSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stream := s.stream
	done := s.doneCh
	s.stream = nil
	s.mu.Unlock()

	// Let the read loop observe the stop before tearing the stream down.
	<-done

	var err error
	if stream != nil {
		if e := stream.Stop(); e != nil {
			err = e
		}
		if e := stream.Close(); e != nil && err == nil {
			err = e
		}
	}
	portaudio.Terminate()

	s.logger.Info("portaudio capture stopped")
	return err
}

// Frames returns the frame channel.
func (s *portAudioSource) Frames() <-chan []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Config returns the capture configuration.
func (s *portAudioSource) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *portAudioSource) Name() string {
	return "portaudio"
}

// Close releases all resources.
func (s *portAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	s.mu.Unlock()

	if running {
		return s.Stop()
	}
	return nil
}

// Stats returns capture statistics.
func (s *portAudioSource) Stats() Stats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return Stats{
		FramesRead:  s.framesRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

var _ SourceWithStats = (*portAudioSource)(nil)

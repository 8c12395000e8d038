package voiceclient

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voiceform/go-voiceform/pkg/pcm"
	"github.com/voiceform/go-voiceform/pkg/protocol"
)

// sendFunc delivers one outbound message to the transport.
type sendFunc func(msg protocol.Outbound) error

// recorder owns one recording session's audio buffering and the quality
// gates applied when it finishes. In batch mode it accumulates the whole
// utterance, silence included, and emits a single prefixed text message.
// In streaming mode it flushes incremental audio_chunk messages on a
// duration cadence and closes the utterance with audio_end.
type recorder struct {
	mode              Mode
	sampleRate        int
	minUtterance      time.Duration
	maxUtterance      time.Duration
	silenceThreshold  float64
	lowLevelThreshold float64
	streamFlush       time.Duration
	minStreamFlush    time.Duration
	send              sendFunc
	logger            *slog.Logger

	mu        sync.Mutex
	recording bool
	buf       []float32 // whole utterance (batch) or unflushed tail (streaming)
	streamed  int       // samples already flushed in this session
	chunks    int       // chunks ingested in this session
}

func newRecorder(cfg *Config, send sendFunc) *recorder {
	return &recorder{
		mode:              cfg.Mode,
		sampleRate:        cfg.SampleRate,
		minUtterance:      cfg.MinUtterance,
		maxUtterance:      cfg.MaxUtterance,
		silenceThreshold:  cfg.SilenceThreshold,
		lowLevelThreshold: cfg.LowLevelThreshold,
		streamFlush:       cfg.StreamFlush,
		minStreamFlush:    cfg.MinStreamFlush,
		send:              send,
		logger:            cfg.Logger.With("component", "recorder"),
	}
}

// Start begins a new session, discarding any leftover state.
func (r *recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyRecording
	}
	r.recording = true
	r.buf = r.buf[:0]
	r.streamed = 0
	r.chunks = 0
	return nil
}

// Recording reports whether a session is active.
func (r *recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// OnChunk ingests one accumulator chunk. Chunks arriving after the
// session ended are dropped, so an abort takes effect immediately even
// while the capture pipeline drains.
func (r *recorder) OnChunk(chunk []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.chunks++
	r.buf = append(r.buf, chunk...)

	if r.mode == ModeStreaming && r.duration(len(r.buf)) >= r.streamFlush {
		r.flushLocked()
	}
}

// Stop ends the session and delivers the recorded audio. A quality-gate
// rejection (ErrTooShort, ErrNoAudioContent) means nothing was sent.
func (r *recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return ErrNotRecording
	}
	r.recording = false

	if r.mode == ModeStreaming {
		return r.finishStreamLocked()
	}
	return r.finishBatchLocked()
}

// Abort ends the session without sending anything.
func (r *recorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.buf = r.buf[:0]
	r.streamed = 0
}

func (r *recorder) finishBatchLocked() error {
	samples := r.buf
	dur := r.duration(len(samples))

	if dur < r.minUtterance {
		r.logger.Warn("recording rejected",
			"reason", "too short",
			"duration", dur,
			"minimum", r.minUtterance)
		return ErrTooShort
	}

	level := pcm.MeanAbs(samples)
	if level < r.silenceThreshold {
		r.logger.Warn("recording rejected",
			"reason", "no audio content",
			"mean_abs", level,
			"threshold", r.silenceThreshold)
		return ErrNoAudioContent
	}
	if level < r.lowLevelThreshold {
		r.logger.Warn("input level low, check microphone gain",
			"mean_abs", level,
			"threshold", r.lowLevelThreshold)
	}

	if dur > r.maxUtterance {
		keep := r.samples(r.maxUtterance)
		r.logger.Warn("recording truncated",
			"duration", dur,
			"maximum", r.maxUtterance)
		samples = samples[:keep]
	}

	r.logger.Info("sending batch recording",
		"duration", r.duration(len(samples)),
		"chunks", r.chunks,
		"mean_abs", level)
	return r.send(protocol.BatchAudioMessage(pcm.EncodePCM16(samples)))
}

func (r *recorder) finishStreamLocked() error {
	tail := r.duration(len(r.buf))
	if tail >= r.minStreamFlush {
		if err := r.flushLocked(); err != nil {
			return err
		}
	} else if len(r.buf) > 0 {
		r.logger.Debug("discarding sub-minimum tail", "duration", tail)
		r.buf = r.buf[:0]
	}

	if r.streamed == 0 {
		r.logger.Warn("recording rejected",
			"reason", "too short",
			"minimum", r.minStreamFlush)
		return ErrTooShort
	}

	r.logger.Info("stream finished",
		"duration", r.duration(r.streamed),
		"chunks", r.chunks)
	return r.send(protocol.AudioEnd{})
}

// flushLocked sends the buffered samples as one audio_chunk.
func (r *recorder) flushLocked() error {
	if len(r.buf) == 0 {
		return nil
	}
	data := pcm.EncodePCM16(r.buf)
	r.streamed += len(r.buf)
	r.buf = r.buf[:0]
	return r.send(protocol.AudioChunkOut{Audio: data})
}

func (r *recorder) duration(n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(r.sampleRate)
}

func (r *recorder) samples(d time.Duration) int {
	return int(d * time.Duration(r.sampleRate) / time.Second)
}

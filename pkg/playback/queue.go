package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voiceform/go-voiceform/pkg/pcm"
)

// DefaultGap is the pause inserted between consecutive chunks to avoid
// audible clicking from back-to-back buffers.
const DefaultGap = 50 * time.Millisecond

// QueueConfig configures a playback Queue.
type QueueConfig struct {
	// SampleRate is the rate raw PCM16 payloads are played at.
	// Default: 16000
	SampleRate int

	// Gap is the pause between consecutive chunks. Default: 50ms.
	Gap time.Duration

	// Sinks creates the output device for each playback. Default: PortAudio.
	Sinks SinkFactory

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

type item struct {
	data   []byte
	format pcm.Format
}

type stopper interface {
	Stop()
}

// fallbackPlayer is the last-resort path for undecodable audio.
type fallbackPlayer interface {
	Play(data []byte) error
	Stop()
}

// Queue owns one playback lifecycle: chunks are played strictly in
// arrival order, chained with a short gap, and a hard stop invalidates
// every in-flight continuation via a generation counter. Any continuation
// scheduled before the stop observes a stale generation and does nothing.
type Queue struct {
	sampleRate int
	gap        time.Duration
	newSink    SinkFactory
	logger     *slog.Logger

	// Test seams for the MP3 path.
	decode      func(data []byte) ([]float32, int, error)
	newFallback func(logger *slog.Logger) fallbackPlayer

	mu      sync.Mutex
	session int64
	pending []item
	playing bool
	current stopper

	onError func(err error)
	onState func(playing bool)
}

// NewQueue creates a playback queue.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Gap == 0 {
		cfg.Gap = DefaultGap
	}
	if cfg.Sinks == nil {
		cfg.Sinks = newPortAudioSink
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Queue{
		sampleRate: cfg.SampleRate,
		gap:        cfg.Gap,
		newSink:    cfg.Sinks,
		logger:     cfg.Logger.With("component", "playback.queue"),
		decode:     decodeMP3,
		newFallback: func(logger *slog.Logger) fallbackPlayer {
			return newExecPlayer(logger)
		},
	}
}

// OnError sets the error callback.
func (q *Queue) OnError(fn func(err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onError = fn
}

// OnStateChange sets the playing-state callback.
func (q *Queue) OnStateChange(fn func(playing bool)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onState = fn
}

// Enqueue appends a chunk to the queue and begins playback if idle.
// The hint names the payload format; FormatAuto sniffs the bytes.
func (q *Queue) Enqueue(data []byte, hint pcm.Format) {
	q.mu.Lock()
	q.pending = append(q.pending, item{data: data, format: hint})
	if q.playing {
		q.mu.Unlock()
		return
	}
	q.playing = true
	sid := q.session
	q.mu.Unlock()

	q.emitState(true)
	go q.playNext(sid)
}

// StopAllNow hard-stops playback: it bumps the generation counter so
// every pending continuation becomes a no-op, aborts the currently
// playing source, and clears the queue. Safe to call at any time, from
// any goroutine, repeatedly.
func (q *Queue) StopAllNow() {
	q.mu.Lock()
	q.session++
	q.pending = nil
	wasPlaying := q.playing
	q.playing = false
	cur := q.current
	q.current = nil
	q.mu.Unlock()

	if cur != nil {
		cur.Stop()
	}
	if wasPlaying {
		q.emitState(false)
	}
}

// IsPlaying reports whether a chunk is playing or queued.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// PendingChunks returns the number of queued, not-yet-played chunks.
func (q *Queue) PendingChunks() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// playNext pops and plays the head of the queue. sid is the generation
// this continuation belongs to; a mismatch means a hard stop happened
// after it was scheduled and it must do nothing.
func (q *Queue) playNext(sid int64) {
	q.mu.Lock()
	if sid != q.session {
		q.mu.Unlock()
		return
	}
	if len(q.pending) == 0 {
		q.playing = false
		q.mu.Unlock()
		q.emitState(false)
		return
	}
	it := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()

	q.playItem(sid, it)
}

func (q *Queue) playItem(sid int64, it item) {
	format := it.format
	if format == pcm.FormatAuto || format == "" {
		format = pcm.Sniff(it.data)
	}

	var samples []float32
	rate := q.sampleRate

	switch format {
	case pcm.FormatMP3:
		var err error
		samples, rate, err = q.decode(it.data)
		if err != nil {
			q.logger.Warn("mp3 decode failed, handing to system player", "error", err)
			q.playFallback(sid, it.data)
			return
		}
	default:
		samples = pcm.DecodePCM16(it.data)
	}

	sink, err := q.newSink(q.logger)
	if err != nil {
		q.fail(fmt.Errorf("playback: create sink: %w", err))
		return
	}

	if !q.setCurrent(sid, sink) {
		sink.Close()
		return
	}

	playErr := sink.Play(samples, rate)
	q.clearCurrent(sink)
	sink.Close()

	if playErr != nil {
		q.fail(playErr)
		return
	}
	q.scheduleNext(sid)
}

// playFallback plays undecodable audio through the external system
// player. If that fails too, the error is surfaced and the queue resets
// to idle.
func (q *Queue) playFallback(sid int64, data []byte) {
	p := q.newFallback(q.logger)

	if !q.setCurrent(sid, p) {
		return
	}

	err := p.Play(data)
	q.clearCurrent(p)

	if err != nil {
		q.fail(err)
		return
	}
	q.scheduleNext(sid)
}

// scheduleNext chains the next chunk after the inter-chunk gap. The
// continuation captures the generation it was scheduled under.
func (q *Queue) scheduleNext(sid int64) {
	time.AfterFunc(q.gap, func() {
		q.mu.Lock()
		stale := sid != q.session
		q.mu.Unlock()
		if stale {
			return
		}
		q.playNext(sid)
	})
}

func (q *Queue) setCurrent(sid int64, s stopper) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if sid != q.session {
		return false
	}
	q.current = s
	return true
}

func (q *Queue) clearCurrent(s stopper) {
	q.mu.Lock()
	if q.current == s {
		q.current = nil
	}
	q.mu.Unlock()
}

// fail surfaces a playback error and resets the queue to idle.
func (q *Queue) fail(err error) {
	q.mu.Lock()
	q.pending = nil
	q.playing = false
	q.current = nil
	q.mu.Unlock()

	q.logger.Error("playback failed", "error", err)
	q.emitError(err)
	q.emitState(false)
}

func (q *Queue) emitError(err error) {
	q.mu.Lock()
	fn := q.onError
	q.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (q *Queue) emitState(playing bool) {
	q.mu.Lock()
	fn := q.onState
	q.mu.Unlock()
	if fn != nil {
		fn(playing)
	}
}

package playback

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/voiceform/go-voiceform/pkg/pcm"
)

// sinkRecorder hands out mock sinks and remembers them.
type sinkRecorder struct {
	mu    sync.Mutex
	opts  []MockSinkOption
	sinks []*MockSink
}

func (r *sinkRecorder) factory(logger *slog.Logger) (Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := NewMockSink(r.opts...)
	r.sinks = append(r.sinks, s)
	return s, nil
}

func (r *sinkRecorder) created() []*MockSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*MockSink, len(r.sinks))
	copy(out, r.sinks)
	return out
}

func newTestQueue(t *testing.T, rec *sinkRecorder, gap time.Duration) *Queue {
	t.Helper()
	return NewQueue(QueueConfig{
		SampleRate: 16000,
		Gap:        gap,
		Sinks:      rec.factory,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestQueuePlaysInArrivalOrder(t *testing.T) {
	rec := &sinkRecorder{}
	q := newTestQueue(t, rec, time.Millisecond)

	first := pcm.EncodePCM16([]float32{0.1, 0.1})
	second := pcm.EncodePCM16([]float32{0.2, 0.2})
	third := pcm.EncodePCM16([]float32{0.3, 0.3})

	q.Enqueue(first, pcm.FormatPCM16)
	q.Enqueue(second, pcm.FormatPCM16)
	q.Enqueue(third, pcm.FormatPCM16)

	waitFor(t, time.Second, func() bool { return !q.IsPlaying() && len(rec.created()) == 3 })

	sinks := rec.created()
	wantFirst := []float32{0.1, 0.2, 0.3}
	for i, s := range sinks {
		played := s.Played()
		if len(played) != 1 {
			t.Fatalf("sink %d played %d buffers, want 1", i, len(played))
		}
		got := float64(played[0][0])
		want := float64(wantFirst[i])
		if got < want-0.001 || got > want+0.001 {
			t.Errorf("sink %d first sample: got %g, want ~%g", i, got, want)
		}
	}
}

func TestQueueIdleAfterDrain(t *testing.T) {
	rec := &sinkRecorder{}
	q := newTestQueue(t, rec, time.Millisecond)

	var mu sync.Mutex
	var states []bool
	q.OnStateChange(func(playing bool) {
		mu.Lock()
		states = append(states, playing)
		mu.Unlock()
	})

	q.Enqueue(pcm.EncodePCM16([]float32{0.1}), pcm.FormatPCM16)
	waitFor(t, time.Second, func() bool { return !q.IsPlaying() })

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != true || states[len(states)-1] != false {
		t.Errorf("state transitions: got %v, want playing then idle", states)
	}
}

func TestQueueStaleContinuationIsNoOp(t *testing.T) {
	rec := &sinkRecorder{}
	// Long gap so the hard stop lands while a continuation is pending.
	q := newTestQueue(t, rec, 100*time.Millisecond)

	q.Enqueue(pcm.EncodePCM16([]float32{0.1}), pcm.FormatPCM16)
	q.Enqueue(pcm.EncodePCM16([]float32{0.2}), pcm.FormatPCM16)

	// Wait until the first chunk finished; the second is waiting on the gap.
	waitFor(t, time.Second, func() bool { return len(rec.created()) == 1 && len(rec.created()[0].Played()) == 1 })

	q.StopAllNow()

	// The scheduled continuation fires into a stale generation: nothing
	// further may play.
	time.Sleep(250 * time.Millisecond)

	if got := len(rec.created()); got != 1 {
		t.Errorf("sinks created after hard stop: got %d, want 1", got)
	}
	if q.IsPlaying() {
		t.Error("queue still playing after hard stop")
	}
	if got := q.PendingChunks(); got != 0 {
		t.Errorf("pending chunks after hard stop: got %d, want 0", got)
	}
}

func TestQueueHardStopAbortsCurrentPlayback(t *testing.T) {
	rec := &sinkRecorder{opts: []MockSinkOption{WithPlayTime(5 * time.Second)}}
	q := newTestQueue(t, rec, time.Millisecond)

	q.Enqueue(pcm.EncodePCM16(make([]float32, 8000)), pcm.FormatPCM16)
	waitFor(t, time.Second, func() bool { return len(rec.created()) == 1 })

	start := time.Now()
	q.StopAllNow()
	waitFor(t, time.Second, func() bool { return rec.created()[0].Stopped() })

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("hard stop took %v, want immediate", elapsed)
	}

	// Idempotent from any state.
	q.StopAllNow()
	q.StopAllNow()
}

func TestQueueAutoHintSniffsFormat(t *testing.T) {
	rec := &sinkRecorder{}
	q := newTestQueue(t, rec, time.Millisecond)

	var decoded [][]byte
	var mu sync.Mutex
	q.decode = func(data []byte) ([]float32, int, error) {
		mu.Lock()
		decoded = append(decoded, data)
		mu.Unlock()
		return []float32{0}, 24000, nil
	}

	id3 := append([]byte("ID3"), make([]byte, 16)...)
	q.Enqueue(id3, pcm.FormatAuto)
	waitFor(t, time.Second, func() bool { return !q.IsPlaying() })

	mu.Lock()
	defer mu.Unlock()
	if len(decoded) != 1 {
		t.Fatalf("mp3 decode invoked %d times, want 1", len(decoded))
	}

	sinks := rec.created()
	if len(sinks) != 1 {
		t.Fatalf("sinks created: got %d, want 1", len(sinks))
	}
	if rates := sinks[0].Rates(); len(rates) != 1 || rates[0] != 24000 {
		t.Errorf("played at %v, want decoder rate 24000", rates)
	}
}

type fakeFallback struct {
	mu     sync.Mutex
	played [][]byte
	err    error
}

func (f *fakeFallback) Play(data []byte) error {
	f.mu.Lock()
	f.played = append(f.played, data)
	f.mu.Unlock()
	return f.err
}

func (f *fakeFallback) Stop() {}

func TestQueueDecodeFailureUsesFallback(t *testing.T) {
	rec := &sinkRecorder{}
	q := newTestQueue(t, rec, time.Millisecond)

	fb := &fakeFallback{}
	q.decode = func(data []byte) ([]float32, int, error) {
		return nil, 0, errors.New("bad frame")
	}
	q.newFallback = func(logger *slog.Logger) fallbackPlayer { return fb }

	id3 := append([]byte("ID3"), make([]byte, 8)...)
	q.Enqueue(id3, pcm.FormatAuto)
	waitFor(t, time.Second, func() bool { return !q.IsPlaying() })

	fb.mu.Lock()
	played := len(fb.played)
	fb.mu.Unlock()
	if played != 1 {
		t.Errorf("fallback played %d buffers, want 1", played)
	}
	if got := len(rec.created()); got != 0 {
		t.Errorf("PCM sink used for undecodable mp3: %d sinks", got)
	}
}

func TestQueueFallbackFailureResetsToIdle(t *testing.T) {
	rec := &sinkRecorder{}
	q := newTestQueue(t, rec, time.Millisecond)

	var mu sync.Mutex
	var gotErr error
	q.OnError(func(err error) {
		mu.Lock()
		gotErr = err
		mu.Unlock()
	})

	q.decode = func(data []byte) ([]float32, int, error) {
		return nil, 0, errors.New("bad frame")
	}
	q.newFallback = func(logger *slog.Logger) fallbackPlayer {
		return &fakeFallback{err: errors.New("no player")}
	}

	q.Enqueue(append([]byte("ID3"), 0), pcm.FormatMP3)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	})

	if q.IsPlaying() {
		t.Error("queue not reset to idle after fallback failure")
	}
}

func TestDecodeMP3RejectsGarbage(t *testing.T) {
	if _, _, err := decodeMP3([]byte{0x01, 0x02, 0x03, 0x04}); err == nil {
		t.Error("expected error decoding garbage")
	}
}

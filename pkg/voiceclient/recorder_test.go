package voiceclient

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/voiceform/go-voiceform/pkg/pcm"
	"github.com/voiceform/go-voiceform/pkg/protocol"
)

// sentMessages captures outbound messages in order.
type sentMessages struct {
	mu   sync.Mutex
	msgs []protocol.Outbound
	err  error
}

func (s *sentMessages) send(m protocol.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *sentMessages) all() []protocol.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Outbound, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func newTestRecorder(mode Mode, send sendFunc) *recorder {
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRecorder(cfg, send)
}

// samplesFor returns n samples at constant amplitude.
func samplesFor(n int, amp float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = amp
	}
	return s
}

func TestBatchTooShortRejected(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(6400, 0.02)) // 0.4s at 16kHz

	err := r.Stop()
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("Stop = %v, want ErrTooShort", err)
	}
	if len(sent.all()) != 0 {
		t.Fatalf("rejected recording must not send, got %d messages", len(sent.all()))
	}
}

func TestBatchSilentRejected(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(16000, 0.001)) // 1s, below the 0.005 gate

	err := r.Stop()
	if !errors.Is(err, ErrNoAudioContent) {
		t.Fatalf("Stop = %v, want ErrNoAudioContent", err)
	}
	if len(sent.all()) != 0 {
		t.Fatalf("silent recording must not send, got %d messages", len(sent.all()))
	}
}

func TestBatchMinimumDurationAccepted(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(8000, 0.01)) // exactly 0.5s

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	msgs := sent.all()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	tm, ok := msgs[0].(protocol.TextMessage)
	if !ok {
		t.Fatalf("got %T, want TextMessage", msgs[0])
	}
	if !protocol.IsBatchAudio(tm.Text) {
		t.Fatal("batch message missing audio prefix")
	}
}

func TestBatchIncludesInteriorSilence(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(8000, 0.05))
	r.OnChunk(samplesFor(8000, 0)) // silent interior chunk
	r.OnChunk(samplesFor(8000, 0.05))

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data := decodeBatch(t, sent.all())
	if got, want := len(data), 3*8000*2; got != want {
		t.Fatalf("payload = %d bytes, want %d (silence must be kept)", got, want)
	}
}

func TestBatchTruncatedAtMaximum(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// 65 seconds in 0.5s chunks.
	for i := 0; i < 130; i++ {
		r.OnChunk(samplesFor(8000, 0.02))
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data := decodeBatch(t, sent.all())
	if got, want := len(data), 60*16000*2; got != want {
		t.Fatalf("payload = %d bytes, want %d (truncated to 60s)", got, want)
	}
}

func TestBatchEndToEndPayload(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 20; i++ {
		r.OnChunk(samplesFor(8000, 0.02))
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data := decodeBatch(t, sent.all())
	// 20 chunks x 8000 samples = 10s of PCM16.
	if got, want := len(data), 20*8000*2; got != want {
		t.Fatalf("payload = %d bytes, want %d", got, want)
	}
	samples := pcm.DecodePCM16(data)
	if got := pcm.MeanAbs(samples); got < 0.019 || got > 0.021 {
		t.Fatalf("round-tripped level = %v, want ~0.02", got)
	}
}

func TestStreamingFlushCadence(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeStreaming, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Three full 0.5s chunks, each reaching the flush threshold.
	for i := 0; i < 3; i++ {
		r.OnChunk(samplesFor(8000, 0.02))
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	msgs := sent.all()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 3 chunks + audio_end", len(msgs))
	}
	for i := 0; i < 3; i++ {
		chunk, ok := msgs[i].(protocol.AudioChunkOut)
		if !ok {
			t.Fatalf("message %d is %T, want AudioChunkOut", i, msgs[i])
		}
		if got, want := len(chunk.Audio), 8000*2; got != want {
			t.Fatalf("chunk %d = %d bytes, want %d", i, got, want)
		}
	}
	if _, ok := msgs[3].(protocol.AudioEnd); !ok {
		t.Fatalf("final message is %T, want AudioEnd", msgs[3])
	}
}

func TestStreamingShortTailDiscarded(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeStreaming, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(8000, 0.02)) // flushed
	r.OnChunk(samplesFor(3200, 0.02)) // 0.2s tail, under the 0.3s minimum

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	msgs := sent.all()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want chunk + audio_end", len(msgs))
	}
	if _, ok := msgs[0].(protocol.AudioChunkOut); !ok {
		t.Fatalf("message 0 is %T, want AudioChunkOut", msgs[0])
	}
	if _, ok := msgs[1].(protocol.AudioEnd); !ok {
		t.Fatalf("message 1 is %T, want AudioEnd", msgs[1])
	}
}

func TestStreamingFinalTailFlushed(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeStreaming, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(6400, 0.02)) // 0.4s, under cadence but over the 0.3s minimum

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	msgs := sent.all()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want chunk + audio_end", len(msgs))
	}
	chunk := msgs[0].(protocol.AudioChunkOut)
	if got, want := len(chunk.Audio), 6400*2; got != want {
		t.Fatalf("tail chunk = %d bytes, want %d", got, want)
	}
}

func TestStreamingNothingStreamedRejected(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeStreaming, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(1600, 0.02)) // 0.1s only

	err := r.Stop()
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("Stop = %v, want ErrTooShort", err)
	}
	if len(sent.all()) != 0 {
		t.Fatalf("got %d messages, want none", len(sent.all()))
	}
}

func TestChunksAfterAbortDropped(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.OnChunk(samplesFor(8000, 0.02))
	r.Abort()
	r.OnChunk(samplesFor(8000, 0.02)) // late chunk from a draining pipeline

	if r.Recording() {
		t.Fatal("still recording after Abort")
	}
	if err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop after Abort = %v, want ErrNotRecording", err)
	}
	if len(sent.all()) != 0 {
		t.Fatalf("aborted session must not send, got %d messages", len(sent.all()))
	}
}

func TestStartWhileRecording(t *testing.T) {
	var sent sentMessages
	r := newTestRecorder(ModeBatch, sent.send)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start = %v, want ErrAlreadyRecording", err)
	}
}

// decodeBatch extracts the PCM16 payload from a single batch message.
func decodeBatch(t *testing.T, msgs []protocol.Outbound) []byte {
	t.Helper()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	tm, ok := msgs[0].(protocol.TextMessage)
	if !ok {
		t.Fatalf("got %T, want TextMessage", msgs[0])
	}
	if !protocol.IsBatchAudio(tm.Text) {
		t.Fatal("batch message missing audio prefix")
	}
	b64 := strings.TrimPrefix(tm.Text, protocol.BatchAudioPrefix)
	data, err := pcm.DecodeBase64(b64)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return data
}

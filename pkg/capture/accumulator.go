package capture

import (
	"sync"
	"sync/atomic"
)

// Accumulator re-chunks hardware frames into fixed-size chunks.
//
// It sits between the capture callback and the control layer: frames of
// whatever size the hardware delivers go in, chunks of exactly chunkSize
// samples come out, and any remainder is retained for the next frame.
// Emitted chunks are freshly allocated, so ownership transfers to the
// receiver; the accumulator never touches a chunk after emitting it and
// never retains a reference to an ingested frame.
//
// Emission never blocks. If the receiver falls behind and the output
// channel is full, the chunk is dropped and counted as an overrun.
type Accumulator struct {
	chunkSize int
	out       chan []float32

	mu  sync.Mutex
	buf []float32

	chunksEmitted atomic.Int64
	samplesSeen   atomic.Int64
	overruns      atomic.Int64
}

// NewAccumulator creates an accumulator emitting chunks of chunkSize samples.
func NewAccumulator(chunkSize int) *Accumulator {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Accumulator{
		chunkSize: chunkSize,
		out:       make(chan []float32, 16),
		buf:       make([]float32, 0, chunkSize),
	}
}

// Chunks returns the channel on which chunks are emitted.
func (a *Accumulator) Chunks() <-chan []float32 {
	return a.out
}

// Ingest appends a frame to the internal buffer, emitting a chunk each
// time the buffer reaches the configured chunk size. The frame is copied;
// the caller keeps ownership of it.
func (a *Accumulator) Ingest(frame []float32) {
	if len(frame) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.samplesSeen.Add(int64(len(frame)))
	a.buf = append(a.buf, frame...)

	for len(a.buf) >= a.chunkSize {
		chunk := make([]float32, a.chunkSize)
		copy(chunk, a.buf[:a.chunkSize])
		a.buf = append(a.buf[:0], a.buf[a.chunkSize:]...)
		a.emit(chunk)
	}
}

// Flush emits whatever remains in the buffer, even if shorter than a full
// chunk. Called by the control layer when recording stops.
func (a *Accumulator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buf) == 0 {
		return
	}

	chunk := make([]float32, len(a.buf))
	copy(chunk, a.buf)
	a.buf = a.buf[:0]
	a.emit(chunk)
}

// Reset discards any buffered samples without emitting them.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.buf = a.buf[:0]
	a.mu.Unlock()
}

// Buffered returns the number of samples currently retained.
func (a *Accumulator) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// ChunksEmitted returns the total number of chunks emitted.
func (a *Accumulator) ChunksEmitted() int64 {
	return a.chunksEmitted.Load()
}

// Overruns returns the number of chunks dropped because the receiver was
// not keeping up.
func (a *Accumulator) Overruns() int64 {
	return a.overruns.Load()
}

func (a *Accumulator) emit(chunk []float32) {
	select {
	case a.out <- chunk:
		a.chunksEmitted.Add(1)
	default:
		a.overruns.Add(1)
	}
}

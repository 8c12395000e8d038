package pcm

import (
	"math"
	"testing"
)

func TestEncodePCM16Length(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8000, 16001} {
		samples := make([]float32, n)
		if got := len(EncodePCM16(samples)); got != 2*n {
			t.Errorf("encode of %d samples: got %d bytes, want %d", n, got, 2*n)
		}
	}
}

func TestRoundTripWithinQuantizationStep(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.1))
	}

	decoded := DecodePCM16(EncodePCM16(samples))
	if len(decoded) != len(samples) {
		t.Fatalf("round trip length: got %d, want %d", len(decoded), len(samples))
	}

	const step = 1.0 / 32768
	for i := range samples {
		diff := math.Abs(float64(samples[i]) - float64(decoded[i]))
		if diff > step {
			t.Fatalf("sample %d: diff %g exceeds quantization step %g", i, diff, step)
		}
	}
}

func TestEncodeIdempotentAfterFirstQuantization(t *testing.T) {
	samples := []float32{0, 0.25, -0.25, 0.9999, -0.9999, 1, -1}
	first := EncodePCM16(samples)
	second := EncodePCM16(DecodePCM16(first))

	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("byte %d differs after re-encode: %#x vs %#x", i, first[i], second[i])
		}
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	buf := EncodePCM16([]float32{2.0, -2.0})

	hi := int16(buf[0]) | int16(buf[1])<<8
	lo := int16(buf[2]) | int16(buf[3])<<8

	if hi != 32767 {
		t.Errorf("positive overflow: got %d, want 32767", hi)
	}
	if lo != -32768 {
		t.Errorf("negative overflow: got %d, want -32768", lo)
	}
}

func TestFullScaleRoundTripExact(t *testing.T) {
	buf := EncodePCM16([]float32{1, -1})

	hi := int16(buf[0]) | int16(buf[1])<<8
	lo := int16(buf[2]) | int16(buf[3])<<8
	if hi != 32767 || lo != -32768 {
		t.Fatalf("full scale encodes to %d, %d; want 32767, -32768", hi, lo)
	}

	decoded := DecodePCM16(buf)
	if decoded[0] != 1 || decoded[1] != -1 {
		t.Fatalf("full scale decodes to %v; want [1 -1]", decoded)
	}
}

func TestDecodeNegativeSamples(t *testing.T) {
	// 0x8000 is the most negative 16-bit value.
	got := DecodePCM16([]byte{0x00, 0x80})
	if len(got) != 1 || got[0] != -1 {
		t.Errorf("decode of 0x8000: got %v, want [-1]", got)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	data := make([]byte, 3*base64ChunkSize+17)
	for i := range data {
		data[i] = byte(i * 31)
	}

	decoded, err := DecodeBase64(EncodeBase64(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(data) {
		t.Fatalf("length mismatch: got %d, want %d", len(decoded), len(data))
	}
	for i := range data {
		if decoded[i] != data[i] {
			t.Fatalf("byte %d differs", i)
		}
	}
}

func TestMeanAbs(t *testing.T) {
	if got := MeanAbs(nil); got != 0 {
		t.Errorf("empty input: got %g, want 0", got)
	}
	if got := MeanAbs([]float32{0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("got %g, want 0.5", got)
	}
}

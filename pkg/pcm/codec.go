// Package pcm converts between normalized float samples and 16-bit
// little-endian PCM, and provides the transport encodings used on the
// voice wire (base64 text frames, format sniffing).
package pcm

import (
	"encoding/base64"
	"math"
	"strings"
)

// base64ChunkSize bounds how much input is fed to the encoder per write.
const base64ChunkSize = 32 * 1024

// EncodePCM16 converts normalized float samples in [-1, 1] to 16-bit
// little-endian PCM bytes. Samples outside the range are clamped.
// Negative samples scale by 32768 and non-negative ones by 32767, the
// inverse of DecodePCM16, so both full-scale values map exactly and an
// encode/decode/encode cycle reproduces the same bytes.
func EncodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 32768))
		} else {
			v = int16(math.Round(float64(s) * 32767))
		}
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	return buf
}

// DecodePCM16 converts 16-bit little-endian PCM bytes back to normalized
// float samples, the exact inverse scaling of EncodePCM16. A trailing
// odd byte is ignored.
func DecodePCM16(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		if v < 0 {
			samples[i] = float32(v) / 32768
		} else {
			samples[i] = float32(v) / 32767
		}
	}
	return samples
}

// EncodeBase64 encodes bytes as standard base64 text. The input is fed to
// the encoder in bounded sub-chunks so a single call never stages the whole
// buffer twice.
func EncodeBase64(data []byte) string {
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(data)))
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for len(data) > 0 {
		n := base64ChunkSize
		if n > len(data) {
			n = len(data)
		}
		enc.Write(data[:n])
		data = data[n:]
	}
	enc.Close()
	return sb.String()
}

// DecodeBase64 decodes standard base64 text back to bytes.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// MeanAbs returns the average absolute amplitude of the samples.
// Used by recording quality gates to detect silent takes.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

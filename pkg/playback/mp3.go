package playback

import (
	"bytes"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// decodeMP3 decodes an MP3 buffer to mono float samples and the decoder's
// native sample rate. go-mp3 always emits 16-bit little-endian stereo;
// channels are averaged down to mono.
func decodeMP3(data []byte) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("playback: mp3 decoder: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("playback: mp3 decode: %w", err)
	}

	// 4 bytes per stereo frame: L low, L high, R low, R high.
	frames := len(raw) / 4
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(raw[i*4]) | int16(raw[i*4+1])<<8
		r := int16(raw[i*4+2]) | int16(raw[i*4+3])<<8
		samples[i] = (float32(l) + float32(r)) / 2 / 32768
	}

	return samples, dec.SampleRate(), nil
}

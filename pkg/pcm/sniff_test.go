package pcm

import "testing"

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"frame sync", []byte{0xFF, 0xE0, 0x00}, FormatMP3},
		{"frame sync high bits", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"id3 tag", []byte{'I', 'D', '3', 0x04, 0x00}, FormatMP3},
		{"plain pcm", []byte{0x00, 0x01, 0x02, 0x03}, FormatPCM16},
		{"partial sync", []byte{0xFF, 0x1F, 0x00}, FormatPCM16},
		{"too short", []byte{0xFF, 0xE0}, FormatPCM16},
		{"empty", nil, FormatPCM16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data); got != tt.want {
				t.Errorf("Sniff(% x) = %s, want %s", tt.data, got, tt.want)
			}
		})
	}
}

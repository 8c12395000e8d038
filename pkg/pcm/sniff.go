package pcm

// Format identifies the container of an inbound audio payload.
type Format string

const (
	// FormatPCM16 is raw signed 16-bit little-endian PCM.
	FormatPCM16 Format = "pcm16"
	// FormatMP3 is an MP3 container (frame-synced or ID3-tagged).
	FormatMP3 Format = "mp3"
	// FormatAuto asks the receiver to sniff the payload.
	FormatAuto Format = "auto"
)

// Sniff classifies a byte buffer as MP3 or raw PCM16 by inspecting its
// leading bytes. An MP3 stream either starts with a frame sync (0xFF
// followed by a byte with the top three bits set) or an "ID3" tag.
// Anything else, including buffers shorter than three bytes, is treated
// as PCM16.
//
// This is a heuristic: PCM16 audio whose first bytes coincide with a
// frame-sync pattern will be misclassified. Callers should treat the
// result as a hint, not a guarantee.
func Sniff(data []byte) Format {
	if len(data) < 3 {
		return FormatPCM16
	}
	if data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}
	if data[0] == 'I' && data[1] == 'D' && data[2] == '3' {
		return FormatMP3
	}
	return FormatPCM16
}

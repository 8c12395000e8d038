// Package protocol defines the JSON wire protocol between the voiceform
// client and the voice server. Every frame is a JSON object with a
// required "type" discriminator; each tag carries only its own fields.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/voiceform/go-voiceform/pkg/pcm"
)

// Type is the message discriminator.
type Type string

// Wire message tags.
const (
	TypeAudioChunk   Type = "audio_chunk"
	TypeAudioEnd     Type = "audio_end"
	TypeTextMessage  Type = "text_message"
	TypeFormUpdate   Type = "form_update"
	TypeRoleChange   Type = "role_change"
	TypeFunctionCall Type = "function_call"
	TypeTranscript   Type = "transcript"
	TypeError        Type = "error"
)

// BatchAudioPrefix tags a text_message payload as embedded batch audio.
// The server strips the prefix and transcribes the base64 PCM16 that
// follows it.
const BatchAudioPrefix = "[VOICE_AUDIO_BASE64]"

// ErrUnknownType marks an inbound tag this client does not handle.
// Callers log and drop such messages; they are never fatal.
var ErrUnknownType = errors.New("protocol: unknown message type")

// envelope is the superset wire shape used for encoding and decoding.
type envelope struct {
	Type     Type              `json:"type"`
	Audio    string            `json:"audio,omitempty"`
	Format   string            `json:"format,omitempty"`
	Text     string            `json:"text,omitempty"`
	FormData map[string]any    `json:"form_data,omitempty"`
	AIRole   string            `json:"ai_role,omitempty"`
	Data     *FunctionCallData `json:"data,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// FunctionCallData is the payload of an inbound function_call.
type FunctionCallData struct {
	CallID  string        `json:"call_id,omitempty"`
	Name    string        `json:"name,omitempty"`
	Reply   string        `json:"reply,omitempty"`
	Updates []FieldUpdate `json:"updates,omitempty"`
}

// FieldUpdate is one suggested form-field value.
type FieldUpdate struct {
	Field      string `json:"field"`
	Suggestion any    `json:"suggestion"`
}

// Outbound is a client-to-server message.
type Outbound interface {
	envelope() envelope
}

// AudioChunkOut carries one streamed chunk of PCM16 audio.
type AudioChunkOut struct {
	Audio []byte
}

func (m AudioChunkOut) envelope() envelope {
	return envelope{Type: TypeAudioChunk, Audio: pcm.EncodeBase64(m.Audio)}
}

// AudioEnd marks the end of a streamed utterance.
type AudioEnd struct{}

func (AudioEnd) envelope() envelope {
	return envelope{Type: TypeAudioEnd}
}

// TextMessage carries chat text, or a batch-audio payload when the text
// starts with BatchAudioPrefix.
type TextMessage struct {
	Text string
}

func (m TextMessage) envelope() envelope {
	return envelope{Type: TypeTextMessage, Text: m.Text}
}

// BatchAudioMessage wraps finished batch audio in a prefixed TextMessage.
func BatchAudioMessage(pcmData []byte) TextMessage {
	return TextMessage{Text: BatchAudioPrefix + pcm.EncodeBase64(pcmData)}
}

// IsBatchAudio reports whether a text payload is tagged batch audio.
func IsBatchAudio(text string) bool {
	return len(text) >= len(BatchAudioPrefix) && text[:len(BatchAudioPrefix)] == BatchAudioPrefix
}

// FormUpdate publishes the current form state to the server.
type FormUpdate struct {
	FormData map[string]any
}

func (m FormUpdate) envelope() envelope {
	return envelope{Type: TypeFormUpdate, FormData: m.FormData}
}

// RoleChange switches the assistant persona.
type RoleChange struct {
	Role string
}

func (m RoleChange) envelope() envelope {
	return envelope{Type: TypeRoleChange, AIRole: m.Role}
}

// Encode serializes an outbound message to its wire form.
func Encode(m Outbound) ([]byte, error) {
	data, err := json.Marshal(m.envelope())
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %T: %w", m, err)
	}
	return data, nil
}

// Inbound is a server-to-client message.
type Inbound interface {
	isInbound()
}

// AudioChunkIn is one chunk of reply audio, already base64-decoded.
type AudioChunkIn struct {
	Data   []byte
	Format pcm.Format
}

func (AudioChunkIn) isInbound() {}

// FunctionCall asks the client to apply suggested form-field values.
type FunctionCall struct {
	CallID  string
	Name    string
	Reply   string
	Updates []FieldUpdate
}

func (FunctionCall) isInbound() {}

// Transcript is the server's transcription of user audio.
type Transcript struct {
	Text string
}

func (Transcript) isInbound() {}

// ServerError is an error reported by the server.
type ServerError struct {
	Message string
}

func (ServerError) isInbound() {}

// ParseInbound decodes one inbound wire frame into its typed variant.
// Unknown tags return ErrUnknownType (wrapped with the tag); malformed
// JSON or base64 returns a descriptive error. Neither is fatal to the
// connection.
func ParseInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: parse: %w", err)
	}

	switch env.Type {
	case TypeAudioChunk:
		audio, err := pcm.DecodeBase64(env.Audio)
		if err != nil {
			return nil, fmt.Errorf("protocol: audio_chunk payload: %w", err)
		}
		format := pcm.Format(env.Format)
		if format == "" {
			format = pcm.FormatAuto
		}
		return AudioChunkIn{Data: audio, Format: format}, nil

	case TypeFunctionCall:
		fc := FunctionCall{}
		if env.Data != nil {
			fc.CallID = env.Data.CallID
			fc.Name = env.Data.Name
			fc.Reply = env.Data.Reply
			fc.Updates = env.Data.Updates
		}
		return fc, nil

	case TypeTranscript:
		return Transcript{Text: env.Text}, nil

	case TypeError:
		return ServerError{Message: env.Message}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Package wire implements the two audio frame encodings spoken by Voice
// Ninja backends: a schema-framed binary format and a base64 JSON envelope.
package wire

import (
	"fmt"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
)

// Mode selects which frame encoding a session speaks.
type Mode string

const (
	// ModeSchemaFramed is the binary framing used by the pipeline backend.
	// Every payload is a binary frame message; audio rides in a nested
	// raw-audio message.
	ModeSchemaFramed Mode = "schema_framed"
	// ModeBase64JSON is the JSON envelope framing used by the widget
	// backend. Audio travels base64-encoded inside text messages.
	ModeBase64JSON Mode = "base64_json"
)

// IsValid reports whether m is a known transport mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSchemaFramed, ModeBase64JSON:
		return true
	}
	return false
}

// Message is a single websocket payload.
type Message struct {
	Data []byte
	// Binary selects the websocket frame type Data travels in.
	Binary bool
}

// Codec encodes outbound microphone PCM and decodes inbound agent audio for
// one transport mode. Implementations are stateless value types, safe for
// concurrent use.
type Codec interface {
	// Mode identifies the encoding.
	Mode() Mode
	// EncodeAudio wraps raw s16le PCM for transmission.
	EncodeAudio(pcm []byte, f audio.Format) (Message, error)
	// DecodeAudio extracts an audio frame from an inbound message. ok is
	// false when the message is well formed but carries no audio, for
	// example a control message or a frame without an audio payload.
	// A non-nil error means the payload was malformed; callers report it
	// and drop the message, the session itself is unaffected.
	DecodeAudio(msg Message) (frame audio.AudioFrame, ok bool, err error)
}

// NewCodec returns the codec for mode. f is the session audio format, used
// whenever an inbound payload does not describe its own.
func NewCodec(mode Mode, f audio.Format) (Codec, error) {
	switch mode {
	case ModeSchemaFramed:
		return SchemaCodec{Format: f}, nil
	case ModeBase64JSON:
		return EnvelopeCodec{Format: f}, nil
	default:
		return nil, fmt.Errorf("wire: unknown transport mode %q", mode)
	}
}

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
)

// Field numbers of the pipeline frame schema. The outer frame message
// carries one payload; audio rides in field 2 as a raw-audio message with
// sample bytes, sample rate and channel count.
const (
	frameFieldAudio = 2

	audioFieldData       = 3
	audioFieldSampleRate = 4
	audioFieldChannels   = 5
)

// SchemaCodec speaks the schema-framed binary encoding. Fields unknown to
// this client are skipped on decode, so schema growth on the backend does
// not break older clients.
type SchemaCodec struct {
	// Format supplies sample rate and channels when an inbound frame
	// omits them. Zero-valued varint fields are absent on the wire, so
	// this fallback is load-bearing, not cosmetic.
	Format audio.Format
}

var _ Codec = SchemaCodec{}

// Mode implements Codec.
func (SchemaCodec) Mode() Mode { return ModeSchemaFramed }

// EncodeAudio implements Codec.
func (c SchemaCodec) EncodeAudio(pcm []byte, f audio.Format) (Message, error) {
	var inner []byte
	inner = protowire.AppendTag(inner, audioFieldData, protowire.BytesType)
	inner = protowire.AppendBytes(inner, pcm)
	inner = protowire.AppendTag(inner, audioFieldSampleRate, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(f.SampleRate))
	inner = protowire.AppendTag(inner, audioFieldChannels, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(f.Channels))

	out := make([]byte, 0, len(inner)+8)
	out = protowire.AppendTag(out, frameFieldAudio, protowire.BytesType)
	out = protowire.AppendBytes(out, inner)
	return Message{Data: out, Binary: true}, nil
}

// DecodeAudio implements Codec. A frame without an audio payload decodes to
// ok == false with no error.
func (c SchemaCodec) DecodeAudio(msg Message) (audio.AudioFrame, bool, error) {
	if !msg.Binary {
		return audio.AudioFrame{}, false, nil
	}
	data := msg.Data
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed frame tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if num == frameFieldAudio && typ == protowire.BytesType {
			payload, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed audio payload: %w", protowire.ParseError(m))
			}
			return c.decodeRawAudio(payload)
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed frame field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return audio.AudioFrame{}, false, nil
}

func (c SchemaCodec) decodeRawAudio(data []byte) (audio.AudioFrame, bool, error) {
	frame := audio.AudioFrame{Format: c.Format}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed audio tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == audioFieldData && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed audio data: %w", protowire.ParseError(m))
			}
			frame.Data = b
			data = data[m:]
		case num == audioFieldSampleRate && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed sample rate: %w", protowire.ParseError(m))
			}
			frame.Format.SampleRate = int(v)
			data = data[m:]
		case num == audioFieldChannels && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed channel count: %w", protowire.ParseError(m))
			}
			frame.Format.Channels = int(v)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return audio.AudioFrame{}, false, fmt.Errorf("wire: malformed audio field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return frame, true, nil
}

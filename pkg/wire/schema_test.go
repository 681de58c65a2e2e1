package wire_test

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

func TestSchemaCodecRoundTrip(t *testing.T) {
	t.Parallel()

	codec := wire.SchemaCodec{Format: audio.Format{SampleRate: 16000, Channels: 1}}
	pcm := audio.Int16ToBytes([]int16{0, 100, -100, 32767, -32768})

	msg, err := codec.EncodeAudio(pcm, audio.Format{SampleRate: 24000, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeAudio: %v", err)
	}
	if !msg.Binary {
		t.Fatal("schema frames must be binary messages")
	}

	frame, ok, err := codec.DecodeAudio(msg)
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if !ok {
		t.Fatal("DecodeAudio: ok = false, want audio")
	}
	if !bytes.Equal(frame.Data, pcm) {
		t.Errorf("audio data changed across round trip")
	}
	if frame.Format.SampleRate != 24000 || frame.Format.Channels != 1 {
		t.Errorf("format = %v, want 24000Hz/1ch", frame.Format)
	}
}

func TestSchemaCodecNonAudioFrame(t *testing.T) {
	t.Parallel()

	codec := wire.SchemaCodec{Format: audio.Format{SampleRate: 16000, Channels: 1}}

	// A frame whose payload is field 1 (a text message), not audio.
	var inner []byte
	inner = protowire.AppendTag(inner, 3, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte("hello"))
	var data []byte
	data = protowire.AppendTag(data, 1, protowire.BytesType)
	data = protowire.AppendBytes(data, inner)

	frame, ok, err := codec.DecodeAudio(wire.Message{Data: data, Binary: true})
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if ok {
		t.Errorf("ok = true for non-audio frame, frame = %+v", frame)
	}
}

func TestSchemaCodecSkipsUnknownFields(t *testing.T) {
	t.Parallel()

	codec := wire.SchemaCodec{Format: audio.Format{SampleRate: 16000, Channels: 1}}
	pcm := []byte{1, 2, 3, 4}

	// Unknown varint field ahead of the audio payload, and unknown fields
	// inside it, must not break decoding.
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.VarintType) // id
	inner = protowire.AppendVarint(inner, 42)
	inner = protowire.AppendTag(inner, 3, protowire.BytesType) // audio
	inner = protowire.AppendBytes(inner, pcm)
	inner = protowire.AppendTag(inner, 4, protowire.VarintType) // sample_rate
	inner = protowire.AppendVarint(inner, 16000)
	inner = protowire.AppendTag(inner, 5, protowire.VarintType) // num_channels
	inner = protowire.AppendVarint(inner, 1)

	var data []byte
	data = protowire.AppendTag(data, 9, protowire.VarintType)
	data = protowire.AppendVarint(data, 7)
	data = protowire.AppendTag(data, 2, protowire.BytesType)
	data = protowire.AppendBytes(data, inner)

	frame, ok, err := codec.DecodeAudio(wire.Message{Data: data, Binary: true})
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want audio")
	}
	if !bytes.Equal(frame.Data, pcm) {
		t.Errorf("audio data = %v, want %v", frame.Data, pcm)
	}
}

func TestSchemaCodecFormatFallback(t *testing.T) {
	t.Parallel()

	codec := wire.SchemaCodec{Format: audio.Format{SampleRate: 16000, Channels: 1}}

	// Raw-audio message carrying only sample bytes. Rate and channels are
	// zero, which a varint encoder leaves off the wire entirely.
	var inner []byte
	inner = protowire.AppendTag(inner, 3, protowire.BytesType)
	inner = protowire.AppendBytes(inner, []byte{1, 2})
	var data []byte
	data = protowire.AppendTag(data, 2, protowire.BytesType)
	data = protowire.AppendBytes(data, inner)

	frame, ok, err := codec.DecodeAudio(wire.Message{Data: data, Binary: true})
	if err != nil || !ok {
		t.Fatalf("DecodeAudio: ok = %v, err = %v", ok, err)
	}
	if frame.Format.SampleRate != 16000 || frame.Format.Channels != 1 {
		t.Errorf("format = %v, want session fallback 16000Hz/1ch", frame.Format)
	}
}

func TestSchemaCodecMalformed(t *testing.T) {
	t.Parallel()

	codec := wire.SchemaCodec{Format: audio.Format{SampleRate: 16000, Channels: 1}}

	// Truncated length-delimited payload.
	var data []byte
	data = protowire.AppendTag(data, 2, protowire.BytesType)
	data = protowire.AppendVarint(data, 100) // claims 100 bytes, none follow

	if _, _, err := codec.DecodeAudio(wire.Message{Data: data, Binary: true}); err == nil {
		t.Error("DecodeAudio accepted a truncated frame")
	}
}

func TestSchemaCodecIgnoresText(t *testing.T) {
	t.Parallel()

	codec := wire.SchemaCodec{Format: audio.Format{SampleRate: 16000, Channels: 1}}
	_, ok, err := codec.DecodeAudio(wire.Message{Data: []byte(`{"type":"ping"}`)})
	if err != nil || ok {
		t.Errorf("text message: ok = %v, err = %v, want no-op", ok, err)
	}
}

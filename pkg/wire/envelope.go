package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
)

// audioEnvelope is the JSON shape of inbound agent audio in envelope mode.
type audioEnvelope struct {
	Type       string `json:"type"`
	DataB64    string `json:"data_b64"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// userAudioEnvelope is the JSON shape of outbound microphone audio.
type userAudioEnvelope struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// EnvelopeCodec speaks the JSON envelope encoding. Outbound audio travels as
// user_audio_chunk text messages; inbound audio arrives either as
// audio_chunk text messages or as raw binary PCM.
type EnvelopeCodec struct {
	// Format supplies sample rate and channels for raw binary payloads
	// and for envelopes that omit them.
	Format audio.Format
}

var _ Codec = EnvelopeCodec{}

// Mode implements Codec.
func (EnvelopeCodec) Mode() Mode { return ModeBase64JSON }

// EncodeAudio implements Codec. The envelope does not carry format fields;
// the session format is agreed at handshake time.
func (c EnvelopeCodec) EncodeAudio(pcm []byte, _ audio.Format) (Message, error) {
	data, err := json.Marshal(userAudioEnvelope{
		Type:    "user_audio_chunk",
		DataB64: base64.StdEncoding.EncodeToString(pcm),
	})
	if err != nil {
		return Message{}, fmt.Errorf("wire: marshal audio envelope: %w", err)
	}
	return Message{Data: data}, nil
}

// DecodeAudio implements Codec. Raw binary payloads pass through in the
// session format. Text payloads decode only when they are audio_chunk
// envelopes; anything else, including unparseable text, is a no-op so the
// caller can hand it to the control layer.
func (c EnvelopeCodec) DecodeAudio(msg Message) (audio.AudioFrame, bool, error) {
	if msg.Binary {
		return audio.AudioFrame{Data: msg.Data, Format: c.Format}, true, nil
	}
	var env audioEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return audio.AudioFrame{}, false, nil
	}
	if env.Type != "audio_chunk" {
		return audio.AudioFrame{}, false, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(env.DataB64)
	if err != nil {
		return audio.AudioFrame{}, false, fmt.Errorf("wire: decode audio payload: %w", err)
	}
	f := c.Format
	if env.SampleRate > 0 {
		f.SampleRate = env.SampleRate
	}
	if env.Channels > 0 {
		f.Channels = env.Channels
	}
	return audio.AudioFrame{Data: pcm, Format: f}, true, nil
}

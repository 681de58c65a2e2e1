package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
)

// recorder taps both directions of a conversation into WAV files, one pair
// per session. Writes after Close are silently dropped, so the device
// callback and the audio drain loop never race a teardown.
type recorder struct {
	format audio.Format
	conv   *audio.FormatConverter

	mu        sync.Mutex
	closed    bool
	mic       *audio.WAVWriter
	micFile   *os.File
	agent     *audio.WAVWriter
	agentFile *os.File
}

// newRecorder creates mic-<stamp>.wav and agent-<stamp>.wav in dir. Both
// files carry the session format; agent frames in another format are
// converted on write.
func newRecorder(dir string, f audio.Format) (*recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create dir: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")

	micFile, err := os.Create(filepath.Join(dir, "mic-"+stamp+".wav"))
	if err != nil {
		return nil, fmt.Errorf("recorder: create mic file: %w", err)
	}
	agentFile, err := os.Create(filepath.Join(dir, "agent-"+stamp+".wav"))
	if err != nil {
		micFile.Close()
		return nil, fmt.Errorf("recorder: create agent file: %w", err)
	}

	mic, err := audio.NewWAVWriter(micFile, f)
	if err != nil {
		micFile.Close()
		agentFile.Close()
		return nil, fmt.Errorf("recorder: mic header: %w", err)
	}
	agent, err := audio.NewWAVWriter(agentFile, f)
	if err != nil {
		micFile.Close()
		agentFile.Close()
		return nil, fmt.Errorf("recorder: agent header: %w", err)
	}

	return &recorder{
		format:    f,
		conv:      audio.NewFormatConverter(slog.Default()),
		mic:       mic,
		micFile:   micFile,
		agent:     agent,
		agentFile: agentFile,
	}, nil
}

// WriteMic appends one capture window to the mic track.
func (r *recorder) WriteMic(window []float32) {
	pcm := audio.Int16ToBytes(audio.FloatToPCM16(window))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, err := r.mic.Write(pcm); err != nil {
		slog.Warn("mic recording write failed", "err", err)
	}
}

// WriteAgent appends one agent frame to the agent track.
func (r *recorder) WriteAgent(frame audio.AudioFrame) {
	pcm := frame.Data
	if frame.Format != r.format {
		pcm = r.conv.Convert(pcm, frame.Format, r.format)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, err := r.agent.Write(pcm); err != nil {
		slog.Warn("agent recording write failed", "err", err)
	}
}

// Close finalises the WAV headers and closes both files. Idempotent.
func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	return errors.Join(
		r.mic.Close(),
		r.micFile.Close(),
		r.agent.Close(),
		r.agentFile.Close(),
	)
}

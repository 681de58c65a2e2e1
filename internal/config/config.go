// Package config provides the configuration schema, loader, and file watcher
// for the voice ninja client.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown or empty values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Duration wraps time.Duration so YAML values can be written as duration
// strings ("10s", "250ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for the client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Recording RecordingConfig `yaml:"recording"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds connection and logging settings for the agent backend.
type ServerConfig struct {
	// URL is the backend base URL (e.g., "wss://agent.example.com").
	URL string `yaml:"url"`

	// Mode selects the transport framing. Empty means base64_json.
	Mode wire.Mode `yaml:"mode"`

	// AgentID identifies which agent to talk to. Required for base64_json
	// mode, where it is part of the endpoint path.
	AgentID string `yaml:"agent_id"`

	// Username and Password authenticate schema_framed connections.
	// Prefer the NINJA_USERNAME / NINJA_PASSWORD environment variables over
	// writing credentials into the file.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Voice selects the agent voice for schema_framed connections.
	Voice string `yaml:"voice"`

	// Language is the conversation language tag (e.g., "en", "de").
	Language string `yaml:"language"`

	// Model overrides the speech model negotiated from Language.
	Model string `yaml:"model"`

	// ConnectTimeout bounds dial plus handshake. Zero means 10 seconds.
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds sample format and capture settings.
type AudioConfig struct {
	// SampleRate is the session sample rate in Hz. Zero means 16000.
	SampleRate int `yaml:"sample_rate"`

	// WindowMs is the capture window length in milliseconds. Zero means 50.
	WindowMs int `yaml:"window_ms"`

	// CaptureChannels overrides the microphone channel count when the
	// hardware cannot open mono. Zero means mono.
	CaptureChannels int `yaml:"capture_channels"`

	// PlaybackChannels overrides the speaker channel count. Zero means mono.
	PlaybackChannels int `yaml:"playback_channels"`
}

// VADConfig tunes barge-in detection. Both fields can be hot-reloaded
// through the [Watcher] while a conversation is running.
type VADConfig struct {
	// Threshold is the RMS energy above which a capture window counts as
	// voiced. Zero means 0.02.
	Threshold float64 `yaml:"threshold"`

	// RequiredWindows is how many consecutive voiced windows trigger a
	// barge-in. Zero means 3.
	RequiredWindows int `yaml:"required_windows"`
}

// PlaybackConfig tunes agent audio scheduling.
type PlaybackConfig struct {
	// SchedulingDelay is the lead time applied when a chunk would otherwise
	// start in the past. Zero means 50ms.
	SchedulingDelay Duration `yaml:"scheduling_delay"`

	// ResetThreshold is the silence gap after which the playback cursor is
	// considered stale. Zero means 2s.
	ResetThreshold Duration `yaml:"reset_threshold"`
}

// RecordingConfig controls writing both sides of the conversation to WAV
// files for later review.
type RecordingConfig struct {
	// Enabled turns recording on.
	Enabled bool `yaml:"enabled"`

	// Dir is the directory recordings are written to. Required when Enabled.
	Dir string `yaml:"dir"`
}

// TelemetryConfig controls the metrics and health endpoint.
type TelemetryConfig struct {
	// ListenAddr is the TCP address the telemetry HTTP server listens on
	// (e.g., "localhost:9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`
}

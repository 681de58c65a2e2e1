package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if u, err := url.Parse(cfg.Server.URL); err != nil {
		errs = append(errs, fmt.Errorf("server.url %q is not a valid URL: %v", cfg.Server.URL, err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("server.url scheme %q is invalid; valid values: ws, wss", u.Scheme))
	}

	mode := cfg.Server.Mode
	if mode == "" {
		mode = wire.ModeBase64JSON
	}
	if !mode.IsValid() {
		errs = append(errs, fmt.Errorf("server.mode %q is invalid; valid values: %s, %s",
			cfg.Server.Mode, wire.ModeBase64JSON, wire.ModeSchemaFramed))
	}
	if mode == wire.ModeBase64JSON && cfg.Server.AgentID == "" {
		errs = append(errs, fmt.Errorf("server.agent_id is required when server.mode is %s", wire.ModeBase64JSON))
	}
	if mode == wire.ModeSchemaFramed && cfg.Server.Username == "" {
		slog.Warn("server.username is empty; the connection will be unauthenticated")
	}
	if cfg.Server.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.connect_timeout %s must not be negative", cfg.Server.ConnectTimeout.Std()))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	switch cfg.Audio.SampleRate {
	case 0, 16000, 24000:
	default:
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; valid values: 16000, 24000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.WindowMs != 0 && (cfg.Audio.WindowMs < 10 || cfg.Audio.WindowMs > 200) {
		errs = append(errs, fmt.Errorf("audio.window_ms %d is out of range [10, 200]", cfg.Audio.WindowMs))
	}
	if c := cfg.Audio.CaptureChannels; c < 0 || c > 2 {
		errs = append(errs, fmt.Errorf("audio.capture_channels %d is out of range [0, 2]", c))
	}
	if c := cfg.Audio.PlaybackChannels; c < 0 || c > 2 {
		errs = append(errs, fmt.Errorf("audio.playback_channels %d is out of range [0, 2]", c))
	}

	// VAD
	if t := cfg.VAD.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.3f is out of range [0, 1]", t))
	}
	if cfg.VAD.RequiredWindows < 0 {
		errs = append(errs, fmt.Errorf("vad.required_windows %d must not be negative", cfg.VAD.RequiredWindows))
	}

	// Playback
	if cfg.Playback.SchedulingDelay < 0 {
		errs = append(errs, fmt.Errorf("playback.scheduling_delay %s must not be negative", cfg.Playback.SchedulingDelay.Std()))
	}
	if cfg.Playback.ResetThreshold < 0 {
		errs = append(errs, fmt.Errorf("playback.reset_threshold %s must not be negative", cfg.Playback.ResetThreshold.Std()))
	}

	// Recording
	if cfg.Recording.Enabled && cfg.Recording.Dir == "" {
		errs = append(errs, errors.New("recording.dir is required when recording.enabled is true"))
	}

	return errors.Join(errs...)
}

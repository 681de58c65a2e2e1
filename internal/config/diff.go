package config

// ConfigDiff names the hot-reloadable settings that differ between two
// configs. Everything not covered here (server URL, audio device, wire
// mode) needs a restart and is ignored by the watcher.
type ConfigDiff struct {
	VADChanged      bool
	NewVAD          VADConfig
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Empty reports whether the diff carries no reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.VADChanged && !d.LogLevelChanged
}

// Diff compares two configs and reports which reloadable settings moved.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if lvl := new.Server.LogLevel; lvl != old.Server.LogLevel {
		d.LogLevelChanged, d.NewLogLevel = true, lvl
	}
	if new.VAD != old.VAD {
		d.VADChanged, d.NewVAD = true, new.VAD
	}
	return d
}

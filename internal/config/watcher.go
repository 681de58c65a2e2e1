package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the watcher re-stats the config file.
const defaultPollInterval = 5 * time.Second

// fileState identifies one observed version of the config file.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher reloads the config file while a conversation is running, so
// barge-in tuning and log level edits take effect without a restart. Change
// detection is mtime polling with a content hash behind it, which covers
// both in-place rewrites and bare touches.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu     sync.Mutex
	active *Config
	seen   fileState

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides the default 5 second polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it for edits in a
// background goroutine. The initial load must succeed; later load failures
// keep the previous config and log a warning.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, state, err := w.readFile()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.active = cfg
	w.seen = state

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-tick.C:
			// The callback runs here, outside refresh's lock, so it may
			// call Current without deadlocking.
			if old, cur, changed := w.refresh(); changed && w.onChange != nil {
				w.onChange(old, cur)
			}
		}
	}
}

// refresh re-reads the file when its mtime moved. It reports a change only
// when the content hash differs and the new content parses and validates.
// A touched-but-identical file just refreshes the recorded mtime, and a
// broken file leaves the active config in place.
func (w *Watcher) refresh() (old, cur *Config, changed bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	same := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if same {
		return nil, nil, false
	}

	cfg, state, err := w.readFile()
	if err != nil {
		slog.Warn("config watcher: reload failed, keeping previous config",
			"path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	if state.sum == w.seen.sum {
		w.seen.mtime = state.mtime
		w.mu.Unlock()
		return nil, nil, false
	}
	old = w.active
	w.active = cfg
	w.seen = state
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	return old, cfg, true
}

// readFile loads and validates the config file and records the mtime and
// content hash it was read at. Stat goes through the open descriptor so the
// recorded mtime belongs to the bytes actually read, even if the file is
// replaced mid-poll.
func (w *Watcher) readFile() (*Config, fileState, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}

	return cfg, fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}

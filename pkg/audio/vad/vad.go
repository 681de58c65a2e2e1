// Package vad detects the user talking over the agent so a session can cut
// agent playback short.
package vad

import (
	"sync"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
)

const (
	// DefaultThreshold is the RMS energy above which a window counts as
	// voice, tuned for 30-50ms capture windows from a consumer mic.
	DefaultThreshold = 0.02
	// DefaultRequiredWindows is how many consecutive voiced windows arm an
	// interrupt.
	DefaultRequiredWindows = 3
)

// Config seeds a Detector. Zero values fall back to the defaults above.
type Config struct {
	Threshold       float64
	RequiredWindows int
}

// Detector watches capture windows for sustained voice energy. It fires only
// while agent audio is audible, and firing is what silences the agent, so a
// single burst of speech produces a single interrupt.
type Detector struct {
	playing func() bool

	mu        sync.Mutex
	threshold float64
	required  int
	count     int
}

// New returns a Detector. playing reports whether agent audio is currently
// audible; the detector never fires while it returns false.
func New(cfg Config, playing func() bool) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.RequiredWindows <= 0 {
		cfg.RequiredWindows = DefaultRequiredWindows
	}
	if playing == nil {
		playing = func() bool { return false }
	}
	return &Detector{
		playing:   playing,
		threshold: cfg.Threshold,
		required:  cfg.RequiredWindows,
	}
}

// Observe feeds one capture window and reports whether an interrupt fires.
// A quiet window resets the consecutive-voice count; an empty window counts
// as quiet. The count also resets after a fire so the next interrupt needs a
// fresh run of voiced windows.
func (d *Detector) Observe(window []float32) bool {
	energy := audio.RMS(window)

	d.mu.Lock()
	defer d.mu.Unlock()

	if energy <= d.threshold {
		d.count = 0
		return false
	}
	d.count++
	if d.count < d.required {
		return false
	}
	if !d.playing() {
		return false
	}
	d.count = 0
	return true
}

// SetThreshold adjusts the voice energy threshold at runtime.
func (d *Detector) SetThreshold(v float64) {
	if v <= 0 {
		return
	}
	d.mu.Lock()
	d.threshold = v
	d.mu.Unlock()
}

// SetRequiredWindows adjusts the consecutive-window requirement at runtime.
func (d *Detector) SetRequiredWindows(n int) {
	if n < 1 {
		return
	}
	d.mu.Lock()
	d.required = n
	d.mu.Unlock()
}

// Threshold returns the current voice energy threshold.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// RequiredWindows returns the current consecutive-window requirement.
func (d *Detector) RequiredWindows() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.required
}

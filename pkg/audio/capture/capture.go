// Package capture runs the microphone half of a session: it pulls fixed
// windows from an audio source, feeds them to an observer and transmits them
// while the pipeline is armed.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

// ErrUnavailable means the capture device could not be acquired, typically
// because permission was denied or the device is in use. The pipeline does
// not retry on its own.
var ErrUnavailable = errors.New("capture: device unavailable")

// Source delivers capture windows from a device. Start begins delivery to
// fn; Stop releases the device and must be safe to call more than once.
type Source interface {
	Start(fn func(window []float32)) error
	Stop() error
}

// Sender carries encoded frames to the backend. Implementations drop frames
// silently while the transport is not ready to carry audio.
type Sender interface {
	SendAudio(msg wire.Message) error
}

// State is the transmit gate of the pipeline.
type State int32

const (
	// StateStopped means the device is released and no windows flow.
	StateStopped State = iota
	// StateArmed means windows are observed and transmitted.
	StateArmed
	// StateMuted means windows are observed but not transmitted.
	StateMuted
)

// String renders the state for logs.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateArmed:
		return "armed"
	case StateMuted:
		return "muted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option tweaks a Pipeline.
type Option func(*Pipeline)

// WithObserver registers a callback that sees every capture window while the
// pipeline is armed or muted. The voice interrupt detector hangs off this.
func WithObserver(fn func(window []float32)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// WithLogger sets the pipeline's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// Pipeline converts capture windows to wire frames. Muting keeps the device
// and the observer running, so voice detection stays live while the user's
// audio goes nowhere.
type Pipeline struct {
	src      Source
	codec    wire.Codec
	sender   Sender
	format   audio.Format
	observer func([]float32)
	log      *slog.Logger

	state atomic.Int32
}

// New returns a stopped Pipeline that will encode windows with codec in the
// session format f and hand them to sender.
func New(src Source, codec wire.Codec, sender Sender, f audio.Format, opts ...Option) *Pipeline {
	p := &Pipeline{
		src:    src,
		codec:  codec,
		sender: sender,
		format: f,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start acquires the device and arms transmission. Failure to acquire the
// device reports ErrUnavailable; starting an already running pipeline is a
// no-op.
func (p *Pipeline) Start() error {
	if !p.state.CompareAndSwap(int32(StateStopped), int32(StateArmed)) {
		return nil
	}
	if err := p.src.Start(p.onWindow); err != nil {
		p.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p.log.Debug("capture pipeline armed", "format", p.format.String())
	return nil
}

// Mute stops transmission but keeps the device and observer running.
func (p *Pipeline) Mute() {
	if p.state.CompareAndSwap(int32(StateArmed), int32(StateMuted)) {
		p.log.Info("capture muted")
	}
}

// Unmute resumes transmission after Mute.
func (p *Pipeline) Unmute() {
	if p.state.CompareAndSwap(int32(StateMuted), int32(StateArmed)) {
		p.log.Info("capture unmuted")
	}
}

// Stop releases the device. It is safe to call repeatedly and from teardown
// hooks; only the first call reaches the device.
func (p *Pipeline) Stop() error {
	old := State(p.state.Swap(int32(StateStopped)))
	if old == StateStopped {
		return nil
	}
	if err := p.src.Stop(); err != nil {
		return fmt.Errorf("capture: stop device: %w", err)
	}
	return nil
}

// State returns the current transmit gate.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// onWindow runs on the device callback goroutine for every capture window.
func (p *Pipeline) onWindow(window []float32) {
	state := State(p.state.Load())
	if state == StateStopped {
		return
	}
	if p.observer != nil {
		p.observer(window)
	}
	if state != StateArmed {
		return
	}

	pcm := audio.Int16ToBytes(audio.FloatToPCM16(window))
	msg, err := p.codec.EncodeAudio(pcm, p.format)
	if err != nil {
		p.log.Warn("dropping capture window", "error", err)
		return
	}
	if err := p.sender.SendAudio(msg); err != nil {
		p.log.Debug("send failed, dropping capture window", "error", err)
	}
}

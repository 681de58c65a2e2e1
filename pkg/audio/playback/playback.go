// Package playback schedules decoded agent audio gaplessly on a device
// timeline and supports immediate flush for barge-in.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
)

const (
	// DefaultSchedulingDelay is the lead time applied when a chunk would
	// otherwise start in the past. It absorbs decode and hand-off jitter
	// so consecutive chunks line up without clicks.
	DefaultSchedulingDelay = 50 * time.Millisecond
	// DefaultResetThreshold is the silence gap after which the cursor is
	// considered stale and snaps back to the current device position.
	DefaultResetThreshold = 2 * time.Second
)

// Clock reads the device playback timeline. Implementations report elapsed
// playback position rather than wall time, so scheduling survives device
// stalls.
type Clock interface {
	Now() time.Duration
}

// Output sinks scheduled buffers. Play queues samples to begin at the given
// timeline offset; Stop cuts everything queued or sounding immediately.
type Output interface {
	Play(buf Buffer, start time.Duration) error
	Stop()
}

// Buffer is one decoded chunk ready for the output.
type Buffer struct {
	Samples  []float32
	Format   audio.Format
	Duration time.Duration
}

// DecodeFunc turns an inbound frame into a playable buffer.
type DecodeFunc func(audio.AudioFrame) (Buffer, error)

// DecodePCM16 is the default DecodeFunc for raw s16le frames.
func DecodePCM16(frame audio.AudioFrame) (Buffer, error) {
	if len(frame.Data) == 0 {
		return Buffer{Format: frame.Format}, nil
	}
	if frame.Format.SampleRate <= 0 || frame.Format.Channels <= 0 {
		return Buffer{}, fmt.Errorf("playback: frame has no usable format %s", frame.Format)
	}
	samples := audio.PCM16ToFloat(audio.BytesToInt16(frame.Data))
	return Buffer{
		Samples:  samples,
		Format:   frame.Format,
		Duration: frame.Format.Duration(2 * len(samples)),
	}, nil
}

// Option tweaks a Scheduler.
type Option func(*Scheduler)

// WithSchedulingDelay overrides the lead time for late chunks.
func WithSchedulingDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithResetThreshold overrides the silence gap after which the cursor snaps
// back to the device position.
func WithResetThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.reset = d
		}
	}
}

// WithDecodeFunc replaces the frame decoder.
func WithDecodeFunc(fn DecodeFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.decode = fn
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// Scheduler owns the playback cursor: the timeline offset where the next
// chunk starts. Methods are safe for concurrent use, but Enqueue is meant to
// run on a single goroutine so chunks keep their arrival order.
type Scheduler struct {
	clock  Clock
	out    Output
	decode DecodeFunc
	log    *slog.Logger
	delay  time.Duration
	reset  time.Duration

	mu     sync.Mutex
	next   time.Duration
	active bool
}

// New returns a Scheduler playing through out on the timeline read from
// clock.
func New(clock Clock, out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		out:    out,
		decode: DecodePCM16,
		log:    slog.Default(),
		delay:  DefaultSchedulingDelay,
		reset:  DefaultResetThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue decodes one frame and schedules it directly after the last
// scheduled chunk, never earlier than the device position plus the
// scheduling delay. A frame that fails to decode is skipped and its error
// returned; the cursor is untouched and the stream keeps playing.
func (s *Scheduler) Enqueue(frame audio.AudioFrame) error {
	buf, err := s.decode(frame)
	if err != nil {
		return fmt.Errorf("playback: decode chunk: %w", err)
	}
	if len(buf.Samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.active && now-s.next > s.reset {
		// The stream went quiet long enough that the cursor is stale.
		s.next = now
	}
	start := s.next
	if min := now + s.delay; start < min {
		start = min
	}
	if err := s.out.Play(buf, start); err != nil {
		return fmt.Errorf("playback: schedule chunk: %w", err)
	}
	s.next = start + buf.Duration
	s.active = true
	return nil
}

// Flush stops everything scheduled or sounding and clears the cursor. It is
// idempotent and safe to call from event handlers; the next Enqueue starts a
// fresh stream at the device position plus the scheduling delay.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.next = 0
	s.out.Stop()
}

// Playing reports whether scheduled audio is still audible.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.clock.Now() < s.next
}

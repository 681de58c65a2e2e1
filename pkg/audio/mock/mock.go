// Package mock provides in-memory implementations of the capture source,
// playback clock/output and frame sender interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	clock := &mock.Clock{}
//	out := &mock.Output{}
//	sched := playback.New(clock, out)
//	clock.Advance(100 * time.Millisecond)
//	// ... enqueue frames, then assert on out.PlayCalls
package mock

import (
	"sync"
	"time"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/capture"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/playback"
	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

// ─── Clock ────────────────────────────────────────────────────────────────────

// Clock is a manually advanced implementation of [playback.Clock].
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

var _ playback.Clock = (*Clock)(nil)

// Now implements [playback.Clock].
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the timeline forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Set jumps the timeline to t.
func (c *Clock) Set(t time.Duration) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// ─── Output ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Output.Play] invocation.
type PlayCall struct {
	// Buffer is the buffer passed to Play.
	Buffer playback.Buffer
	// Start is the timeline offset passed to Play.
	Start time.Duration
}

// Output is a mock implementation of [playback.Output].
type Output struct {
	mu sync.Mutex

	// PlayError is returned by Play.
	PlayError error

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

var _ playback.Output = (*Output)(nil)

// Play implements [playback.Output]. Records the call and returns PlayError.
func (o *Output) Play(buf playback.Buffer, start time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.PlayError != nil {
		return o.PlayError
	}
	o.PlayCalls = append(o.PlayCalls, PlayCall{Buffer: buf, Start: start})
	return nil
}

// Stop implements [playback.Output]. Records the call.
func (o *Output) Stop() {
	o.mu.Lock()
	o.CallCountStop++
	o.mu.Unlock()
}

// PlayCount returns how many times Play was called.
func (o *Output) PlayCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.PlayCalls)
}

// StopCount returns how many times Stop was called.
func (o *Output) StopCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.CallCountStop
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [capture.Source]. Push windows through
// it with [Source.Push] to simulate the device callback.
type Source struct {
	mu sync.Mutex

	// StartError is returned by Start.
	StartError error

	// StopError is returned by Stop.
	StopError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	fn func([]float32)
}

var _ capture.Source = (*Source)(nil)

// Start implements [capture.Source]. Records the window callback for Push.
func (s *Source) Start(fn func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.fn = fn
	return nil
}

// Stop implements [capture.Source]. Drops the window callback.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.fn = nil
	return s.StopError
}

// Push delivers one capture window through the registered callback, the way
// a device data callback would. It is a no-op while the source is stopped.
func (s *Source) Push(window []float32) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(window)
	}
}

// Started reports whether a window callback is registered. Tests poll this to
// wait for a pipeline that starts on another goroutine.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// ─── Sender ───────────────────────────────────────────────────────────────────

// Sender is a mock implementation of [capture.Sender].
type Sender struct {
	mu sync.Mutex

	// SendError is returned by SendAudio.
	SendError error

	// Messages records every message passed to SendAudio.
	Messages []wire.Message
}

var _ capture.Sender = (*Sender)(nil)

// SendAudio implements [capture.Sender]. Records the message and returns
// SendError.
func (s *Sender) SendAudio(msg wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendError != nil {
		return s.SendError
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *Sender) Sent() []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Package audio defines the shared PCM types and sample conversions used by
// the capture, playback and wire layers.
package audio

import (
	"fmt"
	"time"
)

// AudioFrame is a single chunk of PCM audio flowing through the pipeline.
type AudioFrame struct {
	// Data holds raw PCM samples, 16-bit little-endian signed.
	Data []byte
	// Format describes the sample rate and channel layout of Data.
	Format Format
	// Timestamp is the capture or arrival offset from session start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's data.
func (f AudioFrame) Duration() time.Duration {
	return f.Format.Duration(len(f.Data))
}

// Format describes the layout of a 16-bit PCM stream.
type Format struct {
	// SampleRate in Hz, e.g. 16000.
	SampleRate int
	// Channels is 1 for mono, 2 for stereo.
	Channels int
}

// String renders the format for logs, e.g. "16000Hz/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns the play time of n bytes of 16-bit PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// BytesFor returns how many bytes of 16-bit PCM cover d, rounded down to a
// whole sample boundary.
func (f Format) BytesFor(d time.Duration) int {
	if d <= 0 || f.BytesPerSecond() <= 0 {
		return 0
	}
	n := int(d * time.Duration(f.BytesPerSecond()) / time.Second)
	return n - n%(2*f.Channels)
}

// Drain discards buffered values on ch without blocking. It stops as soon as
// the channel is empty or closed.
func Drain[T any](ch <-chan T) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

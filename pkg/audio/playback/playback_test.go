package playback_test

import (
	"errors"
	"testing"
	"time"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/mock"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/playback"
)

var format16k = audio.Format{SampleRate: 16000, Channels: 1}

// chunk returns an s16le frame covering d of audio.
func chunk(t *testing.T, d time.Duration) audio.AudioFrame {
	t.Helper()
	n := format16k.BytesFor(d)
	if n == 0 {
		t.Fatalf("no bytes for %v", d)
	}
	return audio.AudioFrame{Data: make([]byte, n), Format: format16k}
}

func TestSchedulerGaplessStarts(t *testing.T) {
	t.Parallel()

	clock := &mock.Clock{}
	out := &mock.Output{}
	s := playback.New(clock, out,
		playback.WithSchedulingDelay(50*time.Millisecond),
		playback.WithResetThreshold(2*time.Second),
	)

	// Three 100ms chunks arrive back to back while the clock stands still.
	for i := 0; i < 3; i++ {
		if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if len(out.PlayCalls) != 3 {
		t.Fatalf("scheduled %d chunks, want 3", len(out.PlayCalls))
	}
	if got := out.PlayCalls[0].Start; got != 50*time.Millisecond {
		t.Errorf("first start = %v, want now+delay = 50ms", got)
	}
	for i := 1; i < 3; i++ {
		prev := out.PlayCalls[i-1]
		want := prev.Start + prev.Buffer.Duration
		if got := out.PlayCalls[i].Start; got != want {
			t.Errorf("chunk %d start = %v, want %v (end of chunk %d)", i, got, want, i-1)
		}
	}
}

func TestSchedulerStartsNeverRegress(t *testing.T) {
	t.Parallel()

	clock := &mock.Clock{}
	out := &mock.Output{}
	s := playback.New(clock, out, playback.WithSchedulingDelay(50*time.Millisecond))

	durations := []time.Duration{100, 40, 250, 20, 60}
	for _, ms := range durations {
		if err := s.Enqueue(chunk(t, ms*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		clock.Advance(30 * time.Millisecond)
	}
	for i := 1; i < len(out.PlayCalls); i++ {
		prev, cur := out.PlayCalls[i-1], out.PlayCalls[i]
		if cur.Start < prev.Start+prev.Buffer.Duration {
			t.Errorf("chunk %d start %v overlaps chunk %d ending %v",
				i, cur.Start, i-1, prev.Start+prev.Buffer.Duration)
		}
	}
}

func TestSchedulerSilenceGapResets(t *testing.T) {
	t.Parallel()

	clock := &mock.Clock{}
	out := &mock.Output{}
	s := playback.New(clock, out,
		playback.WithSchedulingDelay(50*time.Millisecond),
		playback.WithResetThreshold(2*time.Second),
	)

	if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Long silence: the old cursor is far in the past by the time the next
	// chunk arrives.
	clock.Advance(10 * time.Second)
	if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	want := clock.Now() + 50*time.Millisecond
	if got := out.PlayCalls[1].Start; got != want {
		t.Errorf("start after silence gap = %v, want now+delay = %v", got, want)
	}
}

func TestSchedulerFlush(t *testing.T) {
	t.Parallel()

	clock := &mock.Clock{}
	out := &mock.Output{}
	s := playback.New(clock, out, playback.WithSchedulingDelay(50*time.Millisecond))

	for i := 0; i < 4; i++ {
		if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if !s.Playing() {
		t.Fatal("Playing() = false with scheduled audio")
	}

	s.Flush()
	if out.CallCountStop != 1 {
		t.Errorf("output stopped %d times, want 1", out.CallCountStop)
	}
	if s.Playing() {
		t.Error("Playing() = true after Flush")
	}

	s.Flush()
	if out.CallCountStop != 2 {
		t.Errorf("repeated Flush did not reach the output")
	}

	// A fresh stream starts at now+delay, not at the stale cursor.
	clock.Advance(75 * time.Millisecond)
	if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue after Flush: %v", err)
	}
	want := clock.Now() + 50*time.Millisecond
	if got := out.PlayCalls[len(out.PlayCalls)-1].Start; got != want {
		t.Errorf("start after Flush = %v, want %v", got, want)
	}
}

func TestSchedulerDecodeFailureSkipsChunk(t *testing.T) {
	t.Parallel()

	clock := &mock.Clock{}
	out := &mock.Output{}
	decodeErr := errors.New("bad payload")
	bad := audio.AudioFrame{Data: []byte{1}, Format: format16k}
	s := playback.New(clock, out,
		playback.WithSchedulingDelay(50*time.Millisecond),
		playback.WithDecodeFunc(func(f audio.AudioFrame) (playback.Buffer, error) {
			if len(f.Data) == 1 {
				return playback.Buffer{}, decodeErr
			}
			return playback.DecodePCM16(f)
		}),
	)

	if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue(bad); !errors.Is(err, decodeErr) {
		t.Fatalf("Enqueue(bad) = %v, want decode error", err)
	}
	if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue after failure: %v", err)
	}

	// The failed chunk left no hole: the third chunk starts where the
	// first one ended.
	if len(out.PlayCalls) != 2 {
		t.Fatalf("scheduled %d chunks, want 2", len(out.PlayCalls))
	}
	first := out.PlayCalls[0]
	if got := out.PlayCalls[1].Start; got != first.Start+first.Buffer.Duration {
		t.Errorf("start after skipped chunk = %v, want %v", got, first.Start+first.Buffer.Duration)
	}
}

func TestSchedulerPlaying(t *testing.T) {
	t.Parallel()

	clock := &mock.Clock{}
	out := &mock.Output{}
	s := playback.New(clock, out, playback.WithSchedulingDelay(50*time.Millisecond))

	if s.Playing() {
		t.Fatal("Playing() = true before any audio")
	}
	if err := s.Enqueue(chunk(t, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !s.Playing() {
		t.Fatal("Playing() = false with a scheduled chunk")
	}

	// 50ms delay + 100ms chunk all elapsed.
	clock.Advance(200 * time.Millisecond)
	if s.Playing() {
		t.Error("Playing() = true after the stream finished")
	}
}

func TestSchedulerEmptyChunkIsSkipped(t *testing.T) {
	t.Parallel()

	clock := &mock.Clock{}
	out := &mock.Output{}
	s := playback.New(clock, out)

	if err := s.Enqueue(audio.AudioFrame{Format: format16k}); err != nil {
		t.Fatalf("Enqueue(empty): %v", err)
	}
	if len(out.PlayCalls) != 0 {
		t.Errorf("empty chunk reached the output")
	}
	if s.Playing() {
		t.Error("Playing() = true after only an empty chunk")
	}
}

func TestDecodePCM16(t *testing.T) {
	t.Parallel()

	pcm := audio.Int16ToBytes([]int16{0, 16384, -16384, 32767})
	buf, err := playback.DecodePCM16(audio.AudioFrame{Data: pcm, Format: format16k})
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if len(buf.Samples) != 4 {
		t.Fatalf("decoded %d samples, want 4", len(buf.Samples))
	}
	if buf.Samples[1] != 0.5 {
		t.Errorf("sample 1 = %v, want 0.5", buf.Samples[1])
	}
	if want := format16k.Duration(len(pcm)); buf.Duration != want {
		t.Errorf("duration = %v, want %v", buf.Duration, want)
	}

	if _, err := playback.DecodePCM16(audio.AudioFrame{Data: pcm}); err == nil {
		t.Error("DecodePCM16 accepted a frame without a format")
	}
}

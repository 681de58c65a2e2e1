package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/playback"
)

var (
	_ playback.Output = (*PlaybackDevice)(nil)
	_ playback.Clock  = (*PlaybackDevice)(nil)
)

// PlaybackOption configures a PlaybackDevice.
type PlaybackOption func(*PlaybackDevice)

// WithPlaybackFormat opens the hardware in f instead of the session format.
// Buffers are converted on their way in.
func WithPlaybackFormat(f audio.Format) PlaybackOption {
	return func(d *PlaybackDevice) { d.deviceFormat = f }
}

// scheduledBuffer is converted audio pinned to a device frame position.
type scheduledBuffer struct {
	start int64
	data  []byte
}

// PlaybackDevice renders scheduled buffers through the default speaker. It
// doubles as the scheduler clock: time is counted in frames the hardware has
// actually rendered, so scheduling positions cannot drift against playback.
//
// The device renders continuously from Open to Close, emitting silence
// wherever no buffer is scheduled.
type PlaybackDevice struct {
	ctx          *Context
	format       audio.Format
	deviceFormat audio.Format
	conv         *audio.FormatConverter

	rendered atomic.Int64

	mu    sync.Mutex
	dev   *malgo.Device
	queue []scheduledBuffer
}

// NewPlayback prepares a speaker sink for session format f. The device is
// not opened until Open.
func NewPlayback(ctx *Context, f audio.Format, opts ...PlaybackOption) *PlaybackDevice {
	d := &PlaybackDevice{
		ctx:          ctx,
		format:       f,
		deviceFormat: f,
		conv:         audio.NewFormatConverter(ctx.log),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open starts the speaker rendering.
func (d *PlaybackDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		return errors.New("device: playback already open")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(d.deviceFormat.Channels)
	cfg.SampleRate = uint32(d.deviceFormat.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(d.ctx.mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onSamples,
	})
	if err != nil {
		return fmt.Errorf("device: open speaker: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("device: start speaker: %w", err)
	}

	d.dev = dev
	d.ctx.log.Info("speaker opened", "format", d.deviceFormat.String())
	return nil
}

// Play schedules buf to render at the given clock position. Implements
// playback.Output.
func (d *PlaybackDevice) Play(buf playback.Buffer, start time.Duration) error {
	pcm := audio.Int16ToBytes(audio.FloatToPCM16(buf.Samples))
	data := d.conv.Convert(pcm, buf.Format, d.deviceFormat)
	if len(data) == 0 {
		return nil
	}
	startFrame := int64(start) * int64(d.deviceFormat.SampleRate) / int64(time.Second)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return errors.New("device: playback not open")
	}
	d.queue = append(d.queue, scheduledBuffer{start: startFrame, data: data})
	return nil
}

// Stop discards every scheduled buffer, including the one currently
// rendering. The device keeps running and falls back to silence. Implements
// playback.Output.
func (d *PlaybackDevice) Stop() {
	d.mu.Lock()
	d.queue = nil
	d.mu.Unlock()
}

// Now returns the stream position: how much audio the hardware has rendered
// since Open. Implements playback.Clock.
func (d *PlaybackDevice) Now() time.Duration {
	rate := int64(d.deviceFormat.SampleRate)
	return time.Duration(d.rendered.Load() * int64(time.Second) / rate)
}

// onSamples fills one hardware period, overlaying every queued buffer that
// intersects it and dropping buffers that have fully rendered.
func (d *PlaybackDevice) onSamples(pOutput, _ []byte, frameCount uint32) {
	clear(pOutput)

	bpf := int64(2 * d.deviceFormat.Channels)
	cur := d.rendered.Load()
	end := cur + int64(frameCount)

	d.mu.Lock()
	keep := d.queue[:0]
	for _, b := range d.queue {
		frames := int64(len(b.data)) / bpf
		bEnd := b.start + frames
		if bEnd <= cur {
			continue
		}
		copyStart := max(b.start, cur)
		copyEnd := min(bEnd, end)
		if copyStart < copyEnd {
			src := (copyStart - b.start) * bpf
			dst := (copyStart - cur) * bpf
			n := (copyEnd - copyStart) * bpf
			copy(pOutput[dst:dst+n], b.data[src:src+n])
		}
		if bEnd > end {
			keep = append(keep, b)
		}
	}
	d.queue = keep
	d.mu.Unlock()

	d.rendered.Store(end)
}

// Close releases the speaker.
func (d *PlaybackDevice) Close() error {
	d.mu.Lock()
	dev := d.dev
	d.dev = nil
	d.queue = nil
	d.mu.Unlock()

	if dev == nil {
		return nil
	}
	dev.Uninit()
	d.ctx.log.Info("speaker released")
	return nil
}

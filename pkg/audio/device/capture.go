package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/capture"
)

// DefaultWindow is the amount of microphone audio per delivered window.
const DefaultWindow = 50 * time.Millisecond

var _ capture.Source = (*CaptureDevice)(nil)

// CaptureOption configures a CaptureDevice.
type CaptureOption func(*CaptureDevice)

// WithCaptureFormat opens the hardware in f instead of the session format.
// Samples are converted before delivery.
func WithCaptureFormat(f audio.Format) CaptureOption {
	return func(d *CaptureDevice) { d.deviceFormat = f }
}

// WithWindow sets how much audio each delivered window covers.
func WithWindow(window time.Duration) CaptureOption {
	return func(d *CaptureDevice) { d.window = window }
}

// CaptureDevice reads the default microphone and delivers fixed-size float32
// windows in the session format.
type CaptureDevice struct {
	ctx          *Context
	format       audio.Format
	deviceFormat audio.Format
	window       time.Duration
	conv         *audio.FormatConverter

	mu      sync.Mutex
	dev     *malgo.Device
	fn      func([]float32)
	pending []byte
}

// NewCapture prepares a microphone source delivering windows in the session
// format f. The device is not opened until Start.
func NewCapture(ctx *Context, f audio.Format, opts ...CaptureOption) *CaptureDevice {
	d := &CaptureDevice{
		ctx:          ctx,
		format:       f,
		deviceFormat: f,
		window:       DefaultWindow,
		conv:         audio.NewFormatConverter(ctx.log),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start opens the microphone and begins delivering windows to fn. The
// callback runs on the audio thread; it must not block.
func (d *CaptureDevice) Start(fn func([]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		return errors.New("device: capture already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(d.deviceFormat.Channels)
	cfg.SampleRate = uint32(d.deviceFormat.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(d.ctx.mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onSamples,
	})
	if err != nil {
		return fmt.Errorf("device: open microphone: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("device: start microphone: %w", err)
	}

	d.dev = dev
	d.fn = fn
	d.pending = d.pending[:0]
	d.ctx.log.Info("microphone opened",
		"format", d.deviceFormat.String(),
		"window", d.window.String())
	return nil
}

// onSamples accumulates converted microphone data and slices it into
// fixed-size windows.
func (d *CaptureDevice) onSamples(_, pInput []byte, _ uint32) {
	if len(pInput) == 0 {
		return
	}

	d.mu.Lock()
	fn := d.fn
	if fn == nil {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, d.conv.Convert(pInput, d.deviceFormat, d.format)...)

	winBytes := d.format.BytesFor(d.window)
	var windows [][]float32
	for len(d.pending) >= winBytes {
		windows = append(windows, audio.PCM16ToFloat(audio.BytesToInt16(d.pending[:winBytes])))
		d.pending = d.pending[:copy(d.pending, d.pending[winBytes:])]
	}
	d.mu.Unlock()

	// Deliver outside the lock so Stop cannot deadlock against a window in
	// flight.
	for _, w := range windows {
		fn(w)
	}
}

// Stop closes the microphone and releases it back to the OS.
func (d *CaptureDevice) Stop() error {
	d.mu.Lock()
	dev := d.dev
	d.dev = nil
	d.fn = nil
	d.pending = nil
	d.mu.Unlock()

	if dev == nil {
		return nil
	}
	if err := dev.Stop(); err != nil {
		dev.Uninit()
		return fmt.Errorf("device: stop microphone: %w", err)
	}
	dev.Uninit()
	d.ctx.log.Info("microphone released")
	return nil
}

// Package app wires all voice ninja subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives one conversation to completion, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithCaptureSource,
// WithPlaybackOutput, etc.). When an option is not provided, New opens the
// real microphone and speaker.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snakescriptdev/voice-ninja-client/internal/command"
	"github.com/snakescriptdev/voice-ninja-client/internal/config"
	"github.com/snakescriptdev/voice-ninja-client/internal/observe"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/capture"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/device"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/playback"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/vad"
	"github.com/snakescriptdev/voice-ninja-client/pkg/client"
	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

// App owns all subsystem lifetimes and orchestrates one voice conversation.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	client  *client.Client
	sched   *playback.Scheduler
	vad     *vad.Detector
	filter  *command.Filter
	watcher *config.Watcher

	// Audio endpoints. Real devices unless doubles were injected.
	source capture.Source
	output playback.Output
	clock  playback.Clock

	// console receives the transcript lines of the conversation. Logs go to
	// stderr, so by default this is stdout and stays a clean record.
	console io.Writer

	// logLevel, when set, is retuned on config hot reload.
	logLevel  *slog.LevelVar
	watchPath string

	telemetry *http.Server

	// Session-scoped state, guarded by mu. Set while Run is live.
	mu       sync.Mutex
	pipeline *capture.Pipeline
	rec      *recorder

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCaptureSource injects a microphone source instead of opening a device.
func WithCaptureSource(src capture.Source) Option {
	return func(a *App) { a.source = src }
}

// WithPlaybackOutput injects a speaker output and its clock instead of
// opening a device.
func WithPlaybackOutput(out playback.Output, clock playback.Clock) Option {
	return func(a *App) { a.output = out; a.clock = clock }
}

// WithMetrics injects a metrics set instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCommandPatterns replaces the default voice command set.
func WithCommandPatterns(patterns []command.Pattern) Option {
	return func(a *App) { a.filter = command.NewFilter(patterns) }
}

// WithHotReload watches path and retunes barge-in detection and log
// verbosity when the file changes.
func WithHotReload(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// hot reload can adjust verbosity.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConsole redirects conversation output, which otherwise goes to stdout.
func WithConsole(w io.Writer) Option {
	return func(a *App) { a.console = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: backend client setup, audio
// device opening, scheduler and barge-in wiring, and the telemetry endpoint.
// Nothing connects to the backend until Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, console: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Backend client ────────────────────────────────────────────────
	if err := a.initClient(); err != nil {
		return nil, fmt.Errorf("app: init client: %w", err)
	}

	// ── 2. Audio devices ─────────────────────────────────────────────────
	if err := a.initDevices(); err != nil {
		return nil, fmt.Errorf("app: init devices: %w", err)
	}

	// ── 3. Playback scheduling + barge-in ────────────────────────────────
	a.initPlayback()

	// ── 4. Voice commands ────────────────────────────────────────────────
	if a.filter == nil {
		a.filter = command.NewFilter(command.DefaultPatterns())
	}

	// ── 5. Config hot reload ─────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init watcher: %w", err)
	}

	// ── 6. Telemetry endpoint ────────────────────────────────────────────
	a.initTelemetry()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initClient builds the websocket client from the server config.
func (a *App) initClient() error {
	srv := a.cfg.Server

	profile := client.DefaultProfile()
	if srv.Mode != "" {
		profile.Mode = srv.Mode
	}
	if a.cfg.Audio.SampleRate > 0 {
		profile.SampleRate = a.cfg.Audio.SampleRate
	}

	copts := []client.Option{client.WithLogger(slog.Default())}
	if d := srv.ConnectTimeout.Std(); d > 0 {
		copts = append(copts, client.WithConnectTimeout(d))
	}
	if srv.Language != "" {
		copts = append(copts, client.WithLanguage(srv.Language))
	}
	if srv.Model != "" {
		copts = append(copts, client.WithModel(srv.Model))
	}
	if srv.Voice != "" {
		copts = append(copts, client.WithVoice(srv.Voice))
	}
	if srv.Username != "" {
		copts = append(copts, client.WithBasicAuth(srv.Username, srv.Password))
	}

	cl, err := client.New(srv.URL, srv.AgentID, profile, copts...)
	if err != nil {
		return err
	}
	a.client = cl
	return nil
}

// initDevices opens the real microphone and speaker unless doubles were
// injected. Tests inject both and skip device setup entirely.
func (a *App) initDevices() error {
	if a.source != nil && a.output != nil {
		return nil
	}

	dctx, err := device.NewContext(slog.Default())
	if err != nil {
		return err
	}
	a.closers = append(a.closers, dctx.Close)

	format := a.client.Profile().Format()

	if a.source == nil {
		var opts []device.CaptureOption
		if n := a.cfg.Audio.CaptureChannels; n > 0 {
			opts = append(opts, device.WithCaptureFormat(audio.Format{SampleRate: format.SampleRate, Channels: n}))
		}
		if ms := a.cfg.Audio.WindowMs; ms > 0 {
			opts = append(opts, device.WithWindow(time.Duration(ms)*time.Millisecond))
		}
		a.source = device.NewCapture(dctx, format, opts...)
	}

	if a.output == nil {
		var opts []device.PlaybackOption
		if n := a.cfg.Audio.PlaybackChannels; n > 0 {
			opts = append(opts, device.WithPlaybackFormat(audio.Format{SampleRate: format.SampleRate, Channels: n}))
		}
		pd := device.NewPlayback(dctx, format, opts...)
		if err := pd.Open(); err != nil {
			return err
		}
		a.closers = append(a.closers, pd.Close)
		a.output = pd
		a.clock = pd
	}

	return nil
}

// initPlayback wires the scheduler and the barge-in detector. The detector
// only fires while the scheduler reports agent audio on the timeline.
func (a *App) initPlayback() {
	popts := []playback.Option{playback.WithLogger(slog.Default())}
	if d := a.cfg.Playback.SchedulingDelay.Std(); d > 0 {
		popts = append(popts, playback.WithSchedulingDelay(d))
	}
	if d := a.cfg.Playback.ResetThreshold.Std(); d > 0 {
		popts = append(popts, playback.WithResetThreshold(d))
	}
	a.sched = playback.New(a.clock, a.output, popts...)

	a.vad = vad.New(vad.Config{
		Threshold:       a.cfg.VAD.Threshold,
		RequiredWindows: a.cfg.VAD.RequiredWindows,
	}, a.sched.Playing)
}

// initWatcher starts the config file watcher when hot reload is requested.
func (a *App) initWatcher() error {
	if a.watchPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.watchPath, a.applyReload)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// applyReload is the watcher callback. Only the hot-reloadable knobs are
// applied; everything else in the new config takes effect on restart.
func (a *App) applyReload(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}
	if d.VADChanged {
		threshold := d.NewVAD.Threshold
		if threshold <= 0 {
			threshold = vad.DefaultThreshold
		}
		required := d.NewVAD.RequiredWindows
		if required < 1 {
			required = vad.DefaultRequiredWindows
		}
		a.vad.SetThreshold(threshold)
		a.vad.SetRequiredWindows(required)
		slog.Info("barge-in tuning reloaded", "threshold", threshold, "required_windows", required)
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run connects to the backend and drives one conversation to completion.
//
// It blocks until the session ends: a voice command or cancelled ctx ends it
// deliberately (Run returns ctx.Err() or nil), a lost connection ends it with
// the disconnect cause. There is no automatic reconnect; the caller decides
// whether to call Run again.
func (a *App) Run(ctx context.Context) error {
	if a.telemetry != nil {
		a.serveTelemetry()
	}

	// ── Connect ──────────────────────────────────────────────────────────
	cctx, span := observe.StartSpan(ctx, "session.connect")
	start := time.Now()
	sess, err := a.client.Connect(cctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordConnect(ctx, time.Since(start).Seconds(), status)
	span.End()
	if err != nil {
		return fmt.Errorf("app: connect: %w", err)
	}
	a.metrics.ActiveSessions.Add(ctx, 1)

	// ── Session taps ─────────────────────────────────────────────────────
	if a.cfg.Recording.Enabled {
		rec, err := newRecorder(a.cfg.Recording.Dir, sess.Format())
		if err != nil {
			// A broken tap should not take the conversation down.
			slog.Warn("recording disabled", "err", err)
		} else {
			a.setRecorder(rec)
			slog.Info("recording conversation", "dir", a.cfg.Recording.Dir)
		}
	}

	// ── Capture pipeline ─────────────────────────────────────────────────
	sender := meteredSender{sender: sess, metrics: a.metrics}
	pipeline := capture.New(a.source, sess.Codec(), sender, sess.Format(),
		capture.WithObserver(a.observeWindow),
		capture.WithLogger(slog.Default()))
	a.setPipeline(pipeline)
	if err := pipeline.Start(); err != nil {
		sess.Close()
		return fmt.Errorf("app: start capture: %w", err)
	}

	sess.OnTeardown(func() {
		if err := pipeline.Stop(); err != nil {
			slog.Warn("capture stop error", "err", err)
		}
		a.sched.Flush()
		a.closeRecorder()
		a.metrics.ActiveSessions.Add(context.Background(), -1)
	})

	// A cancelled ctx ends the conversation. Closing the client tears the
	// session down, which closes the channels the drain loops live on.
	stop := context.AfterFunc(ctx, func() { a.client.Close() })
	defer stop()

	var g errgroup.Group
	g.Go(func() error { a.drainAudio(ctx, sess); return nil })
	g.Go(func() error { a.drainTranscripts(ctx, sess); return nil })
	g.Go(func() error { return a.drainEvents(sess) })

	slog.Info("conversation running",
		"session", sess.ID(),
		"language", sess.Language(),
		"model", sess.Model(),
		"format", sess.Format().String())
	drainErr := g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return drainErr
}

// drainAudio schedules agent audio for playback as it arrives.
func (a *App) drainAudio(ctx context.Context, sess *client.Session) {
	for frame := range sess.Audio() {
		a.metrics.FramesReceived.Add(ctx, 1)
		a.tapAgent(frame)
		if err := a.sched.Enqueue(frame); err != nil {
			a.metrics.RecordDecodeError(ctx, string(a.client.Profile().Mode))
			slog.Warn("dropping agent chunk", "err", err)
		}
	}
}

// drainTranscripts prints the conversation and feeds user lines through the
// voice command filter.
func (a *App) drainTranscripts(ctx context.Context, sess *client.Session) {
	for tr := range sess.Transcripts() {
		a.metrics.RecordTranscript(ctx, string(tr.Role))
		printTranscript(a.console, tr)
		if tr.Role != client.RoleUser {
			continue
		}
		if name, ok := a.filter.Check(tr.Text, a); ok {
			slog.Info("voice command", "command", name)
			a.metrics.RecordVoiceCommand(ctx, name)
		}
	}
}

// drainEvents logs lifecycle events and counts decode faults. It returns the
// error that ended the session, nil for a deliberate close.
func (a *App) drainEvents(sess *client.Session) error {
	for ev := range sess.Events() {
		switch ev.Type {
		case client.EventReady:
			slog.Debug("session ready", "id", sess.ID())
		case client.EventLanguageConfirmed:
			slog.Info("language confirmed", "language", ev.Language, "model", ev.Model)
		case client.EventSessionReplaced:
			slog.Warn("conversation taken over by another connection")
		case client.EventDisconnected:
			slog.Warn("connection lost", "err", ev.Err)
		case client.EventError:
			var decErr *client.DecodeError
			if errors.As(ev.Err, &decErr) {
				a.metrics.RecordDecodeError(context.Background(), string(decErr.Mode))
			}
			slog.Warn("session fault", "err", ev.Err)
		}
	}
	// The events channel closes only after the session settled its final
	// error, so this read is stable.
	return sess.Err()
}

// observeWindow runs on every capture window, muted or not. It feeds the
// mic recording tap and the barge-in detector.
func (a *App) observeWindow(window []float32) {
	a.tapMic(window)
	if a.vad.Observe(window) {
		slog.Info("barge-in detected, cutting agent playback")
		a.metrics.BargeIns.Add(context.Background(), 1)
		a.sched.Flush()
	}
}

// ─── Voice command controls ──────────────────────────────────────────────────

var _ command.Controls = (*App)(nil)

// Mute stops transmitting microphone audio. Part of [command.Controls].
func (a *App) Mute() {
	if p := a.currentPipeline(); p != nil {
		p.Mute()
		slog.Info("microphone muted")
	}
}

// Unmute resumes transmitting microphone audio. Part of [command.Controls].
func (a *App) Unmute() {
	if p := a.currentPipeline(); p != nil {
		p.Unmute()
		slog.Info("microphone unmuted")
	}
}

// Disconnect ends the conversation deliberately. Part of [command.Controls].
func (a *App) Disconnect() {
	slog.Info("ending conversation on voice command")
	a.client.Close()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends the session and tears subsystems down in reverse-init order.
// It respects the context deadline: if ctx expires before all closers finish,
// the rest are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// End the conversation first so device closers find the stream idle.
		if err := a.client.Close(); err != nil {
			slog.Warn("session close error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// meteredSender counts the frames that actually reach the transport.
type meteredSender struct {
	sender  capture.Sender
	metrics *observe.Metrics
}

func (m meteredSender) SendAudio(msg wire.Message) error {
	err := m.sender.SendAudio(msg)
	if err == nil {
		m.metrics.FramesSent.Add(context.Background(), 1)
	}
	return err
}

// printTranscript renders one line of conversation.
func printTranscript(w io.Writer, tr client.Transcript) {
	label := "agent"
	if tr.Role == client.RoleUser {
		label = "you"
	}
	fmt.Fprintf(w, "%s [%s] %s\n", tr.Time.Format("15:04:05"), label, tr.Text)
}

func (a *App) setPipeline(p *capture.Pipeline) {
	a.mu.Lock()
	a.pipeline = p
	a.mu.Unlock()
}

func (a *App) currentPipeline() *capture.Pipeline {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pipeline
}

func (a *App) setRecorder(r *recorder) {
	a.mu.Lock()
	a.rec = r
	a.mu.Unlock()
}

func (a *App) tapMic(window []float32) {
	a.mu.Lock()
	rec := a.rec
	a.mu.Unlock()
	if rec != nil {
		rec.WriteMic(window)
	}
}

func (a *App) tapAgent(frame audio.AudioFrame) {
	a.mu.Lock()
	rec := a.rec
	a.mu.Unlock()
	if rec != nil {
		rec.WriteAgent(frame)
	}
}

func (a *App) closeRecorder() {
	a.mu.Lock()
	rec := a.rec
	a.rec = nil
	a.mu.Unlock()
	if rec != nil {
		if err := rec.Close(); err != nil {
			slog.Warn("recording close error", "err", err)
		}
	}
}

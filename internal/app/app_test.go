package app_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/snakescriptdev/voice-ninja-client/internal/app"
	"github.com/snakescriptdev/voice-ninja-client/internal/config"
	"github.com/snakescriptdev/voice-ninja-client/internal/observe"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/mock"
	"github.com/snakescriptdev/voice-ninja-client/pkg/client"
	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

// ── Backend helpers ───────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startBackend launches a test WebSocket server. The handler receives every
// accepted conn. The server is automatically closed when the test finishes.
func startBackend(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// envelopeHandshake consumes conversation_init and reports the conversation
// live.
func envelopeHandshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err != nil {
		t.Errorf("handshake read: %v", err)
		return
	}
	writeJSON(t, conn, map[string]any{"type": "conversation_ready"})
	writeJSON(t, conn, map[string]any{"type": "audio_interface_ready"})
}

// scriptedBackend runs the envelope handshake, then writes everything sent on
// say and reports the type of every inbound message on received.
func scriptedBackend(t *testing.T, say <-chan map[string]any, received chan<- string) *httptest.Server {
	t.Helper()
	return startBackend(t, func(conn *websocket.Conn) {
		envelopeHandshake(t, conn)
		go func() {
			for msg := range say {
				writeJSON(t, conn, msg)
			}
		}()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(data, &msg)
			select {
			case received <- msg.Type:
			default:
			}
		}
	})
}

// ── App harness ───────────────────────────────────────────────────────────────

func testConfig(url string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			URL:            url,
			Mode:           wire.ModeBase64JSON,
			AgentID:        "agent-42",
			ConnectTimeout: config.Duration(3 * time.Second),
			LogLevel:       config.LogInfo,
		},
	}
}

type harness struct {
	app    *app.App
	source *mock.Source
	output *mock.Output
	clock  *mock.Clock
	reader *sdkmetric.ManualReader
}

func newHarness(t *testing.T, cfg *config.Config, opts ...app.Option) *harness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := &harness{
		source: &mock.Source{},
		output: &mock.Output{},
		clock:  &mock.Clock{},
		reader: reader,
	}
	opts = append([]app.Option{
		app.WithCaptureSource(h.source),
		app.WithPlaybackOutput(h.output, h.clock),
		app.WithMetrics(metrics),
		app.WithConsole(io.Discard),
	}, opts...)

	h.app, err = app.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.app.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return h
}

// runApp starts Run on a background goroutine.
func runApp(ctx context.Context, h *harness) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.app.Run(ctx) }()
	return errCh
}

func waitDone(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return in time")
		return nil
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// commandCount sums the voice command counter datapoints matching name.
func commandCount(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "ninja.voice_commands" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("ninja.voice_commands data = %T, want Sum[int64]", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("command")); ok && v.AsString() == name {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func audioChunkMsg(pcm []byte) map[string]any {
	return map[string]any{
		"type":     "audio_chunk",
		"data_b64": base64.StdEncoding.EncodeToString(pcm),
	}
}

func loudWindow() []float32 {
	window := make([]float32, 160)
	for i := range window {
		window[i] = 0.5
	}
	return window
}

// ── Construction ──────────────────────────────────────────────────────────────

func TestNew_WithDoubles(t *testing.T) {
	t.Parallel()

	cfg := testConfig("ws://localhost:1")
	cfg.Telemetry.ListenAddr = "127.0.0.1:0"

	h := newHarness(t, cfg)
	if h.app == nil {
		t.Fatal("New returned nil app")
	}
}

func TestNew_InvalidTransportMode(t *testing.T) {
	t.Parallel()

	cfg := testConfig("ws://localhost:1")
	cfg.Server.Mode = "smoke_signals"

	_, err := app.New(cfg,
		app.WithCaptureSource(&mock.Source{}),
		app.WithPlaybackOutput(&mock.Output{}, &mock.Clock{}))
	if err == nil {
		t.Fatal("New accepted an unknown transport mode")
	}
	if !strings.Contains(err.Error(), "app: init client") {
		t.Errorf("error = %v, want an init client wrap", err)
	}
}

// ── Run ───────────────────────────────────────────────────────────────────────

func TestRun_VoiceCommandEndsConversation(t *testing.T) {
	t.Parallel()

	pcm := audio.Int16ToBytes(make([]int16, 8000)) // 500ms at 16kHz

	srv := startBackend(t, func(conn *websocket.Conn) {
		envelopeHandshake(t, conn)
		writeJSON(t, conn, audioChunkMsg(pcm))
		writeJSON(t, conn, map[string]any{"type": "user_transcript", "text": "please hang up now"})
		<-conn.CloseRead(context.Background()).Done()
	})

	h := newHarness(t, testConfig(wsURL(srv)))
	errCh := runApp(context.Background(), h)

	if err := waitDone(t, errCh); err != nil {
		t.Fatalf("Run after a disconnect command = %v, want nil", err)
	}

	// The chunk arrived before the transcript, so it must have been
	// scheduled before the session wound down.
	if h.output.PlayCount() < 1 {
		t.Error("agent audio never reached the speaker")
	}
	if got := commandCount(t, h.reader, "disconnect"); got != 1 {
		t.Errorf("disconnect command count = %d, want 1", got)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, func(conn *websocket.Conn) {
		envelopeHandshake(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	h := newHarness(t, testConfig(wsURL(srv)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runApp(ctx, h)

	waitFor(t, "capture to start", h.source.Started)
	cancel()

	if err := waitDone(t, errCh); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run after cancel = %v, want context.Canceled", err)
	}
	if h.source.Started() {
		t.Error("capture source still running after Run returned")
	}
}

func TestRun_BackendCrashSurfacesDisconnect(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, func(conn *websocket.Conn) {
		envelopeHandshake(t, conn)
		conn.Close(websocket.StatusInternalError, "backend crashed")
	})

	h := newHarness(t, testConfig(wsURL(srv)))
	errCh := runApp(context.Background(), h)

	err := waitDone(t, errCh)
	if err == nil {
		t.Fatal("Run returned nil after the backend dropped the connection")
	}
	var discErr *client.DisconnectedError
	if !errors.As(err, &discErr) {
		t.Errorf("Run error = %T, want *client.DisconnectedError", err)
	}
}

func TestRun_MuteCommandStopsTransmission(t *testing.T) {
	t.Parallel()

	say := make(chan map[string]any, 4)
	received := make(chan string, 64)
	srv := scriptedBackend(t, say, received)

	h := newHarness(t, testConfig(wsURL(srv)))
	errCh := runApp(context.Background(), h)

	say <- map[string]any{"type": "user_transcript", "text": "mute"}
	waitFor(t, "mute command", func() bool {
		return commandCount(t, h.reader, "mute") == 1
	})

	// With the microphone muted, captured windows must not go out.
	for i := 0; i < 3; i++ {
		h.source.Push(loudWindow())
	}

	say <- map[string]any{"type": "user_transcript", "text": "hang up"}
	close(say)
	if err := waitDone(t, errCh); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}

	chunks := 0
	for len(received) > 0 {
		if <-received == "user_audio_chunk" {
			chunks++
		}
	}
	if chunks != 0 {
		t.Errorf("backend received %d audio chunks while muted, want 0", chunks)
	}
}

func TestRun_BargeInCutsPlayback(t *testing.T) {
	t.Parallel()

	say := make(chan map[string]any, 4)
	received := make(chan string, 64)
	srv := scriptedBackend(t, say, received)

	cfg := testConfig(wsURL(srv))
	cfg.VAD.RequiredWindows = 2

	h := newHarness(t, cfg)
	errCh := runApp(context.Background(), h)

	// Half a second of agent audio keeps the mock timeline in the playing
	// state, since the clock never advances.
	say <- audioChunkMsg(audio.Int16ToBytes(make([]int16, 8000)))
	waitFor(t, "agent audio to play", func() bool { return h.output.PlayCount() >= 1 })

	// Two consecutive voiced windows arm the detector and cut playback.
	h.source.Push(loudWindow())
	h.source.Push(loudWindow())

	if h.output.StopCount() < 1 {
		t.Error("barge-in did not stop playback")
	}

	say <- map[string]any{"type": "user_transcript", "text": "goodbye"}
	close(say)
	if err := waitDone(t, errCh); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
}

func TestRun_RecordsConversation(t *testing.T) {
	t.Parallel()

	say := make(chan map[string]any, 4)
	received := make(chan string, 64)
	srv := scriptedBackend(t, say, received)

	cfg := testConfig(wsURL(srv))
	cfg.Recording = config.RecordingConfig{Enabled: true, Dir: t.TempDir()}

	h := newHarness(t, cfg)
	errCh := runApp(context.Background(), h)

	say <- audioChunkMsg(audio.Int16ToBytes(make([]int16, 1600)))
	waitFor(t, "agent audio to play", func() bool { return h.output.PlayCount() >= 1 })

	// Playback implies the pipeline is up, so pushed windows reach the tap.
	h.source.Push(make([]float32, 160))

	say <- map[string]any{"type": "user_transcript", "text": "hang up"}
	close(say)
	if err := waitDone(t, errCh); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}

	for _, pattern := range []string{"mic-*.wav", "agent-*.wav"} {
		matches, err := filepath.Glob(filepath.Join(cfg.Recording.Dir, pattern))
		if err != nil || len(matches) != 1 {
			t.Fatalf("glob %s: %v (matches %v)", pattern, err, matches)
		}
		info, err := os.Stat(matches[0])
		if err != nil {
			t.Fatalf("stat %s: %v", matches[0], err)
		}
		if info.Size() <= 44 {
			t.Errorf("%s holds no samples beyond the header (%d bytes)", filepath.Base(matches[0]), info.Size())
		}
	}
}

// ── Shutdown ──────────────────────────────────────────────────────────────────

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig("ws://localhost:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.app.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := h.app.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

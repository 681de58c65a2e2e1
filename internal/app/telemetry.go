package app

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snakescriptdev/voice-ninja-client/internal/health"
	"github.com/snakescriptdev/voice-ninja-client/internal/observe"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/capture"
	"github.com/snakescriptdev/voice-ninja-client/pkg/client"
)

// initTelemetry builds the HTTP server exposing /metrics, /healthz and
// /readyz. Disabled when no listen address is configured. The server starts
// listening when Run begins.
func (a *App) initTelemetry() {
	addr := a.cfg.Telemetry.ListenAddr
	if addr == "" {
		return
	}

	checks := health.New(
		health.StateProbe("session", "no ready session", func() bool {
			return a.client.State() == client.StateReady
		}),
		health.StateProbe("capture", "microphone pipeline not running", func() bool {
			p := a.currentPipeline()
			return p != nil && p.State() != capture.StateStopped
		}),
	)

	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.telemetry = &http.Server{
		Addr:              addr,
		Handler:           observe.Instrument(a.metrics, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.closers = append(a.closers, a.telemetry.Close)
}

// serveTelemetry starts the listener in the background. Bind failures are
// logged rather than fatal; a conversation can run without telemetry.
func (a *App) serveTelemetry() {
	srv := a.telemetry
	go func() {
		slog.Info("telemetry endpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("telemetry server error", "err", err)
		}
	}()
}

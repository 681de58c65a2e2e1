// Command ninja is the voice ninja conversation client. It connects the
// local microphone and speaker to a conversational agent backend and runs
// one voice conversation from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/snakescriptdev/voice-ninja-client/internal/app"
	"github.com/snakescriptdev/voice-ninja-client/internal/config"
	"github.com/snakescriptdev/voice-ninja-client/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ────────────────────────────────────────────────────────────
	// An optional .env carries NINJA_USERNAME / NINJA_PASSWORD so credentials
	// stay out of the config file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "ninja: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ninja: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ninja: %v\n", err)
		}
		return 1
	}
	applyEnvOverrides(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config hot reload can adjust it.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voice ninja starting",
		"config", *configPath,
		"server", cfg.Server.URL,
		"mode", string(cfg.Server.Mode),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry providers ───────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voice-ninja",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	printStartupSummary(cfg)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg,
		app.WithHotReload(*configPath),
		app.WithLogLevelVar(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("connecting, press Ctrl+C to end the conversation")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("conversation ended with error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// applyEnvOverrides lets credentials come from the environment instead of
// the config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("NINJA_USERNAME"); v != "" {
		cfg.Server.Username = v
	}
	if v := os.Getenv("NINJA_PASSWORD"); v != "" {
		cfg.Server.Password = v
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	border := strings.Repeat("═", 40)
	fmt.Println("╔" + border + "╗")
	fmt.Printf("║ %-38s ║\n", "voice ninja client")
	fmt.Println("╠" + border + "╣")

	row := func(key, value string) {
		if value == "" {
			value = "(not set)"
		}
		if len(value) > 24 {
			value = value[:21] + "..."
		}
		fmt.Printf("║ %-11s : %-24s ║\n", key, value)
	}

	row("server", cfg.Server.URL)
	row("mode", string(cfg.Server.Mode))
	row("agent", cfg.Server.AgentID)
	row("language", cfg.Server.Language)
	row("voice", cfg.Server.Voice)
	if cfg.Recording.Enabled {
		row("recording", cfg.Recording.Dir)
	} else {
		row("recording", "(disabled)")
	}
	if cfg.Telemetry.ListenAddr != "" {
		row("telemetry", cfg.Telemetry.ListenAddr)
	} else {
		row("telemetry", "(disabled)")
	}
	fmt.Println("╚" + border + "╝")
}

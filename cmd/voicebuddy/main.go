// Command voicebuddy serves recitation sessions over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/app"
	"github.com/liamchens/quran-voice-buddy/internal/config"
	"github.com/liamchens/quran-voice-buddy/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voicebuddy.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload alignment and session settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicebuddy: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicebuddy: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger, logCloser := newLogger(cfg.Server, level)
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("voicebuddy starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	built, err := buildProviders(ctx, cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg, built)

	opts := []app.Option{
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.Handler()),
		app.WithHealthChecks(built.checks...),
		app.WithCloser(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(sctx)
		}),
	}
	for _, c := range built.closers {
		opts = append(opts, app.WithCloser(c))
	}

	application, err := app.New(cfg, built.providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		built.close()
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(r config.Reload) {
			if r.Diff.LogLevelChanged {
				level.Set(slogLevel(r.Diff.NewLogLevel))
				slog.Info("log level changed", "level", r.Diff.NewLogLevel)
			}
			if err := application.Reload(r.New); err != nil {
				slog.Error("config reload rejected", "err", err)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go w.Watch(ctx)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = application.Shutdown(sctx)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, b *builtProviders) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      Voice Buddy: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerLabel(cfg.Providers.STT.Name, cfg.Providers.STT.Model))
	printRow("STT fallbacks", fmt.Sprint(len(cfg.Providers.STTFallbacks)))
	printRow("Passages", b.passageChain)
	if cfg.Passages.CacheSize > 0 {
		printRow("Passage cache", fmt.Sprint(cfg.Passages.CacheSize))
	}
	mode := cfg.Session.Mode
	if mode == "" {
		mode = "final"
	}
	printRow("Session mode", mode)
	if cfg.Session.MaxSessions > 0 {
		printRow("Max sessions", fmt.Sprint(cfg.Session.MaxSessions))
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	switch {
	case name == "":
		return "(client-side only)"
	case model != "":
		return name + " / " + model
	default:
		return name
	}
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

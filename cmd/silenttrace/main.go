// Command silenttrace captures audio from the system microphone and streams
// fixed-size timestamped chunks to the downstream analysis process over a
// local Unix socket.
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

	"github.com/meddje/silenttrace/internal/app"
	"github.com/meddje/silenttrace/internal/config"
	"github.com/meddje/silenttrace/internal/observe"
	"github.com/meddje/silenttrace/pkg/audio"
	"github.com/meddje/silenttrace/pkg/audio/alsa"
	"github.com/meddje/silenttrace/pkg/audio/mock"
	"github.com/meddje/silenttrace/pkg/audio/portaudio"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "silenttrace: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "silenttrace: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("silenttrace starting",
		"config", *configPath,
		"backend", cfg.Capture.Backend,
		"socket", cfg.Stream.SocketPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	// The handler only cancels the context; all resource release runs later in
	// the normal execution path.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "silenttrace",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Capture backend registry ──────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	src, err := reg.OpenSource(cfg)
	if err != nil {
		slog.Error("failed to open capture device", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, src)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg, src)
	slog.Info("capture ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("capture session ended with fault", "err", runErr)
	}

	// Every exit path — normal stop, startup fault, loop fault — funnels
	// through the same release sequence.
	if err := application.Shutdown(context.Background()); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the capture backends that ship with
// SilentTrace into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterSource("alsa", func(cfg audio.Config) (audio.Source, error) {
		return alsa.Open(cfg)
	})
	reg.RegisterSource("portaudio", func(cfg audio.Config) (audio.Source, error) {
		return portaudio.Open(cfg)
	})
	// The mock backend generates a paced sine tone so the full pipeline can be
	// exercised on hosts without a microphone.
	reg.RegisterSource("mock", func(cfg audio.Config) (audio.Source, error) {
		return mock.NewSynth(cfg, 440), nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, src audio.Source) {
	format := src.Format()
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      SilentTrace — capture summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Backend", cfg.Capture.Backend)
	printRow("Sample rate", fmt.Sprintf("%d Hz", format.SampleRate))
	printRow("Channels", fmt.Sprintf("%d", format.Channels))
	printRow("Period", fmt.Sprintf("%d frames", src.PeriodFrames()))
	printRow("Window", fmt.Sprintf("%d s", cfg.Capture.WindowSeconds))
	printRow("Socket", cfg.Stream.SocketPath)
	if cfg.Server.MetricsAddr != "" {
		printRow("Metrics", cfg.Server.MetricsAddr)
	} else {
		printRow("Metrics", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-12s : %-22s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

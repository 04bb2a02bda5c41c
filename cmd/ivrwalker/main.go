// Command ivrwalker is the main entry point for the IVR exploration engine.
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

	"github.com/MrWong99/ivrwalker/internal/app"
	"github.com/MrWong99/ivrwalker/internal/config"
	"github.com/MrWong99/ivrwalker/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ivrwalker: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ivrwalker: %v\n", err)
		}
		return 1
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseStartupLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("ivrwalker starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"target", cfg.Run.TargetPhoneNumber,
		"worker_count", cfg.Run.WorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GraceShutdown())
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()
	registry := config.NewDefaultRegistry()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, registry,
		app.WithMetrics(metrics),
		app.WithConfigWatch(*configPath),
		app.WithLevelVar(levelVar),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("exploration engine ready", "listen_addr", cfg.Server.ListenAddr)

	summary, runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	} else {
		slog.Info("exploration finished",
			"reason", summary.Reason,
			"calls_attempted", summary.Stats.CallsAttempted,
			"calls_succeeded", summary.Stats.CallsSucceeded,
			"nodes", len(summary.Graph.Nodes),
			"edges", len(summary.Graph.Edges),
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GraceShutdown())
	defer cancel()

	slog.Info("shutting down…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	return 0
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       ivrwalker — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Voice", cfg.Providers.Voice.Name)
	printField("Transcriber", cfg.Providers.Transcriber.Name)
	printField("LLM", cfg.Providers.LLM.Name)
	fmt.Printf("║  Worker count    : %-19d ║\n", cfg.Run.WorkerCount)
	fmt.Printf("║  Max calls       : %-19d ║\n", cfg.Run.MaxCalls)
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func parseStartupLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Command pmarb runs the live cross-venue signal engine: it connects to
// both venues' WebSocket feeds, maintains canonical order books, emits
// and risk-gates trading signals, and records everything for later
// calibration and replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pmarb/internal/config"
	"pmarb/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dryRun       = flag.Bool("dry-run", false, "simulate placement without contacting any venue")
		logLevel     = flag.String("log-level", "", "override configured log level (DEBUG, INFO, WARNING, ERROR)")
		logFile      = flag.String("log-file", "", "write logs to this file instead of stderr")
		scanInterval = flag.Int("scan-interval", 0, "override the periodic snapshot interval in seconds")
		configPath   = flag.String("config", os.Getenv("PMARB_CONFIG"), "path to a YAML config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	if *dryRun {
		cfg.DryRun = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *scanInterval > 0 {
		cfg.SnapshotIntervalSec = *scanInterval
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation error: %v\n", err)
		return 1
	}

	logger, closeLog, err := buildLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		return 1
	}
	defer closeLog()

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		logger.Error("failed to construct supervisor", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Discover(ctx); err != nil {
		logger.Error("market discovery failed", "err", err)
		return 1
	}

	sup.Start(ctx)

	if cfg.DryRun {
		logger.Warn("running in dry-run mode: no orders will reach any venue")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping")
	sup.Stop()

	return 0
}

func buildLogger(level, format, file string) (*slog.Logger, func(), error) {
	out := os.Stderr
	closeFn := func() {}

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closeFn, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARNING", "WARN", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Command crossarb runs the cross-venue spread bot. It loads configuration,
// applies CLI flag overrides, sets up signal handling, and trades until
// interrupted.
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

	"github.com/yukaisun/crossarb/internal/app"
	"github.com/yukaisun/crossarb/internal/config"
)

func main() {
	var (
		configPath     = flag.String("config", "", "path to TOML configuration file (optional)")
		ticker         = flag.String("ticker", "", "contract ticker, e.g. BTC")
		size           = flag.Float64("size", 0, "order size per leg in base units (required)")
		longThreshold  = flag.Float64("long-threshold", 5, "minimum spread to go long Backpack")
		shortThreshold = flag.Float64("short-threshold", 5, "minimum spread to go short Backpack")
		maxPosition    = flag.Float64("max-position", 0, "absolute Backpack position cap, 0 for unlimited")
		checkInterval  = flag.Duration("check-interval", 0, "tick period, e.g. 100ms (default from config)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// CLI flags win over both file and environment.
	if *ticker != "" {
		cfg.Trading.Ticker = *ticker
	}
	if *size != 0 {
		cfg.Trading.Size = *size
	}
	applyFlag(&cfg.Trading.LongThreshold, "long-threshold", *longThreshold)
	applyFlag(&cfg.Trading.ShortThreshold, "short-threshold", *shortThreshold)
	applyFlag(&cfg.Trading.MaxPosition, "max-position", *maxPosition)
	if *checkInterval > 0 {
		if err := cfg.Trading.CheckInterval.UnmarshalText([]byte(checkInterval.String())); err != nil {
			logger.Error("invalid check-interval", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.Info("crossarb starting",
		slog.String("ticker", cfg.Trading.Ticker),
		slog.Float64("size", cfg.Trading.Size),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// An interrupt-driven shutdown still exits non-zero so supervisors can
	// tell it apart from a natural stop.
	if ctx.Err() != nil {
		logger.Info("interrupted, shut down cleanly")
		os.Exit(1)
	}
}

// applyFlag copies a numeric flag into the config only when the operator set
// it explicitly, so TOML and environment values survive defaults.
func applyFlag(dst *float64, name string, value float64) {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if set {
		*dst = value
	}
}

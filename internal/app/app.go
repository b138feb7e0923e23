// Package app wires the venue adapters, the trading loop and the optional
// sinks, and owns the application lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/yukaisun/crossarb/internal/bot"
	"github.com/yukaisun/crossarb/internal/config"
	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/executor"
	"github.com/yukaisun/crossarb/internal/ledger"
	"github.com/yukaisun/crossarb/internal/retry"
	"github.com/yukaisun/crossarb/internal/spread"
	"github.com/yukaisun/crossarb/internal/venue/backpack"
	"github.com/yukaisun/crossarb/internal/venue/lighter"
)

const (
	bpVenueName = string(domain.VenueBackpack)
	ltVenueName = string(domain.VenueLighter)
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires everything and blocks until ctx is cancelled or a fatal error
// occurs.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("ticker", a.cfg.Trading.Ticker),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	board := spread.NewBoard(a.logger)
	bpSink := func(q domain.Quote) {
		deps.Metrics.QuoteUpdates.WithLabelValues(bpVenueName).Inc()
		board.UpdateBackpack(q)
	}
	ltSink := func(q domain.Quote) {
		deps.Metrics.QuoteUpdates.WithLabelValues(ltVenueName).Inc()
		board.UpdateLighter(q)
	}

	bpVenue, err := backpack.New(backpack.Config{
		BaseURL:   a.cfg.Backpack.BaseURL,
		WSURL:     a.cfg.Backpack.WSURL,
		PublicKey: a.cfg.Backpack.PublicKey,
		SecretKey: a.cfg.Backpack.SecretKey,
	}, a.cfg.Trading.Ticker, bpSink, a.logger)
	if err != nil {
		return fmt.Errorf("app: backpack venue: %w", err)
	}

	ltVenue, err := lighter.New(lighter.Config{
		BaseURL:      a.cfg.Lighter.BaseURL,
		WSURL:        a.cfg.Lighter.WSURL,
		PrivateKey:   a.cfg.Lighter.PrivateKey,
		AccountIndex: a.cfg.Lighter.AccountIndex,
		APIKeyIndex:  a.cfg.Lighter.APIKeyIndex,
	}, a.cfg.Trading.Ticker, ltSink, a.logger)
	if err != nil {
		return fmt.Errorf("app: lighter venue: %w", err)
	}

	led := ledger.New(bpVenue, ltVenue, retry.DefaultQueryPolicy(), a.logger)

	coordOpts := []executor.Option{
		executor.WithMetrics(deps.Metrics),
		executor.WithRecorder(deps.Recorder),
	}
	if deps.ExecStore != nil {
		coordOpts = append(coordOpts, executor.WithStore(deps.ExecStore))
	}
	if deps.Publisher != nil {
		coordOpts = append(coordOpts, executor.WithPublisher(deps.Publisher))
	}
	coord := executor.New(bpVenue, ltVenue, led, a.logger, coordOpts...)

	params := bot.Params{
		Quantity:         decimal.NewFromFloat(a.cfg.Trading.Size),
		LongThreshold:    decimal.NewFromFloat(a.cfg.Trading.LongThreshold),
		ShortThreshold:   decimal.NewFromFloat(a.cfg.Trading.ShortThreshold),
		MaxPosition:      decimal.NewFromFloat(a.cfg.Trading.MaxPosition),
		CheckInterval:    a.cfg.Trading.CheckInterval.Std(),
		BalanceTolerance: decimal.NewFromFloat(a.cfg.Trading.BalanceTolerance),
	}

	botOpts := []bot.Option{
		bot.WithRecorder(deps.Recorder),
		bot.WithMetrics(deps.Metrics),
	}
	if deps.Publisher != nil {
		botOpts = append(botOpts, bot.WithPublisher(deps.Publisher))
	}
	trader := bot.New(bpVenue, ltVenue, board, led, coord, params, a.logger, botOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return trader.Run(gctx)
	})
	if a.cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return deps.Metrics.Serve(gctx, a.cfg.Metrics.Addr, a.logger)
		})
	}
	return g.Wait()
}

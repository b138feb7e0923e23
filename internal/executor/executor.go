// Package executor fires both legs of an arbitrage trade concurrently and
// classifies the joint outcome. Orders are never retried; a partially filled
// pair is unwound at most once.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/ledger"
	"github.com/yukaisun/crossarb/internal/metrics"
)

// TradeRecorder persists completed executions to the local trade log.
type TradeRecorder interface {
	RecordTrade(exec domain.Execution)
}

// Counts is the running tally reported in the shutdown summary.
type Counts struct {
	Attempted int64
	Succeeded int64
	Failed    int64
	Unwound   int64
}

// Coordinator owns dual-leg execution. Optional sinks (store, publisher,
// recorder) may be nil; their failures are logged and never affect trading.
type Coordinator struct {
	backpack domain.Venue
	lighter  domain.Venue
	ledger   *ledger.Ledger
	logger   *slog.Logger

	legTimeout time.Duration

	store     domain.ExecutionStore
	publisher domain.QuotePublisher
	recorder  TradeRecorder
	metrics   *metrics.Metrics

	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	unwound   atomic.Int64
}

// Option configures optional coordinator sinks.
type Option func(*Coordinator)

func WithStore(s domain.ExecutionStore) Option        { return func(c *Coordinator) { c.store = s } }
func WithPublisher(p domain.QuotePublisher) Option    { return func(c *Coordinator) { c.publisher = p } }
func WithRecorder(r TradeRecorder) Option             { return func(c *Coordinator) { c.recorder = r } }
func WithMetrics(m *metrics.Metrics) Option           { return func(c *Coordinator) { c.metrics = m } }
func WithLegTimeout(d time.Duration) Option           { return func(c *Coordinator) { c.legTimeout = d } }

// New creates a coordinator over the two venues and the shared ledger.
func New(backpack, lighter domain.Venue, led *ledger.Ledger, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		backpack:   backpack,
		lighter:    lighter,
		ledger:     led,
		logger:     logger.With(slog.String("component", "executor")),
		legTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute places both market-order legs for the given direction and waits for
// both to resolve before classifying. One leg failing never short-circuits
// the other: its result is needed to know what, if anything, must be unwound.
func (c *Coordinator) Execute(ctx context.Context, direction domain.Direction, qty decimal.Decimal) domain.Execution {
	c.attempted.Add(1)
	start := time.Now()

	exec := domain.Execution{
		ID:        uuid.NewString(),
		Direction: direction,
		Quantity:  qty,
		StartedAt: start,
	}

	backpackSide := domain.OrderSideBuy
	lighterSide := domain.OrderSideSell
	if direction == domain.DirectionShortBackpack {
		backpackSide = domain.OrderSideSell
		lighterSide = domain.OrderSideBuy
	}

	c.logger.Info("executing",
		slog.String("execution_id", exec.ID),
		slog.String("direction", string(direction)),
		slog.String("quantity", qty.String()),
	)

	legCtx, cancel := context.WithTimeout(ctx, c.legTimeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		exec.Backpack = c.backpack.PlaceMarketOrder(legCtx, qty, backpackSide)
	}()
	go func() {
		defer wg.Done()
		exec.Lighter = c.lighter.PlaceMarketOrder(legCtx, qty, lighterSide)
	}()
	wg.Wait()

	exec.Outcome = classify(exec.Backpack, exec.Lighter)
	exec.DoneAt = time.Now()

	switch exec.Outcome {
	case domain.OutcomeBothSucceeded:
		c.succeeded.Add(1)
		c.ledger.ApplyDelta(domain.VenueBackpack, signedDelta(exec.Backpack))
		c.ledger.ApplyDelta(domain.VenueLighter, signedDelta(exec.Lighter))
		c.logger.Info("execution complete",
			slog.String("execution_id", exec.ID),
			slog.String("backpack_price", exec.Backpack.AvgPrice.String()),
			slog.String("lighter_price", exec.Lighter.AvgPrice.String()),
		)
	case domain.OutcomeBothFailed:
		c.failed.Add(1)
		c.logger.Error("both legs failed",
			slog.String("execution_id", exec.ID),
			slog.String("backpack_error", exec.Backpack.Message),
			slog.String("lighter_error", exec.Lighter.Message),
		)
	default:
		c.failed.Add(1)
		c.unwindPartial(ctx, &exec)
	}

	c.observe(&exec, time.Since(start))
	c.persist(ctx, exec)
	return exec
}

// TotalCounts snapshots the tallies for the shutdown summary.
func (c *Coordinator) TotalCounts() Counts {
	return Counts{
		Attempted: c.attempted.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
		Unwound:   c.unwound.Load(),
	}
}

func classify(bp, lt domain.OrderResult) domain.Outcome {
	switch {
	case bp.Success && lt.Success:
		return domain.OutcomeBothSucceeded
	case bp.Success:
		return domain.OutcomeLighterFailed
	case lt.Success:
		return domain.OutcomeBackpackFailed
	default:
		return domain.OutcomeBothFailed
	}
}

// signedDelta converts a fill into a ledger delta: buys add, sells subtract.
func signedDelta(r domain.OrderResult) decimal.Decimal {
	if r.Side == domain.OrderSideBuy {
		return r.FilledSize
	}
	return r.FilledSize.Neg()
}

// unwindPartial reverses the one filled leg with a single opposite market
// order. If the unwind itself fails, the residual one-sided exposure is
// recorded in the ledger so position limits account for it.
func (c *Coordinator) unwindPartial(ctx context.Context, exec *domain.Execution) {
	venue := c.backpack
	venueID := domain.VenueBackpack
	filled := exec.Backpack
	if exec.Outcome == domain.OutcomeBackpackFailed {
		venue = c.lighter
		venueID = domain.VenueLighter
		filled = exec.Lighter
	}

	if !filled.FilledSize.IsPositive() {
		return
	}

	c.logger.Warn("partial execution, unwinding",
		slog.String("execution_id", exec.ID),
		slog.String("venue", venue.Name()),
		slog.String("filled", filled.FilledSize.String()),
	)

	unwindCtx, cancel := context.WithTimeout(ctx, c.legTimeout)
	defer cancel()
	res := venue.PlaceMarketOrder(unwindCtx, filled.FilledSize, filled.Side.Opposite())
	if res.Success {
		c.unwound.Add(1)
		exec.Unwound = true
		c.logger.Info("unwind filled",
			slog.String("execution_id", exec.ID),
			slog.String("venue", venue.Name()),
		)
		return
	}

	c.ledger.ApplyDelta(venueID, signedDelta(filled))
	c.logger.Error("unwind failed, residual exposure recorded",
		slog.String("execution_id", exec.ID),
		slog.String("venue", venue.Name()),
		slog.String("residual", signedDelta(filled).String()),
		slog.String("error", res.Message),
	)
}

func (c *Coordinator) observe(exec *domain.Execution, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.Executions.WithLabelValues(string(exec.Outcome)).Inc()
		c.metrics.ExecutionLatency.Observe(elapsed.Seconds())
	}
}

// persist fans the finished execution out to the optional sinks. Sink errors
// never propagate to the trading loop.
func (c *Coordinator) persist(ctx context.Context, exec domain.Execution) {
	if c.recorder != nil {
		c.recorder.RecordTrade(exec)
	}
	if c.store != nil {
		if err := c.store.Create(ctx, exec); err != nil {
			c.logger.Warn("execution store write failed",
				slog.String("execution_id", exec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.publisher != nil {
		if err := c.publisher.PublishExecution(ctx, exec); err != nil {
			c.logger.Warn("execution publish failed",
				slog.String("execution_id", exec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

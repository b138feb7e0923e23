// Package bot runs the trading loop: wait for both venue feeds, then poll the
// spread board on a fixed interval and hand signals to the execution
// coordinator.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/executor"
	"github.com/yukaisun/crossarb/internal/ledger"
	"github.com/yukaisun/crossarb/internal/metrics"
	"github.com/yukaisun/crossarb/internal/retry"
	"github.com/yukaisun/crossarb/internal/spread"
)

// State is the lifecycle phase of the loop, exposed for logging.
type State string

const (
	StateInitializing    State = "initializing"
	StateWaitingForFeeds State = "waiting_for_feeds"
	StateTrading         State = "trading"
	StateShuttingDown    State = "shutting_down"
)

const (
	feedPollInterval = 500 * time.Millisecond
	feedWaitTimeout  = 30 * time.Second
	bboInterval      = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// BBORecorder receives periodic top-of-book samples.
type BBORecorder interface {
	RecordBBO(backpack, lighter domain.Quote, spreads spread.Spreads, signal domain.Direction)
}

// Params are the operator-supplied trading parameters, already validated.
type Params struct {
	Quantity       decimal.Decimal
	LongThreshold  decimal.Decimal
	ShortThreshold decimal.Decimal
	// MaxPosition caps the absolute Backpack position. Zero means unlimited.
	MaxPosition decimal.Decimal
	// CheckInterval is the tick period.
	CheckInterval time.Duration
	// BalanceTolerance bounds the acceptable absolute net position.
	BalanceTolerance decimal.Decimal
}

// Bot wires the feeds, the spread board, the ledger and the coordinator into
// one loop. Optional sinks may be nil.
type Bot struct {
	backpack domain.Venue
	lighter  domain.Venue
	board    *spread.Board
	ledger   *ledger.Ledger
	coord    *executor.Coordinator
	params   Params
	logger   *slog.Logger

	recorder  BBORecorder
	publisher domain.QuotePublisher
	metrics   *metrics.Metrics

	state        atomic.Value
	ticks        atomic.Int64
	longSignals  atomic.Int64
	shortSignals atomic.Int64

	shutdownOnce sync.Once
}

// Option configures optional bot sinks.
type Option func(*Bot)

func WithRecorder(r BBORecorder) Option            { return func(b *Bot) { b.recorder = r } }
func WithPublisher(p domain.QuotePublisher) Option { return func(b *Bot) { b.publisher = p } }
func WithMetrics(m *metrics.Metrics) Option        { return func(b *Bot) { b.metrics = m } }

// New builds the bot. The board is owned by the caller so the venue feed
// goroutines can publish into it directly.
func New(backpack, lighter domain.Venue, board *spread.Board, led *ledger.Ledger, coord *executor.Coordinator, params Params, logger *slog.Logger, opts ...Option) *Bot {
	b := &Bot{
		backpack: backpack,
		lighter:  lighter,
		board:    board,
		ledger:   led,
		coord:    coord,
		params:   params,
		logger:   logger.With(slog.String("component", "bot")),
	}
	b.state.Store(StateInitializing)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle phase.
func (b *Bot) State() State {
	return b.state.Load().(State)
}

// Run executes the full lifecycle and blocks until ctx is cancelled or a
// fatal startup error occurs. Shutdown always runs, exactly once.
func (b *Bot) Run(ctx context.Context) error {
	defer b.shutdown()

	b.setState(StateInitializing)
	if err := b.connect(ctx); err != nil {
		return err
	}

	b.ledger.Refresh(ctx)
	if !b.ledger.IsBalanced(b.params.BalanceTolerance) {
		b.logger.Warn("starting with unbalanced positions",
			slog.String("net", b.ledger.NetPosition().String()))
	}

	b.setState(StateWaitingForFeeds)
	if err := b.waitForFeeds(ctx); err != nil {
		return err
	}

	b.logQuoteSnapshots(ctx)

	b.setState(StateTrading)
	b.logger.Info("trading started",
		slog.String("quantity", b.params.Quantity.String()),
		slog.String("long_threshold", b.params.LongThreshold.String()),
		slog.String("short_threshold", b.params.ShortThreshold.String()),
		slog.String("max_position", b.params.MaxPosition.String()),
	)

	ticker := time.NewTicker(b.params.CheckInterval)
	defer ticker.Stop()
	lastBBO := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			b.tick(ctx, now, &lastBBO)
		}
	}
}

// connect starts both venue feeds. Either venue failing to connect is fatal.
func (b *Bot) connect(ctx context.Context) error {
	for _, v := range []domain.Venue{b.backpack, b.lighter} {
		if err := v.Connect(ctx); err != nil {
			return fmt.Errorf("connect %s: %w", v.Name(), err)
		}
		b.logger.Info("venue connected", slog.String("venue", v.Name()))
	}
	return nil
}

// waitForFeeds polls until both order books have produced a complete quote.
// Timing out is fatal: trading on one feed would be blind arbitrage.
func (b *Bot) waitForFeeds(ctx context.Context) error {
	deadline := time.NewTimer(feedWaitTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(feedPollInterval)
	defer poll.Stop()

	for {
		if b.backpack.FeedReady() && b.lighter.FeedReady() && b.board.Ready() {
			b.logger.Info("both feeds streaming")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("feeds not ready after %s: %w", feedWaitTimeout, domain.ErrFeedNotReady)
		case <-poll.C:
		}
	}
}

// logQuoteSnapshots fetches a point-in-time quote from each venue over REST
// and logs it next to the streaming books, a cross-check of the feeds before
// trading starts. Exhausted retries fall back to a zero quote.
func (b *Bot) logQuoteSnapshots(ctx context.Context) {
	type quotePair struct{ bid, ask decimal.Decimal }
	for _, v := range []domain.Venue{b.backpack, b.lighter} {
		q := retry.DoWithDefault(ctx, retry.DefaultQueryPolicy(), quotePair{}, "fetch best quote", b.logger,
			func(ctx context.Context) (quotePair, error) {
				bid, ask, err := v.FetchBestQuote(ctx)
				return quotePair{bid: bid, ask: ask}, err
			})
		b.logger.Info("venue quote snapshot",
			slog.String("venue", v.Name()),
			slog.String("bid", q.bid.String()),
			slog.String("ask", q.ask.String()),
		)
	}
}

func (b *Bot) tick(ctx context.Context, now time.Time, lastBBO *time.Time) {
	b.ticks.Add(1)
	if b.metrics != nil {
		b.metrics.Ticks.Inc()
	}

	spreads, ok := b.board.Compute()
	if !ok {
		return
	}
	signal := spreads.Signal(b.params.LongThreshold, b.params.ShortThreshold)

	bp, lt, _ := b.board.Quotes()
	if b.publisher != nil {
		if err := b.publisher.PublishQuotes(ctx, bp, lt, spreads.Long, spreads.Short, signal); err != nil {
			b.logger.Warn("quote publish failed", slog.String("error", err.Error()))
		}
	}
	if b.recorder != nil && now.Sub(*lastBBO) >= bboInterval {
		b.recorder.RecordBBO(bp, lt, spreads, signal)
		*lastBBO = now
	}

	if signal == domain.DirectionNone {
		return
	}
	b.countSignal(signal)
	bpAge, ltAge := b.board.Staleness(now)
	b.logger.Info("signal",
		slog.String("direction", string(signal)),
		slog.String("long_spread", spreads.Long.String()),
		slog.String("short_spread", spreads.Short.String()),
		slog.Duration("backpack_quote_age", bpAge),
		slog.Duration("lighter_quote_age", ltAge),
	)

	if !b.canTrade(signal) {
		b.logger.Info("signal skipped, position limit",
			slog.String("direction", string(signal)),
			slog.String("backpack_position", b.ledger.Position(domain.VenueBackpack).String()),
			slog.String("max_position", b.params.MaxPosition.String()),
		)
		return
	}

	exec := b.coord.Execute(ctx, signal, b.params.Quantity)
	if exec.Outcome.Succeeded() && !b.ledger.IsBalanced(b.params.BalanceTolerance) {
		b.logger.Warn("positions unbalanced after execution",
			slog.String("net", b.ledger.NetPosition().String()))
	}
}

// canTrade enforces the Backpack position cap. The check is inclusive: a
// trade landing exactly on the cap is allowed.
func (b *Bot) canTrade(direction domain.Direction) bool {
	if b.params.MaxPosition.IsZero() {
		return true
	}
	pos := b.ledger.Position(domain.VenueBackpack)
	qty := b.params.Quantity
	switch direction {
	case domain.DirectionLongBackpack:
		return pos.Add(qty).LessThanOrEqual(b.params.MaxPosition)
	case domain.DirectionShortBackpack:
		return pos.Sub(qty).Abs().LessThanOrEqual(b.params.MaxPosition)
	default:
		return false
	}
}

func (b *Bot) countSignal(direction domain.Direction) {
	switch direction {
	case domain.DirectionLongBackpack:
		b.longSignals.Add(1)
	case domain.DirectionShortBackpack:
		b.shortSignals.Add(1)
	}
	if b.metrics != nil {
		b.metrics.Signals.WithLabelValues(string(direction)).Inc()
	}
}

// shutdown disconnects both venues under a bounded timeout and logs the
// session summary. Idempotent.
func (b *Bot) shutdown() {
	b.shutdownOnce.Do(func() {
		b.setState(StateShuttingDown)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var wg sync.WaitGroup
		for _, v := range []domain.Venue{b.backpack, b.lighter} {
			wg.Add(1)
			go func(v domain.Venue) {
				defer wg.Done()
				if err := v.Disconnect(ctx); err != nil {
					b.logger.Warn("disconnect failed",
						slog.String("venue", v.Name()),
						slog.String("error", err.Error()))
				}
			}(v)
		}
		wg.Wait()

		counts := b.coord.TotalCounts()
		b.logger.Info("session summary",
			slog.Int64("ticks", b.ticks.Load()),
			slog.Int64("long_signals", b.longSignals.Load()),
			slog.Int64("short_signals", b.shortSignals.Load()),
			slog.Int64("executions_attempted", counts.Attempted),
			slog.Int64("executions_succeeded", counts.Succeeded),
			slog.Int64("executions_failed", counts.Failed),
			slog.Int64("executions_unwound", counts.Unwound),
			slog.String("backpack_position", b.ledger.Position(domain.VenueBackpack).String()),
			slog.String("lighter_position", b.ledger.Position(domain.VenueLighter).String()),
			slog.String("net_position", b.ledger.NetPosition().String()),
		)
	})
}

func (b *Bot) setState(s State) {
	b.state.Store(s)
	b.logger.Info("state", slog.String("state", string(s)))
}

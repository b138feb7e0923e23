// Package spread combines the two venue quote feeds into a directional trade
// signal.
package spread

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
)

// Spreads are the two cross-venue price gaps computed each tick.
//
//	Long  = lighter.bid  - backpack.ask  (profit of buying Backpack, selling Lighter)
//	Short = backpack.bid - lighter.ask   (profit of buying Lighter, selling Backpack)
type Spreads struct {
	Long  decimal.Decimal
	Short decimal.Decimal
}

// Board holds the latest complete quote per venue. Quotes are only replaced
// as complete bid/ask pairs, so a reader never combines a fresh bid with a
// stale ask from the same venue. The two venues update independently; the
// resulting cross-venue skew is an accepted source of signal noise.
type Board struct {
	mu sync.RWMutex

	backpack      domain.Quote
	lighter       domain.Quote
	backpackReady bool
	lighterReady  bool

	logger *slog.Logger
}

// NewBoard creates an empty quote board.
func NewBoard(logger *slog.Logger) *Board {
	return &Board{logger: logger.With(slog.String("component", "spread_board"))}
}

// UpdateBackpack stores a new Backpack quote. Incomplete quotes are dropped,
// keeping the previous pair intact.
func (b *Board) UpdateBackpack(q domain.Quote) {
	b.update(&b.backpack, &b.backpackReady, "backpack", q)
}

// UpdateLighter stores a new Lighter quote.
func (b *Board) UpdateLighter(q domain.Quote) {
	b.update(&b.lighter, &b.lighterReady, "lighter", q)
}

func (b *Board) update(dst *domain.Quote, ready *bool, venue string, q domain.Quote) {
	if !q.Complete() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	*dst = q
	if !*ready {
		*ready = true
		b.logger.Info("order book ready",
			slog.String("venue", venue),
			slog.String("bid", q.Bid.String()),
			slog.String("ask", q.Ask.String()),
		)
	}
}

// Ready reports whether both venues have produced at least one complete quote.
func (b *Board) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backpackReady && b.lighterReady
}

// Quotes returns a consistent snapshot of both venue quotes.
func (b *Board) Quotes() (backpack, lighter domain.Quote, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.backpackReady || !b.lighterReady {
		return domain.Quote{}, domain.Quote{}, false
	}
	return b.backpack, b.lighter, true
}

// Compute derives both spreads from the current snapshot. ok is false until
// both feeds are ready and both quotes carry both sides; callers must treat
// that as "no signal", never as a zero spread.
func (b *Board) Compute() (Spreads, bool) {
	bp, lt, ok := b.Quotes()
	if !ok || !bp.Complete() || !lt.Complete() {
		return Spreads{}, false
	}
	return Spreads{
		Long:  lt.Bid.Sub(bp.Ask),
		Short: bp.Bid.Sub(lt.Ask),
	}, true
}

// Signal evaluates the spreads against the thresholds. Long takes precedence
// when both thresholds are exceeded; a spread exactly equal to its threshold
// does not trigger.
func (s Spreads) Signal(longThreshold, shortThreshold decimal.Decimal) domain.Direction {
	if s.Long.GreaterThan(longThreshold) {
		return domain.DirectionLongBackpack
	}
	if s.Short.GreaterThan(shortThreshold) {
		return domain.DirectionShortBackpack
	}
	return domain.DirectionNone
}

// Staleness returns the age of each venue quote relative to now. Used only
// for periodic snapshot logging.
func (b *Board) Staleness(now time.Time) (backpack, lighter time.Duration) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return now.Sub(b.backpack.ObservedAt), now.Sub(b.lighter.ObservedAt)
}

// Package ledger caches the per-venue signed position and reconciles it
// against venue-reported truth on demand. The cache is the single source
// consulted for position-limit checks; it is refreshed explicitly at
// startup and adjusted with fill deltas, not queried per tick.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/retry"
)

// Ledger tracks the signed position on both venues. Positive means net long.
// It is written only by the trading loop and the execution coordinator; the
// mutex exists for the signal-handling and logging read paths.
type Ledger struct {
	backpack domain.Venue
	lighter  domain.Venue
	policy   retry.Policy
	logger   *slog.Logger

	mu          sync.RWMutex
	backpackQty decimal.Decimal
	lighterQty  decimal.Decimal
}

// New creates a ledger over the two venue adapters.
func New(backpack, lighter domain.Venue, policy retry.Policy, logger *slog.Logger) *Ledger {
	return &Ledger{
		backpack: backpack,
		lighter:  lighter,
		policy:   policy,
		logger:   logger.With(slog.String("component", "ledger")),
	}
}

// Refresh queries both venues' authoritative position and overwrites the
// cache. Each query runs under the retry policy with a zero fallback, so a
// venue that stays unreachable reads as flat rather than blocking startup.
func (l *Ledger) Refresh(ctx context.Context) {
	bp := retry.DoWithDefault(ctx, l.policy, decimal.Zero, "backpack position", l.logger,
		func(ctx context.Context) (decimal.Decimal, error) {
			return l.backpack.Position(ctx)
		})
	lt := retry.DoWithDefault(ctx, l.policy, decimal.Zero, "lighter position", l.logger,
		func(ctx context.Context) (decimal.Decimal, error) {
			return l.lighter.Position(ctx)
		})

	l.mu.Lock()
	l.backpackQty = bp
	l.lighterQty = lt
	l.mu.Unlock()

	l.logPositions()
}

// ApplyDelta adjusts one venue's cached position. Called only after a
// confirmed execution leg.
func (l *Ledger) ApplyDelta(venue domain.VenueID, delta decimal.Decimal) {
	l.mu.Lock()
	switch venue {
	case domain.VenueBackpack:
		l.backpackQty = l.backpackQty.Add(delta)
	case domain.VenueLighter:
		l.lighterQty = l.lighterQty.Add(delta)
	}
	l.mu.Unlock()
}

// Position returns the cached signed position for one venue.
func (l *Ledger) Position(venue domain.VenueID) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if venue == domain.VenueBackpack {
		return l.backpackQty
	}
	return l.lighterQty
}

// NetPosition returns the sum of both venue positions. Near zero means the
// book is hedged.
func (l *Ledger) NetPosition() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.backpackQty.Add(l.lighterQty)
}

// IsBalanced reports whether the absolute net position is within tolerance.
func (l *Ledger) IsBalanced(tolerance decimal.Decimal) bool {
	return l.NetPosition().Abs().LessThanOrEqual(tolerance)
}

func (l *Ledger) logPositions() {
	l.mu.RLock()
	bp, lt := l.backpackQty, l.lighterQty
	l.mu.RUnlock()
	l.logger.Info("positions",
		slog.String("backpack", bp.String()),
		slog.String("lighter", lt.String()),
		slog.String("net", bp.Add(lt).String()),
	)
}

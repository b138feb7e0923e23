// Package book maintains per-venue order-book depth built from streamed
// snapshots and incremental deltas, and derives the best bid/ask from it.
package book

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Level is one price level on a single side of the book.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book is the depth state for one instrument on one venue. A zero MinNotional
// keeps every level; a positive value hides levels whose price*size notional
// is below it when computing the best levels (thin top-of-book protection).
type Book struct {
	mu          sync.RWMutex
	bids        map[string]Level // keyed by canonical price string
	asks        map[string]Level
	minNotional decimal.Decimal
}

// New creates an empty book with the given minimum notional filter.
func New(minNotional decimal.Decimal) *Book {
	return &Book{
		bids:        make(map[string]Level),
		asks:        make(map[string]Level),
		minNotional: minNotional,
	}
}

// Reset drops all depth. Called when a stream reconnects, before the next
// snapshot arrives.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.bids)
	clear(b.asks)
}

// ApplySnapshot replaces the full depth on both sides.
func (b *Book) ApplySnapshot(bids, asks []Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.bids)
	clear(b.asks)
	applyLevels(b.bids, bids)
	applyLevels(b.asks, asks)
}

// ApplyDelta applies incremental price/size updates to both sides. A level
// with size zero is removed.
func (b *Book) ApplyDelta(bids, asks []Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	applyLevels(b.bids, bids)
	applyLevels(b.asks, asks)
}

func applyLevels(side map[string]Level, updates []Level) {
	for _, lvl := range updates {
		key := lvl.Price.String()
		if lvl.Size.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = lvl
	}
}

// Best returns the highest bid and lowest ask that pass the notional filter.
// ok is false until both sides have at least one qualifying level.
func (b *Book) Best() (bid, ask decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid, bidOK := bestOf(b.bids, b.minNotional, func(candidate, current decimal.Decimal) bool {
		return candidate.GreaterThan(current)
	})
	ask, askOK := bestOf(b.asks, b.minNotional, func(candidate, current decimal.Decimal) bool {
		return candidate.LessThan(current)
	})
	return bid, ask, bidOK && askOK
}

// Depth returns the current number of levels per side.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

func bestOf(side map[string]Level, minNotional decimal.Decimal, better func(candidate, current decimal.Decimal) bool) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, lvl := range side {
		if minNotional.IsPositive() && lvl.Price.Mul(lvl.Size).LessThan(minNotional) {
			continue
		}
		if !found || better(lvl.Price, best) {
			best = lvl.Price
			found = true
		}
	}
	return best, found
}

package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/ledger"
	"github.com/yukaisun/crossarb/internal/retry"
)

// fakeVenue scripts market-order results in order and records every placed
// order for assertions.
type fakeVenue struct {
	name    string
	results []domain.OrderResult

	mu     sync.Mutex
	orders []placedOrder
}

type placedOrder struct {
	qty  decimal.Decimal
	side domain.OrderSide
}

func (f *fakeVenue) Name() string                     { return f.name }
func (f *fakeVenue) Connect(context.Context) error    { return nil }
func (f *fakeVenue) Disconnect(context.Context) error { return nil }
func (f *fakeVenue) FeedReady() bool                  { return true }
func (f *fakeVenue) Quote() (domain.Quote, bool)      { return domain.Quote{}, false }
func (f *fakeVenue) FetchBestQuote(context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}
func (f *fakeVenue) Position(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakeVenue) ContractInfo() domain.ContractInfo { return domain.ContractInfo{} }

func (f *fakeVenue) PlaceMarketOrder(_ context.Context, qty decimal.Decimal, side domain.OrderSide) domain.OrderResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, placedOrder{qty: qty, side: side})
	if len(f.results) == 0 {
		return domain.OrderResult{Success: false, Side: side, Message: "unscripted"}
	}
	res := f.results[0]
	f.results = f.results[1:]
	res.Side = side
	return res
}

func (f *fakeVenue) placed() []placedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placedOrder(nil), f.orders...)
}

func fill(qty decimal.Decimal, price float64) domain.OrderResult {
	return domain.OrderResult{
		Success:    true,
		OrderID:    "o-1",
		Size:       qty,
		FilledSize: qty,
		AvgPrice:   decimal.NewFromFloat(price),
		Status:     "FILLED",
	}
}

func reject(msg string) domain.OrderResult {
	return domain.OrderResult{Success: false, Status: "REJECTED", Message: msg}
}

func newTestCoordinator(bp, lt *fakeVenue) (*Coordinator, *ledger.Ledger) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(bp, lt, retry.DefaultQueryPolicy(), logger)
	return New(bp, lt, led, logger, WithLegTimeout(time.Second)), led
}

func TestExecuteBothLegsFill(t *testing.T) {
	qty := decimal.NewFromFloat(0.5)
	bp := &fakeVenue{name: "backpack", results: []domain.OrderResult{fill(qty, 101)}}
	lt := &fakeVenue{name: "lighter", results: []domain.OrderResult{fill(qty, 106)}}
	c, led := newTestCoordinator(bp, lt)

	exec := c.Execute(context.Background(), domain.DirectionLongBackpack, qty)

	require.Equal(t, domain.OutcomeBothSucceeded, exec.Outcome)
	require.True(t, exec.Outcome.Succeeded())
	require.NotEmpty(t, exec.ID)

	// Long Backpack buys there and sells on Lighter.
	require.Equal(t, domain.OrderSideBuy, bp.placed()[0].side)
	require.Equal(t, domain.OrderSideSell, lt.placed()[0].side)

	// Ledger reflects the hedged pair.
	require.True(t, led.Position(domain.VenueBackpack).Equal(qty))
	require.True(t, led.Position(domain.VenueLighter).Equal(qty.Neg()))
	require.True(t, led.NetPosition().IsZero())

	counts := c.TotalCounts()
	require.Equal(t, int64(1), counts.Attempted)
	require.Equal(t, int64(1), counts.Succeeded)
	require.Equal(t, int64(0), counts.Failed)
}

func TestExecuteShortDirectionSides(t *testing.T) {
	qty := decimal.NewFromFloat(0.5)
	bp := &fakeVenue{name: "backpack", results: []domain.OrderResult{fill(qty, 107)}}
	lt := &fakeVenue{name: "lighter", results: []domain.OrderResult{fill(qty, 100)}}
	c, led := newTestCoordinator(bp, lt)

	exec := c.Execute(context.Background(), domain.DirectionShortBackpack, qty)

	require.Equal(t, domain.OutcomeBothSucceeded, exec.Outcome)
	require.Equal(t, domain.OrderSideSell, bp.placed()[0].side)
	require.Equal(t, domain.OrderSideBuy, lt.placed()[0].side)
	require.True(t, led.Position(domain.VenueBackpack).Equal(qty.Neg()))
	require.True(t, led.Position(domain.VenueLighter).Equal(qty))
}

func TestExecuteBothFailedLeavesLedgerUntouched(t *testing.T) {
	qty := decimal.NewFromFloat(0.5)
	bp := &fakeVenue{name: "backpack", results: []domain.OrderResult{reject("insufficient margin")}}
	lt := &fakeVenue{name: "lighter", results: []domain.OrderResult{reject("market closed")}}
	c, led := newTestCoordinator(bp, lt)

	exec := c.Execute(context.Background(), domain.DirectionLongBackpack, qty)

	require.Equal(t, domain.OutcomeBothFailed, exec.Outcome)
	require.True(t, led.NetPosition().IsZero())
	require.True(t, led.Position(domain.VenueBackpack).IsZero())

	counts := c.TotalCounts()
	require.Equal(t, int64(1), counts.Failed)
	require.Equal(t, int64(0), counts.Succeeded)

	// A full failure never triggers unwind orders.
	require.Len(t, bp.placed(), 1)
	require.Len(t, lt.placed(), 1)
}

func TestExecutePartialFillUnwinds(t *testing.T) {
	qty := decimal.NewFromFloat(0.5)
	// Backpack fills, Lighter rejects, unwind on Backpack succeeds.
	bp := &fakeVenue{name: "backpack", results: []domain.OrderResult{fill(qty, 101), fill(qty, 101)}}
	lt := &fakeVenue{name: "lighter", results: []domain.OrderResult{reject("rejected")}}
	c, led := newTestCoordinator(bp, lt)

	exec := c.Execute(context.Background(), domain.DirectionLongBackpack, qty)

	require.Equal(t, domain.OutcomeLighterFailed, exec.Outcome)
	require.True(t, exec.Unwound)

	orders := bp.placed()
	require.Len(t, orders, 2)
	require.Equal(t, domain.OrderSideBuy, orders[0].side)
	require.Equal(t, domain.OrderSideSell, orders[1].side)
	require.True(t, orders[1].qty.Equal(qty))

	// Unwound pair leaves the book flat.
	require.True(t, led.NetPosition().IsZero())
	require.Equal(t, int64(1), c.TotalCounts().Unwound)
}

func TestExecuteUnwindFailureRecordsResidual(t *testing.T) {
	qty := decimal.NewFromFloat(0.5)
	// Lighter fills the sell leg, Backpack rejects, unwind on Lighter fails.
	bp := &fakeVenue{name: "backpack", results: []domain.OrderResult{reject("rejected")}}
	lt := &fakeVenue{name: "lighter", results: []domain.OrderResult{fill(qty, 106), reject("rejected again")}}
	c, led := newTestCoordinator(bp, lt)

	exec := c.Execute(context.Background(), domain.DirectionLongBackpack, qty)

	require.Equal(t, domain.OutcomeBackpackFailed, exec.Outcome)
	require.False(t, exec.Unwound)

	// Residual short exposure on Lighter is tracked.
	require.True(t, led.Position(domain.VenueLighter).Equal(qty.Neg()))
	require.True(t, led.Position(domain.VenueBackpack).IsZero())
}

type captureStore struct {
	mu    sync.Mutex
	execs []domain.Execution
	err   error
}

func (s *captureStore) Create(_ context.Context, e domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, e)
	return s.err
}

func TestExecutePersistsToStore(t *testing.T) {
	qty := decimal.NewFromFloat(0.5)
	bp := &fakeVenue{name: "backpack", results: []domain.OrderResult{fill(qty, 101)}}
	lt := &fakeVenue{name: "lighter", results: []domain.OrderResult{fill(qty, 106)}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(bp, lt, retry.DefaultQueryPolicy(), logger)
	store := &captureStore{}
	c := New(bp, lt, led, logger, WithLegTimeout(time.Second), WithStore(store))

	exec := c.Execute(context.Background(), domain.DirectionLongBackpack, qty)

	require.Len(t, store.execs, 1)
	require.Equal(t, exec.ID, store.execs[0].ID)
}

func TestExecuteStoreErrorDoesNotAffectOutcome(t *testing.T) {
	qty := decimal.NewFromFloat(0.5)
	bp := &fakeVenue{name: "backpack", results: []domain.OrderResult{fill(qty, 101)}}
	lt := &fakeVenue{name: "lighter", results: []domain.OrderResult{fill(qty, 106)}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(bp, lt, retry.DefaultQueryPolicy(), logger)
	store := &captureStore{err: domain.ErrTransientQuery}
	c := New(bp, lt, led, logger, WithLegTimeout(time.Second), WithStore(store))

	exec := c.Execute(context.Background(), domain.DirectionLongBackpack, qty)
	require.Equal(t, domain.OutcomeBothSucceeded, exec.Outcome)
}

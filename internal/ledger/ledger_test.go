package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/retry"
)

type stubVenue struct {
	name     string
	position decimal.Decimal
	posErr   error
	calls    int
}

func (s *stubVenue) Name() string                     { return s.name }
func (s *stubVenue) Connect(context.Context) error    { return nil }
func (s *stubVenue) Disconnect(context.Context) error { return nil }
func (s *stubVenue) FeedReady() bool                  { return true }
func (s *stubVenue) Quote() (domain.Quote, bool)      { return domain.Quote{}, false }
func (s *stubVenue) FetchBestQuote(context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}
func (s *stubVenue) PlaceMarketOrder(context.Context, decimal.Decimal, domain.OrderSide) domain.OrderResult {
	return domain.OrderResult{}
}
func (s *stubVenue) Position(context.Context) (decimal.Decimal, error) {
	s.calls++
	return s.position, s.posErr
}
func (s *stubVenue) ContractInfo() domain.ContractInfo { return domain.ContractInfo{} }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() retry.Policy {
	p := retry.DefaultQueryPolicy()
	p.MinBackoff = 0
	p.MaxBackoff = 0
	return p
}

func TestRefreshCachesVenuePositions(t *testing.T) {
	bp := &stubVenue{name: "backpack", position: decimal.NewFromFloat(1.5)}
	lt := &stubVenue{name: "lighter", position: decimal.NewFromFloat(-1.5)}
	l := New(bp, lt, fastPolicy(), testLogger())

	l.Refresh(context.Background())

	require.True(t, l.Position(domain.VenueBackpack).Equal(decimal.NewFromFloat(1.5)))
	require.True(t, l.Position(domain.VenueLighter).Equal(decimal.NewFromFloat(-1.5)))
	require.True(t, l.NetPosition().IsZero())
}

func TestRefreshFallsBackToZeroOnPersistentError(t *testing.T) {
	bp := &stubVenue{name: "backpack", posErr: domain.ErrTransientQuery}
	lt := &stubVenue{name: "lighter", position: decimal.NewFromInt(2)}
	l := New(bp, lt, fastPolicy(), testLogger())

	l.Refresh(context.Background())

	require.True(t, l.Position(domain.VenueBackpack).IsZero())
	require.Equal(t, 5, bp.calls)
	require.True(t, l.Position(domain.VenueLighter).Equal(decimal.NewFromInt(2)))
}

func TestApplyDeltaKeepsHedgeSymmetric(t *testing.T) {
	l := New(&stubVenue{}, &stubVenue{}, fastPolicy(), testLogger())
	qty := decimal.NewFromFloat(0.25)

	// A completed long-Backpack round trip: buy on Backpack, sell on Lighter.
	l.ApplyDelta(domain.VenueBackpack, qty)
	l.ApplyDelta(domain.VenueLighter, qty.Neg())

	require.True(t, l.Position(domain.VenueBackpack).Equal(qty))
	require.True(t, l.Position(domain.VenueLighter).Equal(qty.Neg()))
	require.True(t, l.NetPosition().IsZero())
	require.True(t, l.IsBalanced(decimal.NewFromFloat(0.0001)))

	// Unwinding in the opposite direction restores flat.
	l.ApplyDelta(domain.VenueBackpack, qty.Neg())
	l.ApplyDelta(domain.VenueLighter, qty)
	require.True(t, l.Position(domain.VenueBackpack).IsZero())
	require.True(t, l.Position(domain.VenueLighter).IsZero())
}

func TestIsBalancedTolerance(t *testing.T) {
	l := New(&stubVenue{}, &stubVenue{}, fastPolicy(), testLogger())
	l.ApplyDelta(domain.VenueBackpack, decimal.NewFromFloat(0.0002))

	require.False(t, l.IsBalanced(decimal.NewFromFloat(0.0001)))
	require.True(t, l.IsBalanced(decimal.NewFromFloat(0.0002)))
}

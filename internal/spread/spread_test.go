package spread

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yukaisun/crossarb/internal/domain"
)

func testBoard() *Board {
	return NewBoard(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func quote(bid, ask string) domain.Quote {
	return domain.Quote{
		Bid:        decimal.RequireFromString(bid),
		Ask:        decimal.RequireFromString(ask),
		ObservedAt: time.Now(),
	}
}

func TestSpreadArithmetic(t *testing.T) {
	b := testBoard()
	b.UpdateBackpack(quote("100", "101"))
	b.UpdateLighter(quote("106", "107"))

	s, ok := b.Compute()
	require.True(t, ok)
	require.True(t, s.Long.Equal(decimal.RequireFromString("5")), "long = 106 - 101")
	require.True(t, s.Short.Equal(decimal.RequireFromString("-7")), "short = 100 - 107")
}

func TestThresholdIsStrict(t *testing.T) {
	threshold := decimal.RequireFromString("5")

	b := testBoard()
	b.UpdateBackpack(quote("100", "101"))
	b.UpdateLighter(quote("106", "107"))
	s, ok := b.Compute()
	require.True(t, ok)
	require.Equal(t, domain.DirectionNone, s.Signal(threshold, threshold),
		"spread equal to the threshold must not trigger")

	b.UpdateLighter(quote("106.01", "107"))
	s, ok = b.Compute()
	require.True(t, ok)
	require.Equal(t, domain.DirectionLongBackpack, s.Signal(threshold, threshold))
}

func TestLongTakesPrecedence(t *testing.T) {
	// Crossed nonsense quotes where both spreads exceed the threshold.
	b := testBoard()
	b.UpdateBackpack(quote("120", "100"))
	b.UpdateLighter(quote("110", "90"))

	s, ok := b.Compute()
	require.True(t, ok)
	zero := decimal.Zero
	require.True(t, s.Long.GreaterThan(zero))
	require.True(t, s.Short.GreaterThan(zero))
	require.Equal(t, domain.DirectionLongBackpack, s.Signal(zero, zero))
}

func TestNoSignalUntilBothFeedsReady(t *testing.T) {
	b := testBoard()
	_, ok := b.Compute()
	require.False(t, ok)

	b.UpdateBackpack(quote("100", "101"))
	_, ok = b.Compute()
	require.False(t, ok, "one ready feed is not enough")
	require.False(t, b.Ready())

	b.UpdateLighter(quote("106", "107"))
	_, ok = b.Compute()
	require.True(t, ok)
	require.True(t, b.Ready())
}

func TestIncompleteQuoteKeepsPreviousPair(t *testing.T) {
	b := testBoard()
	b.UpdateBackpack(quote("100", "101"))
	b.UpdateLighter(quote("106", "107"))

	// A quote missing its ask must not half-replace the previous pair.
	b.UpdateBackpack(domain.Quote{Bid: decimal.RequireFromString("200"), ObservedAt: time.Now()})

	bp, _, ok := b.Quotes()
	require.True(t, ok)
	require.True(t, bp.Bid.Equal(decimal.RequireFromString("100")))
	require.True(t, bp.Ask.Equal(decimal.RequireFromString("101")))
}

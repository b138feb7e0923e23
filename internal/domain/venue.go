package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Venue is the capability interface each exchange adapter implements. The
// core depends only on this interface, so simulated venues can stand in
// during tests.
type Venue interface {
	// Name returns the human-readable venue name.
	Name() string

	// Connect resolves the configured ticker against the venue's market
	// catalog and starts the market-data feed. A ticker that cannot be
	// resolved is a fatal startup error.
	Connect(ctx context.Context) error

	// Disconnect releases the feed and client resources. Safe to call on an
	// already-disconnected venue.
	Disconnect(ctx context.Context) error

	// FeedReady reports whether the feed has produced at least one complete
	// bid/ask pair since (re)connecting.
	FeedReady() bool

	// Quote returns the feed's latest complete quote. ok is false until the
	// feed is ready.
	Quote() (q Quote, ok bool)

	// FetchBestQuote fetches the current best bid/ask, preferring the live
	// feed and falling back to REST. Callers wrap it with a retry policy.
	FetchBestQuote(ctx context.Context) (bid, ask decimal.Decimal, err error)

	// PlaceMarketOrder submits one market order. The result is always
	// well-formed; it is never retried by callers.
	PlaceMarketOrder(ctx context.Context, quantity decimal.Decimal, side OrderSide) OrderResult

	// Position returns the venue-reported signed position for the configured
	// contract. Callers wrap it with a retry policy and a zero default.
	Position(ctx context.Context) (decimal.Decimal, error)

	// ContractInfo returns the instrument metadata resolved during Connect.
	ContractInfo() ContractInfo
}

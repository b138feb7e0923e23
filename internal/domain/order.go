package domain

import "github.com/shopspring/decimal"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the side that unwinds this one.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderResult is the normalized outcome of a single market-order attempt.
// Venue adapters always return a well-formed result: rejections, invalid
// parameters, and transport failures all surface as Success=false with
// Message set, never as a Go error the coordinator has to interpret.
type OrderResult struct {
	Success    bool
	OrderID    string
	Side       OrderSide
	Size       decimal.Decimal
	FilledSize decimal.Decimal
	AvgPrice   decimal.Decimal
	Status     string
	Message    string
}

// Direction is the trade signal derived from the two venue quotes.
type Direction string

const (
	// DirectionNone means no threshold was exceeded this tick.
	DirectionNone Direction = "NONE"
	// DirectionLongBackpack buys on Backpack and sells on Lighter.
	DirectionLongBackpack Direction = "LONG_BACKPACK"
	// DirectionShortBackpack sells on Backpack and buys on Lighter.
	DirectionShortBackpack Direction = "SHORT_BACKPACK"
)

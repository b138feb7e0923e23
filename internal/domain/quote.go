package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the best-bid/best-offer of one venue at a point in time. A Quote is
// only published once both sides are known; a half-filled quote never leaves
// the feed that produced it.
type Quote struct {
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	ObservedAt time.Time
}

// Complete reports whether both sides carry a usable price.
func (q Quote) Complete() bool {
	return q.Bid.IsPositive() && q.Ask.IsPositive()
}

// ContractInfo describes the venue-specific instrument resolved at connect
// time from the venue's market catalog.
type ContractInfo struct {
	ContractID  string
	TickSize    decimal.Decimal
	MinQuantity decimal.Decimal
}

// VenueID identifies one of the two legs of the bot.
type VenueID string

const (
	VenueBackpack VenueID = "backpack"
	VenueLighter  VenueID = "lighter"
)

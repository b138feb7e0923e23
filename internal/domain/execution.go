package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome classifies a joint dual-leg execution. Exactly one outcome is
// produced per attempt, for every combination of per-leg results.
type Outcome string

const (
	OutcomeBothSucceeded  Outcome = "BOTH_SUCCEEDED"
	OutcomeBackpackFailed Outcome = "BACKPACK_FAILED"
	OutcomeLighterFailed  Outcome = "LIGHTER_FAILED"
	OutcomeBothFailed     Outcome = "BOTH_FAILED"
)

// Succeeded reports whether both legs filled.
func (o Outcome) Succeeded() bool { return o == OutcomeBothSucceeded }

// Execution is the record of one joint dual-leg attempt.
type Execution struct {
	ID        string
	Direction Direction
	Quantity  decimal.Decimal
	Outcome   Outcome
	Backpack  OrderResult
	Lighter   OrderResult
	// Unwound is set when a partial fill was compensated by an unwind order
	// on the filled venue.
	Unwound   bool
	StartedAt time.Time
	DoneAt    time.Time
}

// ExecutionStore persists joint executions. Implementations are append-only
// side-effect sinks; the core never reads executions back.
type ExecutionStore interface {
	Create(ctx context.Context, exec Execution) error
}

// QuotePublisher publishes BBO snapshots and trade events to an external bus.
// Publish failures are logged and swallowed by callers.
type QuotePublisher interface {
	PublishQuotes(ctx context.Context, backpack, lighter Quote, longSpread, shortSpread decimal.Decimal, signal Direction) error
	PublishExecution(ctx context.Context, exec Execution) error
}

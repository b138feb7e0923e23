// Package retry wraps flaky read-only queries with bounded exponential
// backoff. It must never be applied to order placement: retrying a market
// order risks duplicate fills.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy is a pure configuration object; it carries no state across calls.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int

	// MinBackoff is the delay before the second attempt. Each subsequent
	// delay doubles, capped at MaxBackoff.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// RetryIf decides whether an error is transient. A nil predicate retries
	// every error.
	RetryIf func(error) bool
}

// DefaultQueryPolicy matches the backoff the venue adapters use for
// read-only REST queries.
func DefaultQueryPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		MinBackoff:  time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

func (p Policy) retryable(err error) bool {
	if p.RetryIf == nil {
		return true
	}
	return p.RetryIf(err)
}

// backoff returns the sleep before attempt n+1 (n counts completed attempts,
// starting at 1).
func (p Policy) backoff(n int) time.Duration {
	d := p.MinBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do invokes op up to p.MaxAttempts times. Errors rejected by the RetryIf
// predicate propagate immediately; on exhaustion the last error is returned.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !p.retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
	return zero, lastErr
}

// DoWithDefault is Do for idempotent reads where "unknown" has a usable
// representation (e.g. a zero position). Exhaustion is logged and the
// caller-supplied default returned; it never raises.
func DoWithDefault[T any](ctx context.Context, p Policy, def T, name string, logger *slog.Logger, op func(ctx context.Context) (T, error)) T {
	v, err := Do(ctx, p, op)
	if err != nil {
		logger.Warn("query exhausted retries, using default",
			slog.String("operation", name),
			slog.Int("attempts", p.MaxAttempts),
			slog.String("error", err.Error()),
		)
		return def
	}
	return v
}

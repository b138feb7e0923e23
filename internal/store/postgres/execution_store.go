package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yukaisun/crossarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Every
// joint execution writes one executions row and two execution_legs rows in a
// single transaction.
type ExecutionStore struct {
	pool   *pgxpool.Pool
	ticker string
}

// NewExecutionStore creates a store writing rows tagged with the ticker.
func NewExecutionStore(pool *pgxpool.Pool, ticker string) *ExecutionStore {
	return &ExecutionStore{pool: pool, ticker: ticker}
}

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	ticker      TEXT NOT NULL,
	direction   TEXT NOT NULL,
	quantity    NUMERIC NOT NULL,
	outcome     TEXT NOT NULL,
	unwound     BOOLEAN NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	done_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_legs (
	execution_id TEXT NOT NULL REFERENCES executions(id),
	venue        TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	order_id     TEXT,
	side         TEXT NOT NULL,
	size         NUMERIC NOT NULL,
	filled_size  NUMERIC NOT NULL,
	avg_price    NUMERIC,
	status       TEXT,
	message      TEXT,
	PRIMARY KEY (execution_id, venue)
);`

// EnsureSchema creates the tables if they do not exist.
func (s *ExecutionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Create stores one execution and both of its legs.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.Execution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertExecution = `
		INSERT INTO executions (
			id, ticker, direction, quantity, outcome, unwound, started_at, done_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := tx.Exec(ctx, insertExecution,
		exec.ID, s.ticker, string(exec.Direction), exec.Quantity,
		string(exec.Outcome), exec.Unwound, exec.StartedAt, exec.DoneAt,
	); err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", exec.ID, err)
	}

	if err := insertLeg(ctx, tx, exec.ID, string(domain.VenueBackpack), exec.Backpack); err != nil {
		return err
	}
	if err := insertLeg(ctx, tx, exec.ID, string(domain.VenueLighter), exec.Lighter); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit execution %s: %w", exec.ID, err)
	}
	return nil
}

func insertLeg(ctx context.Context, tx pgx.Tx, execID, venue string, leg domain.OrderResult) error {
	const insert = `
		INSERT INTO execution_legs (
			execution_id, venue, success, order_id, side,
			size, filled_size, avg_price, status, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if _, err := tx.Exec(ctx, insert,
		execID, venue, leg.Success, leg.OrderID, string(leg.Side),
		leg.Size, leg.FilledSize, leg.AvgPrice, leg.Status, leg.Message,
	); err != nil {
		return fmt.Errorf("postgres: insert %s leg for %s: %w", venue, execID, err)
	}
	return nil
}

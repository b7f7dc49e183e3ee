package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lingoswap/backend/internal/db"
	"github.com/lingoswap/backend/internal/logging"
)

// PostgresTransactor runs units of work in serializable transactions, retrying transient
// serialization failures with capped exponential backoff.
type PostgresTransactor struct {
	pool        db.Pool
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewPostgresTransactor constructs a transactor over the given pool.
func NewPostgresTransactor(pool db.Pool) *PostgresTransactor {
	return &PostgresTransactor{
		pool:        pool,
		maxRetries:  db.DefaultMaxRetries,
		baseBackoff: db.DefaultBaseBackoff,
		maxBackoff:  db.DefaultMaxBackoff,
	}
}

// InTx executes fn inside a transaction. A call nested in an existing transaction joins it.
func (t *PostgresTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := db.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	var attempt int
	for attempt = 0; attempt < t.maxRetries; attempt++ {
		if err := db.Sleep(ctx, db.Backoff(attempt, t.baseBackoff, t.maxBackoff)); err != nil {
			return err
		}

		err := t.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if db.IsRetryable(err) && attempt < t.maxRetries-1 {
			logging.FromContext(ctx).Warn("transient transaction failure", "attempt", attempt+1, "maxAttempts", t.maxRetries, "error", err)
			continue
		}
		return err
	}

	return fmt.Errorf("transaction: exceeded max retries (%d)", attempt)
}

func (t *PostgresTransactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(db.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ Transactor = (*PostgresTransactor)(nil)

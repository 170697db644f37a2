package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check that PostgresLedger implements Ledger.
var _ Ledger = (*PostgresLedger)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	uuid       TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	credits    INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id         BIGSERIAL PRIMARY KEY,
	user_uuid  TEXT NOT NULL REFERENCES users (uuid),
	delta      INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	memo       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS credit_transactions_user_idx ON credit_transactions (user_uuid, created_at);
`

// PostgresLedger persists balances in users.credits and records every
// movement in credit_transactions.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger opens a Postgres-backed ledger using the provided DSN.
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres ledger dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres ledger config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres ledger pool: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

// Migrate creates the ledger tables if they do not exist.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate credit ledger: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (l *PostgresLedger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Close releases the Postgres connection pool resources.
func (l *PostgresLedger) Close(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		l.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Balance returns the user's credits, or zero for unknown users.
func (l *PostgresLedger) Balance(ctx context.Context, userID string) (int, error) {
	var credits int
	err := l.pool.QueryRow(ctx, `SELECT credits FROM users WHERE uuid = $1`, userID).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return credits, nil
}

// Apply changes the balance and records the movement in one transaction.
// Debits use a guarded update so concurrent requests can never overdraw.
func (l *PostgresLedger) Apply(ctx context.Context, userID string, delta int, reason, memo string) error {
	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		if delta >= 0 {
			if _, err := tx.Exec(ctx, `
INSERT INTO users (uuid, credits)
VALUES ($1, $2)
ON CONFLICT (uuid) DO UPDATE SET credits = users.credits + EXCLUDED.credits, updated_at = now()
`, userID, delta); err != nil {
				return fmt.Errorf("credit user: %w", err)
			}
		} else {
			tag, err := tx.Exec(ctx, `
UPDATE users SET credits = credits + $2, updated_at = now()
WHERE uuid = $1 AND credits + $2 >= 0
`, userID, delta)
			if err != nil {
				return fmt.Errorf("debit user: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return ErrInsufficientCredits
			}
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO credit_transactions (user_uuid, delta, reason, memo)
VALUES ($1, $2, $3, $4)
`, userID, delta, reason, memo); err != nil {
			return fmt.Errorf("record credit transaction: %w", err)
		}
		return nil
	})
}

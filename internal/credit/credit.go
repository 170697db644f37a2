// Package credit gates generation requests on a user's credit balance and
// debits the balance once a job has succeeded.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrInsufficientCredits is returned when a debit would take a balance below zero.
var ErrInsufficientCredits = errors.New("credit: insufficient credits")

// Operation costs.
const (
	CostImage = 1
	CostVideo = 4
)

// ReasonConsume is the ledger reason recorded for generation debits.
const ReasonConsume = "consume"

// Ledger is the persistence port for credit balances.
type Ledger interface {
	// Balance returns the user's current balance. Unknown users have a zero balance.
	Balance(ctx context.Context, userID string) (int, error)

	// Apply adds delta to the balance and records a ledger entry.
	// A negative delta that would leave the balance below zero fails with
	// ErrInsufficientCredits and changes nothing.
	Apply(ctx context.Context, userID string, delta int, reason, memo string) error
}

// Gate checks balances before work starts and debits after it succeeds.
type Gate struct {
	ledger Ledger
	logger *slog.Logger
}

// NewGate creates a Gate over ledger.
func NewGate(ledger Ledger, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{ledger: ledger, logger: logger}
}

// CheckBalance reports whether the user can afford cost.
// An insufficient balance is a normal false result, not an error.
func (g *Gate) CheckBalance(ctx context.Context, userID string, cost int) (bool, error) {
	balance, err := g.ledger.Balance(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("credit: read balance: %w", err)
	}

	g.logger.Debug("credit balance checked",
		slog.String("user_id", userID),
		slog.Int("balance", balance),
		slog.Int("cost", cost),
	)

	return balance >= cost, nil
}

// Debit consumes cost credits from the user's balance.
func (g *Gate) Debit(ctx context.Context, userID string, cost int, memo string) error {
	if cost <= 0 {
		return nil
	}
	if err := g.ledger.Apply(ctx, userID, -cost, ReasonConsume, memo); err != nil {
		return fmt.Errorf("credit: debit %d: %w", cost, err)
	}

	g.logger.Info("credits debited",
		slog.String("user_id", userID),
		slog.Int("cost", cost),
		slog.String("memo", memo),
	)

	return nil
}

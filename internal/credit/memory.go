package credit

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryLedger implements Ledger.
var _ Ledger = (*MemoryLedger)(nil)

// Entry is a single ledger movement.
type Entry struct {
	UserID    string
	Delta     int
	Reason    string
	Memo      string
	CreatedAt time.Time
}

// MemoryLedger is an in-memory implementation of Ledger.
// Users seen for the first time start with the configured initial balance.
// Suitable for development and testing; use PostgresLedger in production.
type MemoryLedger struct {
	mu       sync.Mutex
	initial  int
	balances map[string]int
	entries  []Entry
}

// NewMemoryLedger creates an in-memory ledger.
func NewMemoryLedger(initial int) *MemoryLedger {
	return &MemoryLedger{
		initial:  initial,
		balances: make(map[string]int),
	}
}

// SetBalance overwrites a user's balance.
func (l *MemoryLedger) SetBalance(userID string, balance int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

// Balance returns the user's balance.
func (l *MemoryLedger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(userID), nil
}

// Apply adds delta to the balance atomically.
func (l *MemoryLedger) Apply(_ context.Context, userID string, delta int, reason, memo string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.balanceLocked(userID) + delta
	if delta < 0 && next < 0 {
		return ErrInsufficientCredits
	}
	l.balances[userID] = next
	l.entries = append(l.entries, Entry{
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		Memo:      memo,
		CreatedAt: time.Now(),
	})
	return nil
}

// Entries returns the ledger movements recorded for userID.
func (l *MemoryLedger) Entries(userID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (l *MemoryLedger) balanceLocked(userID string) int {
	if b, ok := l.balances[userID]; ok {
		return b
	}
	return l.initial
}

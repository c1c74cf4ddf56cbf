// Package ledger keeps per-user points balances credited from report claims.
package ledger

import (
	"sync"
)

// Claimable is a one-shot points source. Claim returns the delta the first
// time and waste.ErrAlreadyClaimed afterwards.
type Claimable interface {
	Claim() (int, error)
}

// Ledger is one user's in-memory balance. Balances are not persisted.
type Ledger struct {
	mu      sync.Mutex
	balance int
}

// New returns a ledger starting at initial.
func New(initial int) *Ledger {
	return &Ledger{balance: initial}
}

// Balance returns the current total.
func (l *Ledger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Claim credits c exactly once. The ledger lock is held across the
// claimed-flag check and the increment.
func (l *Ledger) Claim(c Claimable) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delta, err := c.Claim()
	if err != nil {
		return 0, err
	}
	if delta > 0 {
		l.balance += delta
	}
	return delta, nil
}

// Book maps user ids to their ledgers, creating them on first use.
type Book struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{ledgers: make(map[string]*Ledger)}
}

// For returns the ledger of userID.
func (b *Book) For(userID string) *Ledger {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.ledgers[userID]
	if !ok {
		l = New(0)
		b.ledgers[userID] = l
	}
	return l
}

package stock

import (
	"context"
	"sync"
)

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-process Ledger used by tests and tooling. A single
// mutex over the stock map makes Reserve and Release linearizable, matching
// the contract the Postgres ledger provides via conditional updates.
type MemoryLedger struct {
	mu    sync.Mutex
	stock map[string]int
}

// NewMemoryLedger returns a MemoryLedger seeded with the given stock counts.
func NewMemoryLedger(seed map[string]int) *MemoryLedger {
	stock := make(map[string]int, len(seed))
	for isbn, qty := range seed {
		stock[isbn] = qty
	}
	return &MemoryLedger{stock: stock}
}

func (l *MemoryLedger) Reserve(_ context.Context, isbn string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.stock[isbn]
	if !ok {
		return ErrProductNotFound
	}
	if current < quantity {
		return &InsufficientStockError{ISBN: isbn, Quantity: quantity}
	}
	l.stock[isbn] = current - quantity
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, isbn string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.stock[isbn]
	if !ok {
		return ErrProductNotFound
	}
	l.stock[isbn] = current + quantity
	return nil
}

func (l *MemoryLedger) SetAbsolute(_ context.Context, isbn string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stock[isbn] = quantity
	return nil
}

// Stock returns the current count for isbn, or -1 if unknown.
func (l *MemoryLedger) Stock(isbn string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.stock[isbn]
	if !ok {
		return -1
	}
	return current
}

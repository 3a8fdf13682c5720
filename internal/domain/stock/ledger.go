// Package stock defines the stock ledger: atomic reservation and release of
// product inventory. Every component that touches stock goes through a
// Ledger; nothing else reads-then-writes the stock count.
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrProductNotFound is returned when the ledger is asked about an unknown
// catalog key.
var ErrProductNotFound = errors.New("product not found in stock ledger")

// InsufficientStockError indicates a reservation could not be satisfied at
// the time of the attempt. The reservation has no partial effect.
type InsufficientStockError struct {
	ISBN     string
	Quantity int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ISBN, e.Quantity)
}

// Ledger owns the available-stock count per product.
//
// Reserve and Release on the same catalog key are linearizable with respect
// to concurrent callers: implementations must perform the check and the
// decrement as one indivisible operation against the persisted value, never
// as a read followed by a separate write.
type Ledger interface {
	// Reserve atomically decrements stock by quantity if at least quantity
	// units are available. It returns *InsufficientStockError when the
	// precondition does not hold and ErrProductNotFound for unknown keys.
	Reserve(ctx context.Context, isbn string, quantity int) error

	// Release atomically increments stock by quantity. It returns
	// ErrProductNotFound for unknown keys; callers treat that as a logged
	// non-fatal condition since a deleted product cannot have stock restored.
	Release(ctx context.Context, isbn string, quantity int) error

	// SetAbsolute overwrites the stock count. Administrative operation,
	// not part of the transactional order path.
	SetAbsolute(ctx context.Context, isbn string, quantity int) error
}

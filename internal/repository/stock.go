package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bibliosphere/bookstore/internal/domain/stock"
)

const (
	// The WHERE clause carries the stock precondition, so check and
	// decrement happen in one indivisible statement. A read-then-write in
	// the application would race concurrent reservations.
	reserveStockSQL = `UPDATE products SET stock = stock - $2
		WHERE isbn = $1 AND stock >= $2`

	releaseStockSQL = `UPDATE products SET stock = stock + $2 WHERE isbn = $1`

	setStockSQL = `UPDATE products SET stock = $2 WHERE isbn = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE isbn = $1)`
)

var _ stock.Ledger = (*StockLedger)(nil)

// StockLedger implements stock.Ledger with conditional updates against the
// products table.
type StockLedger struct {
	pool *pgxpool.Pool
}

// NewStockLedger returns a StockLedger using the given pool.
func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// Reserve decrements stock by quantity if enough is available. Zero affected
// rows means either an unknown product or insufficient stock; an existence
// probe tells the two apart.
func (l *StockLedger) Reserve(ctx context.Context, isbn string, quantity int) error {
	tag, err := l.pool.Exec(ctx, reserveStockSQL, isbn, quantity)
	if err != nil {
		return fmt.Errorf("reserving %d of %q: %w", quantity, isbn, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := l.exists(ctx, isbn)
	if err != nil {
		return err
	}
	if !exists {
		return stock.ErrProductNotFound
	}
	return &stock.InsufficientStockError{ISBN: isbn, Quantity: quantity}
}

// Release increments stock by quantity.
func (l *StockLedger) Release(ctx context.Context, isbn string, quantity int) error {
	tag, err := l.pool.Exec(ctx, releaseStockSQL, isbn, quantity)
	if err != nil {
		return fmt.Errorf("releasing %d of %q: %w", quantity, isbn, err)
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrProductNotFound
	}
	return nil
}

// SetAbsolute overwrites the stock count.
func (l *StockLedger) SetAbsolute(ctx context.Context, isbn string, quantity int) error {
	tag, err := l.pool.Exec(ctx, setStockSQL, isbn, quantity)
	if err != nil {
		return fmt.Errorf("setting stock of %q: %w", isbn, err)
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrProductNotFound
	}
	return nil
}

func (l *StockLedger) exists(ctx context.Context, isbn string) (bool, error) {
	var exists bool
	if err := l.pool.QueryRow(ctx, productExistsSQL, isbn).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking product %q: %w", isbn, err)
	}
	return exists, nil
}

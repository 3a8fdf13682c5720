package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bibliosphere/bookstore/internal/domain/order"
)

const appendUserOrderSQL = `INSERT INTO user_orders (user_email, order_id)
	VALUES ($1, $2) ON CONFLICT DO NOTHING`

var _ order.UserOrders = (*UserOrdersRepository)(nil)

// UserOrdersRepository implements the append-only user order index.
type UserOrdersRepository struct {
	pool *pgxpool.Pool
}

// NewUserOrdersRepository returns a UserOrdersRepository using the given pool.
func NewUserOrdersRepository(pool *pgxpool.Pool) *UserOrdersRepository {
	return &UserOrdersRepository{pool: pool}
}

// AppendOrder records an order against the user. Re-appending the same order
// is a no-op.
func (r *UserOrdersRepository) AppendOrder(ctx context.Context, email, orderID string) error {
	if _, err := r.pool.Exec(ctx, appendUserOrderSQL, email, orderID); err != nil {
		return fmt.Errorf("appending order %q to user %q: %w", orderID, email, err)
	}
	return nil
}

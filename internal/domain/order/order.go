// Package order holds the order aggregate, its lifecycle state machine, and
// the placement/refund orchestration on top of the stock ledger.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the order workflow.
var (
	ErrEmptyItems            = errors.New("order items required")
	ErrNotFound              = errors.New("order not found")
	ErrForbidden             = errors.New("requester is not the order owner")
	ErrRefundWindowExpired   = errors.New("refund period (30 days) has expired")
	ErrInvalidShippingMethod = errors.New("shipping method must be standard or express")

	// ErrStatusConflict is returned by Repository.UpdateStatus when the
	// guarded compare-and-set matched no row because the order's status
	// changed concurrently. The service converts it to an
	// InvalidTransitionError carrying the current state.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// ShippingInfo is the delivery address captured at checkout.
type ShippingInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	City      string `json:"city"`
	ZipCode   string `json:"zipCode"`
}

// Item is one purchased line. Title, Price, and Image are snapshots taken at
// placement time and stay fixed even when the live product changes.
type Item struct {
	ISBN     string          `json:"isbn"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image"`
}

// Order is one purchase. Status and the stock reservation move together:
// PROCESSED/TRANSFER/DELIVERED orders hold committed stock, CANCELLED and
// REFUNDED orders have released it exactly once. CreatedAt is immutable.
type Order struct {
	ID             string
	UserEmail      string
	Items          []Item
	Shipping       ShippingInfo
	ShippingMethod string
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
	Status         Status
	// RefundOrigin is the status the order left when it entered
	// REFUND_PENDING; empty otherwise. Approve maps PROCESSED to CANCELLED
	// and DELIVERED to REFUNDED, reject reverts to the origin.
	RefundOrigin Status
	CreatedAt    time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, email string) ([]Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]Order, error)

	// UpdateStatus atomically moves the order from one status to another,
	// recording origin as the new refund origin (empty clears it). The
	// status check and the write are one conditional update so that two
	// concurrent transition attempts cannot both succeed. It returns
	// ErrNotFound if no such order exists and ErrStatusConflict if the
	// order exists but is not in the expected status.
	UpdateStatus(ctx context.Context, id string, from, to, origin Status) error
}

// UserOrders is the append-only index of order IDs per user. Appends are a
// best-effort side effect of placement.
type UserOrders interface {
	AppendOrder(ctx context.Context, email, orderID string) error
}

// Notifier delivers customer-facing notifications. All calls are
// fire-and-forget from the order workflow's point of view: failures are
// logged and never propagate to the caller of the triggering operation.
type Notifier interface {
	SendOrderReceipt(ctx context.Context, o *Order) error
	SendPlainEmail(ctx context.Context, to, subject, body string) error
}

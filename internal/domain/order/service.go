package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bibliosphere/bookstore/internal/domain/product"
	"github.com/bibliosphere/bookstore/internal/domain/stock"
)

// Shipping methods and their flat rates. Orders over the free-shipping
// threshold ship for nothing regardless of method.
const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"

	refundWindow = 30 * 24 * time.Hour
)

var (
	shippingRateStandard  = decimal.NewFromInt(5)
	shippingRateExpress   = decimal.NewFromInt(15)
	freeShippingThreshold = decimal.NewFromInt(100)
)

// ProductNotFoundError indicates a line item references an unknown catalog key.
type ProductNotFoundError struct {
	ISBN string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ISBN)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ISBN string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ISBN)
}

// OutOfStockError indicates a reservation failed for the named title. The
// whole placement has been rolled back when this is returned.
type OutOfStockError struct {
	Title string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %s", e.Title)
}

// Identity is the already-authenticated requester. Manager identities bypass
// ownership checks but never state-machine guards.
type Identity struct {
	Email   string
	Manager bool
}

// owns reports whether the identity may act on the order.
func (id Identity) owns(o *Order) bool {
	return id.Manager || id.Email == o.UserEmail
}

// RefundDecision is a manager's resolution of a pending refund.
type RefundDecision string

const (
	RefundAccept RefundDecision = "accept"
	RefundReject RefundDecision = "reject"
)

// ParseRefundDecision validates a raw decision string.
func ParseRefundDecision(s string) (RefundDecision, error) {
	switch RefundDecision(s) {
	case RefundAccept, RefundReject:
		return RefundDecision(s), nil
	}
	return "", fmt.Errorf("invalid refund action %q: must be accept or reject", s)
}

// LineItem is one requested line of a placement: a catalog key and quantity.
type LineItem struct {
	ISBN     string
	Quantity int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserEmail      string
	Items          []LineItem
	Shipping       ShippingInfo
	ShippingMethod string
}

// Service orchestrates order placement and the lifecycle workflow on top of
// the stock ledger and the order repository.
type Service struct {
	products product.Repository
	orders   Repository
	ledger   stock.Ledger
	users    UserOrders
	notifier Notifier
	lg       *zap.Logger

	now func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	products product.Repository,
	orders Repository,
	ledger stock.Ledger,
	users UserOrders,
	notifier Notifier,
	lg *zap.Logger,
) *Service {
	return &Service{
		products: products,
		orders:   orders,
		ledger:   ledger,
		users:    users,
		notifier: notifier,
		lg:       lg,
		now:      time.Now,
	}
}

// PlaceOrder validates the request, reserves stock per line item with
// all-or-nothing semantics, persists the order in its initial state, and
// fires the non-critical side effects (user index append, receipt email).
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.ShippingMethod != ShippingStandard && req.ShippingMethod != ShippingExpress {
		return nil, ErrInvalidShippingMethod
	}

	isbns := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ISBN: item.ISBN}
		}
		isbns[i] = item.ISBN
	}

	fetched, err := s.products.GetByISBNs(ctx, isbns)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byISBN := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byISBN[p.ISBN] = p
	}
	for _, item := range req.Items {
		if _, ok := byISBN[item.ISBN]; !ok {
			return nil, &ProductNotFoundError{ISBN: item.ISBN}
		}
	}

	// Reserve each line in the order supplied. Same-key lines are not
	// coalesced: each reservation is an independent atomic decrement.
	if err := s.reserveAll(ctx, req.Items, byISBN); err != nil {
		return nil, err
	}

	// From here on stock is committed; any failure before the order row
	// exists must compensate or it becomes stock drift.
	items := make([]Item, len(req.Items))
	subtotal := decimal.Zero
	for i, line := range req.Items {
		p := byISBN[line.ISBN]
		price := p.EffectivePrice()
		items[i] = Item{
			ISBN:     p.ISBN,
			Title:    p.Title,
			Price:    price,
			Quantity: line.Quantity,
			Image:    p.Image,
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = subtotal.Round(2)
	shippingCost := shippingCostFor(req.ShippingMethod, subtotal)

	o := &Order{
		ID:             uuid.New().String(),
		UserEmail:      req.UserEmail,
		Items:          items,
		Shipping:       req.Shipping,
		ShippingMethod: req.ShippingMethod,
		Subtotal:       subtotal,
		ShippingCost:   shippingCost,
		Total:          subtotal.Add(shippingCost),
		Status:         StatusProcessed,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.orders.Create(ctx, o); err != nil {
		s.compensate(ctx, req.Items)
		return nil, errors.Wrap(err, "create order")
	}

	// Best-effort side effects: neither may fail the placement.
	if err := s.users.AppendOrder(ctx, req.UserEmail, o.ID); err != nil {
		s.lg.Warn("append order to user index failed",
			zap.String("order_id", o.ID),
			zap.String("user", req.UserEmail),
			zap.Error(err),
		)
	}
	if err := s.notifier.SendOrderReceipt(ctx, o); err != nil {
		s.lg.Warn("order receipt notification failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return o, nil
}

// reserveAll reserves every line item in sequence. On the first failure it
// releases the already-reserved lines in reverse order and reports the
// failure for the whole placement.
func (s *Service) reserveAll(ctx context.Context, items []LineItem, byISBN map[string]product.Product) error {
	for i, line := range items {
		err := s.ledger.Reserve(ctx, line.ISBN, line.Quantity)
		if err == nil {
			continue
		}

		s.compensate(ctx, items[:i])

		var insufficient *stock.InsufficientStockError
		switch {
		case errors.As(err, &insufficient):
			return &OutOfStockError{Title: byISBN[line.ISBN].Title}
		case errors.Is(err, stock.ErrProductNotFound):
			return &ProductNotFoundError{ISBN: line.ISBN}
		default:
			return errors.Wrapf(err, "reserve %s", line.ISBN)
		}
	}
	return nil
}

// compensate releases reserved lines in reverse order. A release failure is
// genuine stock drift and is logged as an alarm condition for manual
// intervention; it is never skipped because of an earlier failure.
func (s *Service) compensate(ctx context.Context, reserved []LineItem) {
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if err := s.ledger.Release(ctx, line.ISBN, line.Quantity); err != nil {
			s.lg.Error("stock compensation failed: stock drift, manual intervention required",
				zap.String("isbn", line.ISBN),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
		}
	}
}

func shippingCostFor(method string, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(freeShippingThreshold) {
		return decimal.Zero
	}
	if method == ShippingExpress {
		return shippingRateExpress
	}
	return shippingRateStandard
}

// Cancel moves an unshipped order into REFUND_PENDING for manager approval.
// Stock stays committed until the refund is accepted.
func (s *Service) Cancel(ctx context.Context, orderID string, requester Identity) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.owns(o) {
		return nil, ErrForbidden
	}
	if o.Status != StatusProcessed {
		return nil, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusRefundPending}
	}

	if err := s.transition(ctx, o.ID, StatusProcessed, StatusRefundPending, StatusProcessed); err != nil {
		return nil, err
	}
	o.Status = StatusRefundPending
	o.RefundOrigin = StatusProcessed
	return o, nil
}

// RequestRefund moves a delivered order into REFUND_PENDING when the request
// arrives within 30 days of the order's creation.
func (s *Service) RequestRefund(ctx context.Context, orderID string, requester Identity) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.owns(o) {
		return nil, ErrForbidden
	}
	if o.Status != StatusDelivered {
		return nil, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusRefundPending}
	}
	// The window is measured against the immutable creation timestamp.
	if s.now().Sub(o.CreatedAt) > refundWindow {
		return nil, ErrRefundWindowExpired
	}

	if err := s.transition(ctx, o.ID, StatusDelivered, StatusRefundPending, StatusDelivered); err != nil {
		return nil, err
	}
	o.Status = StatusRefundPending
	o.RefundOrigin = StatusDelivered
	return o, nil
}

// SetStatus is the administrative override between the fulfillment states.
// Owners and managers may use it; it still obeys the transition table, so it
// cannot reach or leave REFUND_PENDING or the terminal states.
func (s *Service) SetStatus(ctx context.Context, orderID string, newStatus Status, requester Identity) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.owns(o) {
		return nil, ErrForbidden
	}
	if !o.Status.Fulfillment() || !newStatus.Fulfillment() || !CanTransition(o.Status, newStatus) {
		return nil, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: newStatus}
	}

	if err := s.transition(ctx, o.ID, o.Status, newStatus, ""); err != nil {
		return nil, err
	}
	o.Status = newStatus
	return o, nil
}

// PendingRefunds lists orders awaiting a refund decision. Manager only.
func (s *Service) PendingRefunds(ctx context.Context, requester Identity) ([]Order, error) {
	if !requester.Manager {
		return nil, ErrForbidden
	}
	return s.orders.ListByStatus(ctx, StatusRefundPending)
}

// ResolveRefund applies a manager decision to a REFUND_PENDING order.
// Accept moves the order to its terminal state and releases the reserved
// stock for every line item exactly once; reject reverts the order to the
// status it held before the request. Resolving an order that is not pending
// fails with an InvalidTransitionError, so double submissions cannot
// double-release stock.
func (s *Service) ResolveRefund(ctx context.Context, orderID string, decision RefundDecision, requester Identity) (*Order, error) {
	if !requester.Manager {
		return nil, ErrForbidden
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusRefundPending {
		return nil, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusRefunded}
	}

	// An unset origin resolves along the delivered path.
	origin := o.RefundOrigin
	if origin == "" {
		origin = StatusDelivered
	}

	target := origin
	if decision == RefundAccept {
		if origin == StatusProcessed {
			target = StatusCancelled
		} else {
			target = StatusRefunded
		}
	}

	// The conditional update is the idempotency barrier: only one resolve
	// can win the REFUND_PENDING -> target move, so the stock release below
	// runs at most once per order.
	if err := s.transition(ctx, o.ID, StatusRefundPending, target, ""); err != nil {
		return nil, err
	}

	if decision == RefundAccept {
		for _, item := range o.Items {
			if err := s.ledger.Release(ctx, item.ISBN, item.Quantity); err != nil {
				s.lg.Error("refund stock release failed: stock drift, manual intervention required",
					zap.String("order_id", o.ID),
					zap.String("isbn", item.ISBN),
					zap.Int("quantity", item.Quantity),
					zap.Error(err),
				)
			}
		}
	}

	s.sendRefundDecision(ctx, o, decision)

	o.Status = target
	o.RefundOrigin = ""
	return o, nil
}

func (s *Service) sendRefundDecision(ctx context.Context, o *Order, decision RefundDecision) {
	subject := "Your refund request was rejected"
	body := fmt.Sprintf("Your refund request for order %s has been rejected.", o.ID)
	if decision == RefundAccept {
		subject = "Your refund request was approved"
		body = fmt.Sprintf("Your refund request for order %s has been approved. The amount of %s will be returned.", o.ID, o.Total.StringFixed(2))
	}
	if err := s.notifier.SendPlainEmail(ctx, o.UserEmail, subject, body); err != nil {
		s.lg.Warn("refund decision notification failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// transition performs the guarded status update and converts a lost race
// into an InvalidTransitionError carrying the order's current state.
func (s *Service) transition(ctx context.Context, orderID string, from, to, origin Status) error {
	err := s.orders.UpdateStatus(ctx, orderID, from, to, origin)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStatusConflict) {
		current := from
		if o, getErr := s.orders.GetByID(ctx, orderID); getErr == nil {
			current = o.Status
		}
		return &InvalidTransitionError{OrderID: orderID, From: current, To: to}
	}
	return errors.Wrapf(err, "update order %s status", orderID)
}

// Get returns a single order, restricted to its owner or a manager.
func (s *Service) Get(ctx context.Context, orderID string, requester Identity) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.owns(o) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListForUser returns the requester's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, requester Identity) ([]Order, error) {
	return s.orders.ListByUser(ctx, requester.Email)
}

// ListInRange returns orders created in [from, to) for revenue reporting.
// Manager only.
func (s *Service) ListInRange(ctx context.Context, from, to time.Time, requester Identity) ([]Order, error) {
	if !requester.Manager {
		return nil, ErrForbidden
	}
	return s.orders.ListCreatedBetween(ctx, from, to)
}

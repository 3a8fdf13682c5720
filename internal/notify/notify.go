// Package notify provides the notification implementations wired into the
// order and product services. Real email transport lives outside this
// service; LogNotifier records what would have been sent.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/bibliosphere/bookstore/internal/domain/order"
)

var _ order.Notifier = (*LogNotifier)(nil)

// LogNotifier satisfies the notification contracts by logging each message.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

// SendOrderReceipt logs the receipt that would be emailed to the buyer.
func (n *LogNotifier) SendOrderReceipt(_ context.Context, o *order.Order) error {
	n.lg.Info("order receipt",
		zap.String("order_id", o.ID),
		zap.String("to", o.UserEmail),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return nil
}

// SendPlainEmail logs a plain notification email.
func (n *LogNotifier) SendPlainEmail(_ context.Context, to, subject, body string) error {
	n.lg.Info("notification email",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// NoSubscribers is the product watcher source used when no wishlist backend
// is configured.
type NoSubscribers struct{}

// SubscribersFor always returns an empty list.
func (NoSubscribers) SubscribersFor(context.Context, string) ([]string, error) {
	return nil, nil
}

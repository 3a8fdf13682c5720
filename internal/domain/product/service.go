package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Validation errors for sales-manager updates.
var (
	ErrInvalidPrice    = errors.New("price must be greater than 0")
	ErrInvalidDiscount = errors.New("discount percentage must be between 0 and 100")
)

// Mailer sends plain notification emails. Failures are logged, never
// propagated.
type Mailer interface {
	SendPlainEmail(ctx context.Context, to, subject, body string) error
}

// Subscribers resolves the users watching a product. Wishlist storage lives
// outside this core; this is the narrow contract it exposes.
type Subscribers interface {
	SubscribersFor(ctx context.Context, isbn string) ([]string, error)
}

// Service covers the sales-manager catalog operations: price and discount
// updates with watcher notification.
type Service struct {
	products    Repository
	subscribers Subscribers
	mailer      Mailer
	lg          *zap.Logger
}

// NewService creates a product Service.
func NewService(products Repository, subscribers Subscribers, mailer Mailer, lg *zap.Logger) *Service {
	return &Service{
		products:    products,
		subscribers: subscribers,
		mailer:      mailer,
		lg:          lg,
	}
}

// UpdatePrice sets a new unit price for the product.
func (s *Service) UpdatePrice(ctx context.Context, isbn string, price decimal.Decimal) (*Product, error) {
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	return s.products.UpdatePrice(ctx, isbn, price.Round(2))
}

// UpdateDiscount sets the discount percentage and notifies everyone watching
// the product. The discounted price is derived from the percentage, so no
// separate write is needed.
func (s *Service) UpdateDiscount(ctx context.Context, isbn string, percentage decimal.Decimal) (*Product, error) {
	hundred := decimal.NewFromInt(100)
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return nil, ErrInvalidDiscount
	}

	p, err := s.products.UpdateDiscount(ctx, isbn, percentage)
	if err != nil {
		return nil, err
	}

	if percentage.IsPositive() {
		s.notifyWatchers(ctx, p)
	}
	return p, nil
}

func (s *Service) notifyWatchers(ctx context.Context, p *Product) {
	watchers, err := s.subscribers.SubscribersFor(ctx, p.ISBN)
	if err != nil {
		s.lg.Warn("resolve product watchers failed",
			zap.String("isbn", p.ISBN),
			zap.Error(err),
		)
		return
	}

	subject := "A book in your wishlist is on sale"
	body := fmt.Sprintf("%s by %s is now %s (%s%% off).",
		p.Title, p.Author, p.EffectivePrice().StringFixed(2), p.DiscountPercentage.String())

	for _, to := range watchers {
		if err := s.mailer.SendPlainEmail(ctx, to, subject, body); err != nil {
			s.lg.Warn("discount notification failed",
				zap.String("isbn", p.ISBN),
				zap.String("to", to),
				zap.Error(err),
			)
		}
	}
}

package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item. The ISBN is the catalog key; Stock is the
// number of units available for reservation and is only ever modified
// through the stock ledger.
type Product struct {
	ISBN               string
	Title              string
	Author             string
	Description        string
	Category           string
	Publisher          string
	PublishYear        string
	Pages              int
	Language           string
	Image              string
	Price              decimal.Decimal
	DiscountPercentage decimal.Decimal
	Stock              int
}

// EffectivePrice returns the unit price after the product discount, rounded
// to 2 decimal places. With no discount it returns Price unchanged.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPercentage.IsZero() {
		return p.Price
	}
	factor := decimal.NewFromInt(1).Sub(p.DiscountPercentage.Div(decimal.NewFromInt(100)))
	return p.Price.Mul(factor).Round(2)
}

// Repository defines catalog persistence operations.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByISBN(ctx context.Context, isbn string) (*Product, error)
	GetByISBNs(ctx context.Context, isbns []string) ([]Product, error)
	UpdatePrice(ctx context.Context, isbn string, price decimal.Decimal) (*Product, error)
	UpdateDiscount(ctx context.Context, isbn string, percentage decimal.Decimal) (*Product, error)
}

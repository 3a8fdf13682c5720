package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bibliosphere/bookstore/internal/domain/product"
)

const (
	productColumns = `isbn, title, author, description, category, publisher, publish_year,
		pages, language, image, price, discount_percentage, stock`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY title`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE isbn = $1`

	getProductsByISBNsSQL = `SELECT ` + productColumns + ` FROM products WHERE isbn = ANY($1)`

	updatePriceSQL = `UPDATE products SET price = $2 WHERE isbn = $1
		RETURNING ` + productColumns

	updateDiscountSQL = `UPDATE products SET discount_percentage = $2 WHERE isbn = $1
		RETURNING ` + productColumns

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (isbn) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			publisher = EXCLUDED.publisher,
			publish_year = EXCLUDED.publish_year,
			pages = EXCLUDED.pages,
			language = EXCLUDED.language,
			image = EXCLUDED.image,
			price = EXCLUDED.price,
			discount_percentage = EXCLUDED.discount_percentage,
			stock = EXCLUDED.stock`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository using the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole catalog ordered by title.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByISBN returns a single product by its catalog key.
func (r *ProductRepository) GetByISBN(ctx context.Context, isbn string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, isbn)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", isbn, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", isbn, err)
	}
	return &p, nil
}

// GetByISBNs returns the products matching any of the given keys.
func (r *ProductRepository) GetByISBNs(ctx context.Context, isbns []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByISBNsSQL, isbns)
	if err != nil {
		return nil, fmt.Errorf("getting products by isbns: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// UpdatePrice sets a new unit price and returns the updated product.
func (r *ProductRepository) UpdatePrice(ctx context.Context, isbn string, price decimal.Decimal) (*product.Product, error) {
	return r.updateReturning(ctx, updatePriceSQL, isbn, price)
}

// UpdateDiscount sets the discount percentage and returns the updated product.
func (r *ProductRepository) UpdateDiscount(ctx context.Context, isbn string, percentage decimal.Decimal) (*product.Product, error) {
	return r.updateReturning(ctx, updateDiscountSQL, isbn, percentage)
}

func (r *ProductRepository) updateReturning(ctx context.Context, sql, isbn string, value decimal.Decimal) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, isbn, value)
	if err != nil {
		return nil, fmt.Errorf("updating product %q: %w", isbn, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("updating product %q: %w", isbn, err)
	}
	return &p, nil
}

// Upsert inserts or replaces a catalog row. Used by the seed and ingest
// tools, not by the order path.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ISBN, p.Title, p.Author, p.Description, p.Category, p.Publisher,
		p.PublishYear, p.Pages, p.Language, p.Image, p.Price,
		p.DiscountPercentage, p.Stock,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ISBN, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ISBN, &p.Title, &p.Author, &p.Description, &p.Category,
		&p.Publisher, &p.PublishYear, &p.Pages, &p.Language, &p.Image,
		&p.Price, &p.DiscountPercentage, &p.Stock,
	)
	return p, err
}

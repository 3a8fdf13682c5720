package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/bibliosphere/bookstore/internal/domain/product"
	"github.com/bibliosphere/bookstore/internal/repository"
)

type productJSON struct {
	ISBN               string          `json:"isbn"`
	Title              string          `json:"title"`
	Author             string          `json:"author"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	Publisher          string          `json:"publisher"`
	PublishYear        string          `json:"publishYear"`
	Pages              int             `json:"pages"`
	Language           string          `json:"language"`
	Image              string          `json:"image"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	Stock              int             `json:"stock"`
}

func main() {
	var (
		databaseURL string
		booksFile   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&booksFile, "books-file", "db/seed/books.json", "path to books JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, booksFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, booksFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedBooks(ctx, repository.NewProductRepository(pool), booksFile)
}

func seedBooks(ctx context.Context, repo *repository.ProductRepository, booksFile string) error {
	slog.Info("reading books file", slog.String("path", booksFile))

	data, err := os.ReadFile(booksFile)
	if err != nil {
		return errors.Wrap(err, "read books file")
	}

	var books []productJSON
	if err := json.Unmarshal(data, &books); err != nil {
		return errors.Wrap(err, "parse books JSON")
	}

	slog.Info("upserting books", slog.Int("count", len(books)))

	for _, b := range books {
		if err := repo.Upsert(ctx, product.Product{
			ISBN:               b.ISBN,
			Title:              b.Title,
			Author:             b.Author,
			Description:        b.Description,
			Category:           b.Category,
			Publisher:          b.Publisher,
			PublishYear:        b.PublishYear,
			Pages:              b.Pages,
			Language:           b.Language,
			Image:              b.Image,
			Price:              b.Price,
			DiscountPercentage: b.DiscountPercentage,
			Stock:              b.Stock,
		}); err != nil {
			return errors.Wrapf(err, "upsert book %s", b.ISBN)
		}

		slog.Info("upserted book", slog.String("isbn", b.ISBN), slog.String("title", b.Title))
	}

	return nil
}

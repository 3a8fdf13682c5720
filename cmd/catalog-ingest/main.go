// Command catalog-ingest loads gzip-compressed NDJSON catalog dumps from a
// distributor feed into the products table. Each line is one book record;
// files are parsed concurrently and deduplicated by ISBN before writing.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/bibliosphere/bookstore/internal/domain/product"
	"github.com/bibliosphere/bookstore/internal/repository"
)

const progressEvery = 100_000

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz catalog dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "glob data dir")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.ndjson.gz files found in %s", dataDir)
	}
	sort.Strings(files)

	slog.Info("parsing catalog dumps", slog.Int("files", len(files)))

	results := make([][]product.Product, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFile(gctx, i, f, results))
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "parse catalog dumps")
	}

	// Later files win on duplicate ISBNs, matching distributor feed order.
	merged := make(map[string]product.Product)
	for _, books := range results {
		for _, b := range books {
			merged[b.ISBN] = b
		}
	}

	slog.Info("books after dedup", slog.Int("count", len(merged)))

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := repository.NewProductRepository(pool)
	written := 0
	for _, b := range merged {
		if err := repo.Upsert(ctx, b); err != nil {
			return errors.Wrapf(err, "upsert book %s", b.ISBN)
		}
		written++
		if written%1000 == 0 || written == len(merged) {
			slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(merged)))
		}
	}

	return nil
}

func parseFile(ctx context.Context, idx int, path string, results [][]product.Product) func() error {
	return func() error {
		var (
			books []product.Product
			count uint64
		)

		if err := streamGzLines(ctx, path, func(line []byte) error {
			b, err := decodeBook(line)
			if err != nil {
				return errors.Wrapf(err, "line %d", count+1)
			}
			if b.ISBN == "" {
				return nil
			}
			books = append(books, b)
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress", slog.Int("file", idx+1), slog.Uint64("books", count))
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}

		slog.Info("parse complete", slog.Int("file", idx+1), slog.Uint64("total_books", count))

		results[idx] = books
		return nil
	}
}

// streamGzLines opens a gzip-compressed file and calls fn for each
// non-empty line.
func streamGzLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// decodeBook parses a single NDJSON book record. Unknown keys are skipped so
// feed schema additions do not break the ingest.
func decodeBook(line []byte) (product.Product, error) {
	var b product.Product
	d := jx.DecodeBytes(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "isbn":
			b.ISBN, err = d.Str()
		case "title":
			b.Title, err = d.Str()
		case "author":
			b.Author, err = d.Str()
		case "description":
			b.Description, err = d.Str()
		case "category":
			b.Category, err = d.Str()
		case "publisher":
			b.Publisher, err = d.Str()
		case "publishYear":
			b.PublishYear, err = d.Str()
		case "pages":
			b.Pages, err = d.Int()
		case "language":
			b.Language, err = d.Str()
		case "image":
			b.Image, err = d.Str()
		case "price":
			b.Price, err = decodeDecimal(d)
		case "discountPercentage":
			b.DiscountPercentage, err = decodeDecimal(d)
		case "stock":
			b.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return b, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

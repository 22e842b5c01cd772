// Command coupon-ingest bulk-imports coupon definitions from gzip-compressed
// JSON-lines files. Each line is a create request body:
//
//	{"type":"cart-wise","details":{"threshold":100,"discount":10},"usage_limit":50}
//
// Invalid lines are reported and skipped. A definition repeated within or
// across files is imported once.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/repository"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		expected    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected", 1_000_000, "expected number of coupon definitions, sizes the duplicate filter")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, expected); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, expected uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list input files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}
	sort.Strings(files)

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	imp := newImporter(lg, repository.NewCouponRepository(pool), expected)
	stats, err := imp.Import(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Import summary",
		zap.Int("files", len(files)),
		zap.Int64("created", stats.Created),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("invalid", stats.Invalid),
	)
	return nil
}

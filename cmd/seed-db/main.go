// Command seed-db inserts sample coupons from a JSON array of create request
// bodies. It does nothing when active coupons already exist, unless -force is
// given.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/internal/repository"
)

func main() {
	var (
		databaseURL string
		couponsFile string
		force       bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "db/seed/coupons.json", "path to coupons JSON file")
	flag.BoolVar(&force, "force", false, "seed even when active coupons exist")
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

	if err := run(ctx, lg, databaseURL, couponsFile, force); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, couponsFile string, force bool) error {
	data, err := os.ReadFile(couponsFile)
	if err != nil {
		return errors.Wrap(err, "read coupons file")
	}
	drafts, err := parseDrafts(data)
	if err != nil {
		return errors.Wrapf(err, "parse %s", couponsFile)
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seed(ctx, lg, repository.NewCouponRepository(pool), drafts, force)
}

// parseDrafts decodes a JSON array of coupon create bodies.
func parseDrafts(data []byte) ([]coupon.Draft, error) {
	var drafts []coupon.Draft
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		draft, err := coupon.UnmarshalDraft(raw)
		if err != nil {
			return errors.Wrapf(err, "coupon %d", len(drafts))
		}
		drafts = append(drafts, draft)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func seed(ctx context.Context, lg *zap.Logger, repo coupon.Repository, drafts []coupon.Draft, force bool) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupons")
	}
	if len(existing) > 0 && !force {
		lg.Info("Active coupons exist, skipping seed", zap.Int("count", len(existing)))
		return nil
	}

	for _, d := range drafts {
		rec, err := repo.Create(ctx, d)
		if err != nil {
			return errors.Wrapf(err, "create %s coupon", d.Variant.Kind())
		}
		lg.Info("Seeded coupon",
			zap.Int64("coupon_id", rec.ID),
			zap.String("type", string(rec.Kind)),
		)
	}
	return nil
}

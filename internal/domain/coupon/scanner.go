package coupon

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-coupons/internal/domain/cart"
)

// Scanner finds the coupons of a catalog that give a discount for a cart.
//
// Catalogs larger than the parallel threshold are evaluated by a bounded
// worker pool. Results keep catalog order either way.
type Scanner struct {
	workers   int
	threshold int
}

// NewScanner creates a Scanner. A workers value below 2 disables parallel
// evaluation.
func NewScanner(workers, parallelThreshold int) *Scanner {
	return &Scanner{workers: workers, threshold: parallelThreshold}
}

// Applicable returns the coupons from catalog that are active, valid at now
// and give a positive discount for c, in catalog order. Records whose payload
// cannot be parsed are logged and skipped. The only error returned is the
// context error.
func (s *Scanner) Applicable(ctx context.Context, c cart.Cart, catalog []Record, now time.Time) ([]Applicable, error) {
	slots := make([]*Applicable, len(catalog))
	eval := func(ctx context.Context, i int) {
		if a, ok := evaluate(ctx, catalog[i], c, now); ok {
			slots[i] = &a
		}
	}

	if s.workers < 2 || len(catalog) <= s.threshold {
		for i := range catalog {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			eval(ctx, i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i := range catalog {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				eval(gctx, i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return lo.FilterMap(slots, func(a *Applicable, _ int) (Applicable, bool) {
		if a == nil {
			return Applicable{}, false
		}
		return *a, true
	}), nil
}

func evaluate(ctx context.Context, r Record, c cart.Cart, now time.Time) (Applicable, bool) {
	if !r.IsActive {
		return Applicable{}, false
	}
	cp, err := r.Coupon()
	if err != nil {
		zctx.From(ctx).Warn("Skipping malformed coupon",
			zap.Int64("coupon_id", r.ID),
			zap.String("type", string(r.Kind)),
			zap.Error(err),
		)
		return Applicable{}, false
	}
	if !IsValid(cp, now) {
		return Applicable{}, false
	}
	amount := ComputeDiscount(cp.Variant, c)
	if !amount.IsPositive() {
		return Applicable{}, false
	}
	return Applicable{CouponID: cp.ID, Kind: cp.Kind(), Discount: amount}, true
}

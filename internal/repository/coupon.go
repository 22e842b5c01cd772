package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const (
	couponColumns = `id, type, details, is_active, created_at, expires_at, usage_limit, used_count`

	listActiveCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE is_active ORDER BY id`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	getActiveCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 AND is_active`

	lockCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`

	incrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`

	createCouponSQL = `INSERT INTO coupons (type, details, expires_at, usage_limit)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + couponColumns

	updateCouponSQL = `UPDATE coupons SET type = $2, details = $3, expires_at = $4, usage_limit = $5
		WHERE id = $1
		RETURNING ` + couponColumns

	deactivateCouponSQL = `UPDATE coupons SET is_active = FALSE WHERE id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FetchActive returns all active coupons ordered by id.
func (r *CouponRepository) FetchActive(ctx context.Context) ([]coupon.Record, error) {
	rows, err := r.pool.Query(ctx, listActiveCouponsSQL)
	if err != nil {
		return nil, storeErr("list active coupons", err)
	}
	recs, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, storeErr("list active coupons", err)
	}
	return recs, nil
}

// List is FetchActive under its admin name.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Record, error) {
	return r.FetchActive(ctx)
}

// Fetch returns the coupon with the given id, active or not.
func (r *CouponRepository) Fetch(ctx context.Context, id int64) (coupon.Record, error) {
	return r.getOne(ctx, getCouponSQL, id)
}

// Get returns the active coupon with the given id.
func (r *CouponRepository) Get(ctx context.Context, id int64) (coupon.Record, error) {
	return r.getOne(ctx, getActiveCouponSQL, id)
}

func (r *CouponRepository) getOne(ctx context.Context, query string, id int64) (coupon.Record, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return coupon.Record{}, storeErr("get coupon", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.Record{}, coupon.ErrCouponNotFound
		}
		return coupon.Record{}, storeErr("get coupon", err)
	}
	return rec, nil
}

// IncrementUsage locks the coupon row, re-checks it against now and bumps
// used_count in one transaction. Concurrent calls for the same id queue on
// the row lock, so used_count never passes usage_limit.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id int64, now time.Time) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockCouponSQL, id)
		if err != nil {
			return storeErr("lock coupon", err)
		}
		rec, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrCouponNotFound
			}
			return storeErr("lock coupon", err)
		}
		if reason := rec.Check(now); reason != coupon.ReasonNone {
			return &coupon.NotApplicableError{CouponID: id, Reason: reason}
		}
		if _, err := tx.Exec(ctx, incrementCouponUsageSQL, id); err != nil {
			return storeErr("increment coupon usage", err)
		}
		return nil
	})
	if err != nil {
		if isDomainErr(err) {
			return err
		}
		return storeErr("increment coupon usage", err)
	}
	return nil
}

// Create inserts a new active coupon with a zero usage count.
func (r *CouponRepository) Create(ctx context.Context, d coupon.Draft) (coupon.Record, error) {
	if err := d.Validate(); err != nil {
		return coupon.Record{}, err
	}
	details, err := coupon.MarshalVariant(d.Variant)
	if err != nil {
		return coupon.Record{}, err
	}
	rows, err := r.pool.Query(ctx, createCouponSQL,
		string(d.Variant.Kind()), details, d.ExpiresAt, d.UsageLimit,
	)
	if err != nil {
		return coupon.Record{}, storeErr("create coupon", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		return coupon.Record{}, storeErr("create coupon", err)
	}
	return rec, nil
}

// Update replaces the variant, expiry and usage limit of a coupon.
func (r *CouponRepository) Update(ctx context.Context, id int64, d coupon.Draft) (coupon.Record, error) {
	if err := d.Validate(); err != nil {
		return coupon.Record{}, err
	}
	details, err := coupon.MarshalVariant(d.Variant)
	if err != nil {
		return coupon.Record{}, err
	}
	rows, err := r.pool.Query(ctx, updateCouponSQL,
		id, string(d.Variant.Kind()), details, d.ExpiresAt, d.UsageLimit,
	)
	if err != nil {
		return coupon.Record{}, storeErr("update coupon", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.Record{}, coupon.ErrCouponNotFound
		}
		return coupon.Record{}, storeErr("update coupon", err)
	}
	return rec, nil
}

// Deactivate soft-deletes a coupon by clearing is_active.
func (r *CouponRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deactivateCouponSQL, id)
	if err != nil {
		return storeErr("deactivate coupon", err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Record, error) {
	var (
		rec        coupon.Record
		kind       string
		usageLimit *int32
	)
	err := row.Scan(
		&rec.ID, &kind, &rec.Details, &rec.IsActive, &rec.CreatedAt,
		&rec.ExpiresAt, &usageLimit, &rec.UsedCount,
	)
	rec.Kind = coupon.Kind(kind)
	if usageLimit != nil {
		limit := int(*usageLimit)
		rec.UsageLimit = &limit
	}
	return rec, err
}

func storeErr(op string, err error) error {
	return &coupon.StoreError{Op: op, Err: err}
}

func isDomainErr(err error) bool {
	return errors.Is(err, coupon.ErrCouponNotFound) ||
		errors.Is(err, coupon.ErrCouponNotApplicable) ||
		errors.Is(err, coupon.ErrStoreUnavailable)
}

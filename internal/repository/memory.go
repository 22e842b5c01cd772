package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

var _ coupon.Repository = (*MemoryRepository)(nil)

// MemoryRepository implements coupon.Repository in process memory. It is used
// when no database is configured and in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	coupons map[int64]coupon.Record
	nextID  int64
	now     func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		coupons: make(map[int64]coupon.Record),
		nextID:  1,
		now:     time.Now,
	}
}

// FetchActive returns all active coupons ordered by id.
func (r *MemoryRepository) FetchActive(context.Context) ([]coupon.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]coupon.Record, 0, len(r.coupons))
	for _, rec := range r.coupons {
		if rec.IsActive {
			out = append(out, clone(rec))
		}
	}
	slices.SortFunc(out, func(a, b coupon.Record) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// List is FetchActive under its admin name.
func (r *MemoryRepository) List(ctx context.Context) ([]coupon.Record, error) {
	return r.FetchActive(ctx)
}

// Fetch returns the coupon with the given id, active or not.
func (r *MemoryRepository) Fetch(_ context.Context, id int64) (coupon.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.coupons[id]
	if !ok {
		return coupon.Record{}, coupon.ErrCouponNotFound
	}
	return clone(rec), nil
}

// Get returns the active coupon with the given id.
func (r *MemoryRepository) Get(_ context.Context, id int64) (coupon.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.coupons[id]
	if !ok || !rec.IsActive {
		return coupon.Record{}, coupon.ErrCouponNotFound
	}
	return clone(rec), nil
}

// IncrementUsage re-checks the coupon against now and bumps its usage count
// under the repository lock.
func (r *MemoryRepository) IncrementUsage(_ context.Context, id int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.coupons[id]
	if !ok {
		return coupon.ErrCouponNotFound
	}
	if reason := rec.Check(now); reason != coupon.ReasonNone {
		return &coupon.NotApplicableError{CouponID: id, Reason: reason}
	}
	rec.UsedCount++
	r.coupons[id] = rec
	return nil
}

// Create stores a new active coupon.
func (r *MemoryRepository) Create(_ context.Context, d coupon.Draft) (coupon.Record, error) {
	if err := d.Validate(); err != nil {
		return coupon.Record{}, err
	}
	details, err := coupon.MarshalVariant(d.Variant)
	if err != nil {
		return coupon.Record{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := coupon.Record{
		Limits: coupon.Limits{
			ExpiresAt:  d.ExpiresAt,
			UsageLimit: d.UsageLimit,
		},
		ID:        r.nextID,
		Kind:      d.Variant.Kind(),
		Details:   details,
		IsActive:  true,
		CreatedAt: r.now().UTC(),
	}
	r.nextID++
	r.coupons[rec.ID] = clone(rec)
	return clone(rec), nil
}

// Update replaces the variant, expiry and usage limit of a coupon.
func (r *MemoryRepository) Update(_ context.Context, id int64, d coupon.Draft) (coupon.Record, error) {
	if err := d.Validate(); err != nil {
		return coupon.Record{}, err
	}
	details, err := coupon.MarshalVariant(d.Variant)
	if err != nil {
		return coupon.Record{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.coupons[id]
	if !ok {
		return coupon.Record{}, coupon.ErrCouponNotFound
	}
	rec.Kind = d.Variant.Kind()
	rec.Details = details
	rec.ExpiresAt = d.ExpiresAt
	rec.UsageLimit = d.UsageLimit
	r.coupons[id] = clone(rec)
	return clone(rec), nil
}

// Deactivate soft-deletes a coupon.
func (r *MemoryRepository) Deactivate(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.coupons[id]
	if !ok {
		return coupon.ErrCouponNotFound
	}
	rec.IsActive = false
	r.coupons[id] = rec
	return nil
}

// clone copies the mutable parts of rec so callers never alias stored state.
func clone(rec coupon.Record) coupon.Record {
	rec.Details = slices.Clone(rec.Details)
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		rec.ExpiresAt = &t
	}
	if rec.UsageLimit != nil {
		n := *rec.UsageLimit
		rec.UsageLimit = &n
	}
	return rec
}

// Package cache provides an in-memory read-through cache for the coupon
// catalog.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const activeKey = "coupons:active"

var _ coupon.Repository = (*CouponCache)(nil)

// CouponCache caches the active coupon catalog in front of a
// coupon.Repository. Single-coupon reads always go to the backing
// repository, and every write invalidates the cached catalog.
//
// The cache is process-local: with several replicas, a catalog cached here
// may list a coupon another replica has just exhausted, for at most the TTL.
// Applying such a coupon still fails, because IncrementUsage revalidates.
type CouponCache struct {
	next  coupon.Repository
	cache *gocache.Cache
	ttl   time.Duration

	// gen counts invalidations. A load only fills the cache when no
	// invalidation happened while it ran.
	mu  sync.Mutex
	gen uint64
}

// NewCouponCache wraps next with a catalog cache.
func NewCouponCache(next coupon.Repository, ttl, cleanupInterval time.Duration) *CouponCache {
	return &CouponCache{
		next:  next,
		cache: gocache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// FetchActive returns the cached catalog, loading it on a miss.
func (c *CouponCache) FetchActive(ctx context.Context) ([]coupon.Record, error) {
	if v, ok := c.cache.Get(activeKey); ok {
		return slices.Clone(v.([]coupon.Record)), nil
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	recs, err := c.next.FetchActive(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cache.Set(activeKey, slices.Clone(recs), c.ttl)
	}
	c.mu.Unlock()
	return recs, nil
}

func (c *CouponCache) List(ctx context.Context) ([]coupon.Record, error) {
	return c.FetchActive(ctx)
}

func (c *CouponCache) Fetch(ctx context.Context, id int64) (coupon.Record, error) {
	return c.next.Fetch(ctx, id)
}

func (c *CouponCache) Get(ctx context.Context, id int64) (coupon.Record, error) {
	return c.next.Get(ctx, id)
}

func (c *CouponCache) IncrementUsage(ctx context.Context, id int64, now time.Time) error {
	defer c.Invalidate()
	return c.next.IncrementUsage(ctx, id, now)
}

func (c *CouponCache) Create(ctx context.Context, d coupon.Draft) (coupon.Record, error) {
	defer c.Invalidate()
	return c.next.Create(ctx, d)
}

func (c *CouponCache) Update(ctx context.Context, id int64, d coupon.Draft) (coupon.Record, error) {
	defer c.Invalidate()
	return c.next.Update(ctx, id, d)
}

func (c *CouponCache) Deactivate(ctx context.Context, id int64) error {
	defer c.Invalidate()
	return c.next.Deactivate(ctx, id)
}

// Invalidate drops the cached catalog.
func (c *CouponCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Delete(activeKey)
}

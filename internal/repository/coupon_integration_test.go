//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "coupons",
				"POSTGRES_PASSWORD": "coupons",
				"POSTGRES_DB":       "coupons",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://coupons:coupons@%s:%s/coupons?sslmode=disable", host, port.Port())
	pool, err := NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestCouponRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewCouponRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("create and fetch", func(t *testing.T) {
		limit := 5
		expires := now.Add(24 * time.Hour).Truncate(time.Microsecond)
		rec, err := repo.Create(ctx, coupon.Draft{
			Variant: coupon.BxGy{
				Buy:             []coupon.Requirement{{ProductID: 1, Quantity: 2}},
				Get:             []coupon.Requirement{{ProductID: 2, Quantity: 1}},
				RepetitionLimit: 3,
			},
			ExpiresAt:  &expires,
			UsageLimit: &limit,
		})
		require.NoError(t, err)
		assert.Positive(t, rec.ID)
		assert.True(t, rec.IsActive)

		got, err := repo.Fetch(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, expires.Equal(*got.ExpiresAt))
		require.NotNil(t, got.UsageLimit)
		assert.Equal(t, 5, *got.UsageLimit)

		cp, err := got.Coupon()
		require.NoError(t, err)
		assert.Equal(t, 3, cp.Variant.(coupon.BxGy).RepetitionLimit)
	})

	t.Run("update keeps usage count", func(t *testing.T) {
		rec, err := repo.Create(ctx, coupon.Draft{
			Variant: coupon.CartWise{Threshold: decimal.NewFromInt(10), Percent: decimal.NewFromInt(5)},
		})
		require.NoError(t, err)
		require.NoError(t, repo.IncrementUsage(ctx, rec.ID, now))

		updated, err := repo.Update(ctx, rec.ID, coupon.Draft{
			Variant: coupon.ProductWise{ProductID: 9, Percent: decimal.NewFromInt(50)},
		})
		require.NoError(t, err)
		assert.Equal(t, coupon.KindProductWise, updated.Kind)
		assert.Equal(t, 1, updated.UsedCount)

		_, err = repo.Update(ctx, 1<<40, coupon.Draft{Variant: coupon.ProductWise{ProductID: 9, Percent: decimal.NewFromInt(1)}})
		assert.ErrorIs(t, err, coupon.ErrCouponNotFound)
	})

	t.Run("deactivate hides coupon", func(t *testing.T) {
		rec, err := repo.Create(ctx, coupon.Draft{
			Variant: coupon.CartWise{Threshold: decimal.Zero, Percent: decimal.NewFromInt(1)},
		})
		require.NoError(t, err)
		require.NoError(t, repo.Deactivate(ctx, rec.ID))

		_, err = repo.Get(ctx, rec.ID)
		assert.ErrorIs(t, err, coupon.ErrCouponNotFound)

		active, err := repo.FetchActive(ctx)
		require.NoError(t, err)
		for _, a := range active {
			assert.NotEqual(t, rec.ID, a.ID)
		}

		assert.ErrorIs(t, repo.Deactivate(ctx, 1<<40), coupon.ErrCouponNotFound)
	})

	t.Run("concurrent increments respect usage limit", func(t *testing.T) {
		limit := 7
		rec, err := repo.Create(ctx, coupon.Draft{
			Variant:    coupon.CartWise{Threshold: decimal.Zero, Percent: decimal.NewFromInt(10)},
			UsageLimit: &limit,
		})
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			applied  atomic.Int64
			rejected atomic.Int64
		)
		for range 40 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.IncrementUsage(ctx, rec.ID, time.Now())
				switch {
				case err == nil:
					applied.Add(1)
				case errors.Is(err, coupon.ErrCouponNotApplicable):
					rejected.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(7), applied.Load())
		assert.Equal(t, int64(33), rejected.Load())

		got, err := repo.Fetch(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.UsedCount)
	})

	t.Run("closed pool reports store unavailable", func(t *testing.T) {
		closed, err := NewPool(ctx, pool.Config().ConnString())
		require.NoError(t, err)
		closed.Close()

		_, err = NewCouponRepository(closed).FetchActive(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, coupon.ErrStoreUnavailable))
	})
}

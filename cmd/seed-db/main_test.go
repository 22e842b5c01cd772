package main

import (
	"context"
	"os"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
	"github.com/xenking/kart-coupons/internal/repository"
)

func TestParseDrafts_SeedFile(t *testing.T) {
	data, err := os.ReadFile("../../db/seed/coupons.json")
	require.NoError(t, err)

	drafts, err := parseDrafts(data)
	require.NoError(t, err)
	require.Len(t, drafts, 6)
	assert.Equal(t, coupon.KindBxGy, drafts[3].Variant.Kind())
	require.NotNil(t, drafts[4].UsageLimit)
	assert.Equal(t, 100, *drafts[4].UsageLimit)
	assert.NotNil(t, drafts[5].ExpiresAt)
}

func TestParseDrafts_Invalid(t *testing.T) {
	_, err := parseDrafts([]byte(`[{"type":"bxgy","details":{"buy_products":[],"get_products":[],"repetition_limit":0}}]`))
	assert.True(t, errors.Is(err, coupon.ErrInvalidVariant))
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	lg := zaptest.NewLogger(t)
	repo := repository.NewMemoryRepository()
	drafts, err := parseDrafts([]byte(`[
		{"type":"cart-wise","details":{"threshold":200,"discount":10}},
		{"type":"product-wise","details":{"product_id":5,"discount":20}}
	]`))
	require.NoError(t, err)

	require.NoError(t, seed(ctx, lg, repo, drafts, false))
	require.NoError(t, seed(ctx, lg, repo, drafts, false))
	got, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, seed(ctx, lg, repo, drafts, true))
	got, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

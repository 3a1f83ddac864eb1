package oracle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

func TestMemoryFeed_SetAndGet(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed()
	now := time.Now().UTC()

	require.NoError(t, feed.SetPrice(ctx, Quote{Symbol: "stx", PriceMicroUsd: 1_250_000, UpdatedAt: now}))

	q, err := feed.GetPrice(ctx, " STX ")
	require.NoError(t, err)
	assert.Equal(t, "STX", q.Symbol)
	assert.Equal(t, int64(1_250_000), q.PriceMicroUsd)
	assert.True(t, q.UpdatedAt.Equal(now))
}

func TestMemoryFeed_Missing(t *testing.T) {
	_, err := NewMemoryFeed().GetPrice(context.Background(), "XBTC")
	assert.ErrorIs(t, err, vaultmath.ErrStaleOrMissingPrice)
}

func TestMemoryFeed_RejectsInvalidQuotes(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed()
	now := time.Now()

	for name, q := range map[string]Quote{
		"empty symbol":   {Symbol: " ", PriceMicroUsd: 1, UpdatedAt: now},
		"zero price":     {Symbol: "STX", PriceMicroUsd: 0, UpdatedAt: now},
		"negative price": {Symbol: "STX", PriceMicroUsd: -1, UpdatedAt: now},
		"no timestamp":   {Symbol: "STX", PriceMicroUsd: 1},
	} {
		assert.ErrorIs(t, feed.SetPrice(ctx, q), ErrInvalidQuote, name)
	}
}

type staticSource Quote

func (s staticSource) GetPrice(context.Context, string) (Quote, error) {
	return Quote(s), nil
}

func TestGuard_Stale(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := staticSource{Symbol: "STX", PriceMicroUsd: 1_000_000, UpdatedAt: now.Add(-10 * time.Minute)}

	guard := NewGuard(src, 5*time.Minute)
	guard.now = func() time.Time { return now }
	_, err := guard.GetPrice(context.Background(), "STX")
	assert.ErrorIs(t, err, vaultmath.ErrStaleOrMissingPrice)

	guard = NewGuard(src, 15*time.Minute)
	guard.now = func() time.Time { return now }
	q, err := guard.GetPrice(context.Background(), "STX")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), q.PriceMicroUsd)
}

func TestGuard_NonPositivePrice(t *testing.T) {
	guard := NewGuard(staticSource{Symbol: "STX", PriceMicroUsd: 0, UpdatedAt: time.Now()}, 0)
	_, err := guard.GetPrice(context.Background(), "STX")
	assert.ErrorIs(t, err, vaultmath.ErrStaleOrMissingPrice)
}

func TestGuard_NoMaxAge(t *testing.T) {
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := NewGuard(staticSource{Symbol: "STX", PriceMicroUsd: 5, UpdatedAt: old}, 0)
	_, err := guard.GetPrice(context.Background(), "STX")
	assert.NoError(t, err)
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisFeed_SetAndGet(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	feed := NewRedisFeed(rdb)
	t.Cleanup(func() { rdb.Del(ctx, priceKey("TESTSTX")) })

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, feed.SetPrice(ctx, Quote{Symbol: "teststx", PriceMicroUsd: 2_345_678, UpdatedAt: now}))

	q, err := feed.GetPrice(ctx, "TESTSTX")
	require.NoError(t, err)
	assert.Equal(t, int64(2_345_678), q.PriceMicroUsd)
	assert.True(t, q.UpdatedAt.Equal(now))

	_, err = feed.GetPrice(ctx, "TESTNOPE")
	assert.ErrorIs(t, err, vaultmath.ErrStaleOrMissingPrice)
}

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

	ctx := context.Background()
	t.Cleanup(func() {
		for _, id := range []int64{1, 2, 10, 11} {
			rdb.Del(ctx, vaultKey(id))
		}
		rdb.Del(ctx, collateralTypeKey("STX-A"), collateralTypeKey("XBTC-A"))
		rdb.Close()
	})
	return rdb
}

func TestCachedStore(t *testing.T) {
	rdb := setupTestRedis(t)
	runStoreSuite(t, NewCachedStore(NewMemoryStore(), rdb, time.Minute))
}

func TestCachedStore_InvalidatesOnWrite(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	s := NewCachedStore(NewMemoryStore(), rdb, time.Minute)

	v := testVault(1, "SP1OWNER", "STX")
	require.NoError(t, s.UpsertVault(ctx, v))
	_, err := s.GetVault(ctx, 1) // populate cache
	require.NoError(t, err)

	v.Debt = 999
	v.UpdatedAt = v.UpdatedAt.Add(time.Second)
	require.NoError(t, s.UpsertVault(ctx, v))

	got, err := s.GetVault(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(999), got.Debt)
}

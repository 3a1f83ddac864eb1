package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultkit/vault-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertVault(ctx context.Context, v *model.VaultRecord) error {
	if err := s.primary.UpsertVault(ctx, v); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, vaultKey(v.ID))
	return nil
}

func (s *CachedStore) UpsertCollateralType(ctx context.Context, ct *model.CollateralType) error {
	if err := s.primary.UpsertCollateralType(ctx, ct); err != nil {
		return err
	}
	s.rdb.Del(ctx, collateralTypeKey(ct.Name))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetVault(ctx context.Context, id int64) (*model.VaultRecord, error) {
	var v model.VaultRecord
	if s.cached(ctx, vaultKey(id), &v) {
		return &v, nil
	}

	// Cache miss: read from primary.
	got, err := s.primary.GetVault(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, vaultKey(id), got)
	return got, nil
}

func (s *CachedStore) GetCollateralType(ctx context.Context, name string) (*model.CollateralType, error) {
	var ct model.CollateralType
	if s.cached(ctx, collateralTypeKey(name), &ct) {
		return &ct, nil
	}

	got, err := s.primary.GetCollateralType(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, collateralTypeKey(name), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListVaultsByOwner(ctx context.Context, owner string) ([]model.VaultRecord, error) {
	return s.primary.ListVaultsByOwner(ctx, owner)
}

func (s *CachedStore) ListVaultsByToken(ctx context.Context, token string) ([]model.VaultRecord, error) {
	return s.primary.ListVaultsByToken(ctx, token)
}

func (s *CachedStore) ListCollateralTypes(ctx context.Context) ([]model.CollateralType, error) {
	return s.primary.ListCollateralTypes(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cached(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func vaultKey(id int64) string            { return fmt.Sprintf("vault:%d", id) }
func collateralTypeKey(name string) string { return "collateral-type:" + name }

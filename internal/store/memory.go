package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vaultkit/vault-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	vaults map[int64]model.VaultRecord
	types  map[string]model.CollateralType
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults: make(map[int64]model.VaultRecord),
		types:  make(map[string]model.CollateralType),
	}
}

func (s *MemoryStore) UpsertVault(_ context.Context, v *model.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.vaults[v.ID]; ok && existing.UpdatedAt.After(v.UpdatedAt) {
		return fmt.Errorf("%w: vault %d", ErrStaleSnapshot, v.ID)
	}
	// Values are stored by copy to avoid external mutation.
	s.vaults[v.ID] = *v
	return nil
}

func (s *MemoryStore) GetVault(_ context.Context, id int64) (*model.VaultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vaults[id]
	if !ok {
		return nil, fmt.Errorf("%w: vault %d", ErrNotFound, id)
	}
	return &v, nil
}

func (s *MemoryStore) ListVaultsByOwner(_ context.Context, owner string) ([]model.VaultRecord, error) {
	return s.filterVaults(func(v model.VaultRecord) bool {
		return v.Owner == owner
	}), nil
}

func (s *MemoryStore) ListVaultsByToken(_ context.Context, token string) ([]model.VaultRecord, error) {
	return s.filterVaults(func(v model.VaultRecord) bool {
		return !v.IsLiquidated && strings.EqualFold(v.CollateralToken, token)
	}), nil
}

func (s *MemoryStore) filterVaults(keep func(model.VaultRecord) bool) []model.VaultRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.VaultRecord
	for _, v := range s.vaults {
		if keep(v) {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *MemoryStore) UpsertCollateralType(_ context.Context, ct *model.CollateralType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.types[ct.Name]; ok && existing.UpdatedAt.After(ct.UpdatedAt) {
		return fmt.Errorf("%w: collateral type %s", ErrStaleSnapshot, ct.Name)
	}
	s.types[ct.Name] = *ct
	return nil
}

func (s *MemoryStore) GetCollateralType(_ context.Context, name string) (*model.CollateralType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ct, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: collateral type %s", ErrNotFound, name)
	}
	return &ct, nil
}

func (s *MemoryStore) ListCollateralTypes(_ context.Context) ([]model.CollateralType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]model.CollateralType, 0, len(s.types))
	for _, ct := range s.types {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

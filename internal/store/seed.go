package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaultkit/vault-engine/internal/model"
)

// SeedCollateralTypes inserts configured collateral types that the store
// does not hold yet and returns how many were inserted. Stored types are
// left untouched: they carry on-chain totals that a configured seed lacks.
func SeedCollateralTypes(ctx context.Context, s Store, types []model.CollateralType) (int, error) {
	seeded := 0
	for i := range types {
		ct := &types[i]
		_, err := s.GetCollateralType(ctx, ct.Name)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, ErrNotFound):
			return seeded, fmt.Errorf("store: seed %s: %w", ct.Name, err)
		}
		if err := s.UpsertCollateralType(ctx, ct); err != nil {
			return seeded, fmt.Errorf("store: seed %s: %w", ct.Name, err)
		}
		seeded++
	}
	return seeded, nil
}

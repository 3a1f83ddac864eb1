package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkit/vault-engine/internal/model"
)

func TestSeedCollateralTypes_KeepsStoredState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stored := testCollateralType("STX-A", "STX")
	stored.TotalDebt = 4_900_000_000_000
	require.NoError(t, s.UpsertCollateralType(ctx, stored))

	// A restart seeds from config with a fresh timestamp and no debt.
	restart := t0.Add(24 * time.Hour)
	seedSTX := testCollateralType("STX-A", "STX")
	seedSTX.UpdatedAt = restart
	seedBTC := testCollateralType("XBTC-A", "XBTC")
	seedBTC.UpdatedAt = restart

	n, err := SeedCollateralTypes(ctx, s, []model.CollateralType{*seedSTX, *seedBTC})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetCollateralType(ctx, "STX-A")
	require.NoError(t, err)
	assert.Equal(t, int64(4_900_000_000_000), got.TotalDebt)
	assert.True(t, got.UpdatedAt.Equal(t0))

	got, err = s.GetCollateralType(ctx, "XBTC-A")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(restart))

	// Seeding again is a no-op.
	n, err = SeedCollateralTypes(ctx, s, []model.CollateralType{*seedSTX, *seedBTC})
	require.NoError(t, err)
	assert.Zero(t, n)
}

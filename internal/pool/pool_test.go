package pool

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkit/vault-engine/internal/model"
	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		key      string
		contract string
		token    string
		ft       string
		lp       bool
	}{
		{"diko", "arkadiko-stake-pool-diko-v1-1", "arkadiko-token", "diko", false},
		{"dikousda", "arkadiko-stake-pool-diko-usda-v1-1", "arkadiko-swap-token-diko-usda", "diko-usda", true},
		{"WSTXUSDA", "arkadiko-stake-pool-wstx-usda-v1-1", "arkadiko-swap-token-wstx-usda", "wstx-usda", true},
		{"wstxdiko", "arkadiko-stake-pool-wstx-diko-v1-1", "arkadiko-swap-token-wstx-diko", "wstx-diko", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			spec, err := Lookup(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.contract, spec.PoolContract)
			assert.Equal(t, tt.token, spec.TokenContract)
			assert.Equal(t, tt.ft, spec.FungibleToken)
			assert.Equal(t, tt.lp, spec.LP)
		})
	}

	_, err := Lookup("usda")
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestAll_OrderedByKind(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	assert.Equal(t, KindDIKO, all[0].Kind)
	assert.Equal(t, KindWSTXDIKO, all[3].Kind)
	assert.Equal(t, "wSTX-USDA", KindWSTXUSDA.String())
}

func TestStackerContract(t *testing.T) {
	for name, want := range map[string]string{
		"":          "arkadiko-stacker-v1-1",
		"stacker":   "arkadiko-stacker-v1-1",
		"stacker-2": "arkadiko-stacker-2-v1-1",
		"stacker-3": "arkadiko-stacker-3-v1-1",
		"stacker-4": "arkadiko-stacker-4-v1-1",
	} {
		got, err := StackerContract(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, "stacker %q", name)
	}

	_, err := StackerContract("stacker-9")
	assert.ErrorIs(t, err, ErrUnknownStacker)
}

func TestValidateStake(t *testing.T) {
	balance := decimal.NewFromInt(100)
	assert.NoError(t, ValidateStake(decimal.NewFromInt(100), balance))
	assert.ErrorIs(t, ValidateStake(decimal.NewFromFloat(100.5), balance), vaultmath.ErrExceedsMaximum)
	assert.ErrorIs(t, ValidateStake(decimal.Zero, balance), vaultmath.ErrInvalidInput)
}

func TestValidateUnstake(t *testing.T) {
	staked := decimal.NewFromInt(40)
	assert.NoError(t, ValidateUnstake(decimal.NewFromInt(12), staked))
	assert.ErrorIs(t, ValidateUnstake(decimal.NewFromInt(41), staked), vaultmath.ErrExceedsMaximum)
	assert.ErrorIs(t, ValidateUnstake(decimal.NewFromInt(-1), staked), vaultmath.ErrInvalidInput)
}

func TestStackingStatus_NotStacking(t *testing.T) {
	v := model.VaultRecord{CollateralToken: "STX"}

	s, err := StackingStatus(v, 0, 700_000)
	require.NoError(t, err)
	assert.True(t, s.CanStack)
	assert.True(t, s.Enabled)
	assert.False(t, s.Started)
	assert.True(t, s.CanWithdraw)
	assert.False(t, s.CanUnlock)
	assert.Equal(t, "arkadiko-stacker-v1-1", s.StackerContract)
}

func TestStackingStatus_LockedUntilUnlockHeight(t *testing.T) {
	v := model.VaultRecord{CollateralToken: "STX", StackerName: "stacker-2", StackedTokens: 1_000_000_000}

	s, err := StackingStatus(v, 700_100, 700_000)
	require.NoError(t, err)
	assert.True(t, s.Started)
	assert.False(t, s.CanWithdraw, "collateral is locked before the unlock height")

	s, err = StackingStatus(v, 700_100, 700_100)
	require.NoError(t, err)
	assert.True(t, s.CanWithdraw, "collateral unlocks at the unlock height")
	assert.Equal(t, "arkadiko-stacker-2-v1-1", s.StackerContract)
}

func TestStackingStatus_Revoked(t *testing.T) {
	v := model.VaultRecord{CollateralToken: "STX", RevokedStacking: true, StackedTokens: 5}

	s, err := StackingStatus(v, 0, 700_000)
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	assert.True(t, s.CanUnlock)
	assert.False(t, s.CanWithdraw)

	v.StackedTokens = 0
	s, err = StackingStatus(v, 0, 700_000)
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	assert.False(t, s.CanUnlock)
	assert.True(t, s.CanWithdraw)
}

func TestStackingStatus_PeggedCannotStack(t *testing.T) {
	s, err := StackingStatus(model.VaultRecord{CollateralToken: "xBTC"}, 0, 1)
	require.NoError(t, err)
	assert.False(t, s.CanStack)
}

func TestStackingStatus_UnknownStacker(t *testing.T) {
	_, err := StackingStatus(model.VaultRecord{StackerName: "stacker-x"}, 0, 1)
	assert.ErrorIs(t, err, ErrUnknownStacker)
}

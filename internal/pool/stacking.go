package pool

import (
	"github.com/vaultkit/vault-engine/internal/collateral"
	"github.com/vaultkit/vault-engine/internal/model"
)

// Stacking is what the owner of a vault may do with stacked collateral at a
// given burn height.
type Stacking struct {
	StackerContract  string `json:"stacker_contract"`
	UnlockBurnHeight int64  `json:"unlock_burn_height"`

	// CanStack is true for collateral that can be stacked at all.
	CanStack bool `json:"can_stack"`
	// Enabled is false once the owner revoked stacking and nothing is left
	// stacked.
	Enabled bool `json:"enabled"`
	// Started is true while the stacker reports an unlock height.
	Started     bool `json:"started"`
	CanWithdraw bool `json:"can_withdraw"`
	CanUnlock   bool `json:"can_unlock"`
}

// StackingStatus derives the stacking state of a vault. unlockBurnHeight is
// the stacker's unlock height (zero when not stacking) and
// currentBurnHeight the latest stable burn block height.
//
// Collateral locked in an active stacking cycle is not withdrawable until
// the current burn height reaches the unlock height. The vault UI tests
// unlockBurnHeight > currentBurnHeight here, which unlocks early; this
// deliberately uses the reverse.
func StackingStatus(v model.VaultRecord, unlockBurnHeight, currentBurnHeight int64) (Stacking, error) {
	contract, err := StackerContract(v.StackerName)
	if err != nil {
		return Stacking{}, err
	}

	kind, _ := collateral.KindForToken(v.CollateralToken)
	s := Stacking{
		StackerContract:  contract,
		UnlockBurnHeight: unlockBurnHeight,
		CanStack:         kind == collateral.KindNative,
		Enabled:          !(v.StackedTokens == 0 && v.RevokedStacking),
	}

	if unlockBurnHeight <= 0 {
		s.UnlockBurnHeight = 0
		s.CanWithdraw = v.StackedTokens == 0
		s.CanUnlock = v.RevokedStacking && v.StackedTokens > 0
		return s, nil
	}

	s.Started = true
	unlocked := currentBurnHeight >= unlockBurnHeight
	s.CanWithdraw = unlocked
	s.CanUnlock = unlocked && v.RevokedStacking && v.StackedTokens > 0
	return s, nil
}

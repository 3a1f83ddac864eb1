// Package pool holds the closed set of staking pools and vault stackers with
// their contract identifiers, plus the stake, unstake and stacking checks
// that run before a transaction is built.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

// Registry is the stake registry contract every pool stakes through.
const Registry = "arkadiko-stake-registry-v1-1"

var (
	ErrUnknownPool    = errors.New("pool: unknown staking pool")
	ErrUnknownStacker = errors.New("pool: unknown stacker")
)

// Kind identifies a staking pool.
type Kind int

const (
	KindDIKO Kind = iota + 1
	KindDIKOUSDA
	KindWSTXUSDA
	KindWSTXDIKO
)

// Spec describes one staking pool.
type Spec struct {
	Kind          Kind   `json:"-"`
	BalanceKey    string `json:"balance_key"`
	Name          string `json:"name"`
	PoolContract  string `json:"pool_contract"`
	TokenContract string `json:"token_contract"`
	FungibleToken string `json:"fungible_token"`
	LP            bool   `json:"lp"`
}

var pools = map[Kind]Spec{
	KindDIKO: {
		Kind:          KindDIKO,
		BalanceKey:    "diko",
		Name:          "DIKO",
		PoolContract:  "arkadiko-stake-pool-diko-v1-1",
		TokenContract: "arkadiko-token",
		FungibleToken: "diko",
	},
	KindDIKOUSDA: {
		Kind:          KindDIKOUSDA,
		BalanceKey:    "dikousda",
		Name:          "DIKO-USDA",
		PoolContract:  "arkadiko-stake-pool-diko-usda-v1-1",
		TokenContract: "arkadiko-swap-token-diko-usda",
		FungibleToken: "diko-usda",
		LP:            true,
	},
	KindWSTXUSDA: {
		Kind:          KindWSTXUSDA,
		BalanceKey:    "wstxusda",
		Name:          "wSTX-USDA",
		PoolContract:  "arkadiko-stake-pool-wstx-usda-v1-1",
		TokenContract: "arkadiko-swap-token-wstx-usda",
		FungibleToken: "wstx-usda",
		LP:            true,
	},
	KindWSTXDIKO: {
		Kind:          KindWSTXDIKO,
		BalanceKey:    "wstxdiko",
		Name:          "wSTX-DIKO",
		PoolContract:  "arkadiko-stake-pool-wstx-diko-v1-1",
		TokenContract: "arkadiko-swap-token-wstx-diko",
		FungibleToken: "wstx-diko",
		LP:            true,
	},
}

// Lookup resolves a pool by its balance key ("diko", "wstxusda", ...).
func Lookup(balanceKey string) (Spec, error) {
	key := strings.ToLower(strings.TrimSpace(balanceKey))
	for _, spec := range pools {
		if spec.BalanceKey == key {
			return spec, nil
		}
	}
	return Spec{}, fmt.Errorf("%w: %s", ErrUnknownPool, balanceKey)
}

// All returns every pool ordered by kind.
func All() []Spec {
	out := make([]Spec, 0, len(pools))
	for _, spec := range pools {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (k Kind) String() string {
	if spec, ok := pools[k]; ok {
		return spec.Name
	}
	return "unknown"
}

// stackers maps a vault's stacker name to its contract. An empty name is the
// first stacker.
var stackers = map[string]string{
	"":          "arkadiko-stacker-v1-1",
	"stacker":   "arkadiko-stacker-v1-1",
	"stacker-2": "arkadiko-stacker-2-v1-1",
	"stacker-3": "arkadiko-stacker-3-v1-1",
	"stacker-4": "arkadiko-stacker-4-v1-1",
}

// StackerContract returns the stacker contract for a vault's stacker name.
func StackerContract(name string) (string, error) {
	contract, ok := stackers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownStacker, name)
	}
	return contract, nil
}

// ValidateStake rejects a stake that is not positive or above the wallet
// balance of the pool token.
func ValidateStake(amount, balance decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: stake amount must be positive, got %s", vaultmath.ErrInvalidInput, amount)
	}
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: stake %s above balance %s", vaultmath.ErrExceedsMaximum, amount, balance)
	}
	return nil
}

// ValidateUnstake rejects an unstake that is not positive or above the
// amount currently staked.
func ValidateUnstake(amount, staked decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: unstake amount must be positive, got %s", vaultmath.ErrInvalidInput, amount)
	}
	if amount.GreaterThan(staked) {
		return fmt.Errorf("%w: unstake %s above staked %s", vaultmath.ErrExceedsMaximum, amount, staked)
	}
	return nil
}

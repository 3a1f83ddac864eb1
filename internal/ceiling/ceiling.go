// Package ceiling enforces stablecoin debt ceilings.
//
// Each collateral type carries an on-chain maximum debt; minting against a
// type may not push its total debt above that maximum. An optional global
// ceiling caps the aggregate debt across every collateral type, so a burst of
// minting spread over several types is still bounded.
package ceiling

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/model"
	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

var (
	// ErrDebtCeilingExceeded is returned when a mint would push a collateral
	// type's total debt beyond its maximum debt.
	ErrDebtCeilingExceeded = errors.New("ceiling: collateral type debt ceiling exceeded")

	// ErrGlobalCeilingExceeded is returned when a mint would push the
	// aggregate debt across all collateral types beyond the global ceiling.
	ErrGlobalCeilingExceeded = errors.New("ceiling: global debt ceiling exceeded")
)

// Guard checks mints against per-type and global debt ceilings.
type Guard struct {
	// MaxGlobalDebt is the aggregate ceiling in USD. Zero disables it.
	MaxGlobalDebt decimal.Decimal
}

// NewGuard creates a guard with the given global ceiling in USD. A zero or
// negative value disables the global ceiling.
func NewGuard(maxGlobalDebt decimal.Decimal) *Guard {
	if maxGlobalDebt.IsNegative() {
		maxGlobalDebt = decimal.Zero
	}
	return &Guard{MaxGlobalDebt: maxGlobalDebt}
}

// Headroom returns how much more debt, in USD, the collateral type accepts.
func (g *Guard) Headroom(params model.CollateralType) decimal.Decimal {
	room := vaultmath.MicroToReadable(params.MaximumDebt).Sub(vaultmath.MicroToReadable(params.TotalDebt))
	if !room.IsPositive() {
		return decimal.Zero
	}
	return room
}

// GlobalHeadroom returns how much more debt, in USD, fits under the global
// ceiling given every collateral type's current total. ok is false when no
// global ceiling is configured.
func (g *Guard) GlobalHeadroom(types []model.CollateralType) (room decimal.Decimal, ok bool) {
	if !g.MaxGlobalDebt.IsPositive() {
		return decimal.Zero, false
	}
	room = g.MaxGlobalDebt.Sub(totalDebt(types))
	if room.IsNegative() {
		return decimal.Zero, true
	}
	return room, true
}

// CheckMint validates whether minting amount USD against params respects
// both ceilings. types is the full set of collateral types used for the
// global ceiling; params need not be part of it.
//
// Returns nil if the mint is within limits, or an error describing the
// violation.
func (g *Guard) CheckMint(params model.CollateralType, amount decimal.Decimal, types []model.CollateralType) error {
	// 1. Per-type ceiling.
	if room := g.Headroom(params); amount.GreaterThan(room) {
		return fmt.Errorf("%w: %s: mint %s above headroom %s",
			ErrDebtCeilingExceeded, params.Name, amount, room)
	}

	// 2. Aggregate ceiling.
	if room, ok := g.GlobalHeadroom(types); ok && amount.GreaterThan(room) {
		return fmt.Errorf("%w: mint %s above headroom %s", ErrGlobalCeilingExceeded, amount, room)
	}

	return nil
}

// Cap limits a computed maximum mint to what both ceilings still allow.
func (g *Guard) Cap(max decimal.Decimal, params model.CollateralType, types []model.CollateralType) decimal.Decimal {
	max = decimal.Min(max, g.Headroom(params))
	if room, ok := g.GlobalHeadroom(types); ok {
		max = decimal.Min(max, room)
	}
	return max
}

func totalDebt(types []model.CollateralType) decimal.Decimal {
	total := decimal.Zero
	for _, t := range types {
		total = total.Add(vaultmath.MicroToReadable(t.TotalDebt))
	}
	return total
}

package vaultmath

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/collateral"
	"github.com/vaultkit/vault-engine/internal/model"
)

// ErrInvalidPolicy is returned by NewCalculator for an unusable policy.
var ErrInvalidPolicy = errors.New("vaultmath: invalid policy")

// Policy holds the protocol constants the calculator applies on top of a
// collateral type's own parameters.
type Policy struct {
	// BufferPercent is added to a collateral type's ratio floor before any
	// mint or withdraw limit is computed.
	BufferPercent decimal.Decimal

	// Floors is the protocol minimum collateral ratio per token kind, in
	// percent. The effective minimum never drops below it.
	Floors map[collateral.Kind]decimal.Decimal

	// NativeFeeReserve is the amount of native token a deposit must leave in
	// the wallet to pay transaction fees.
	NativeFeeReserve decimal.Decimal
}

// DefaultPolicy returns the protocol defaults: a 30 point buffer, floors of
// 400% for the native token and 300% for pegged tokens, and a fee reserve of
// 2 native tokens.
func DefaultPolicy() Policy {
	return Policy{
		BufferPercent: decimal.NewFromInt(30),
		Floors: map[collateral.Kind]decimal.Decimal{
			collateral.KindNative: decimal.NewFromInt(400),
			collateral.KindPegged: decimal.NewFromInt(300),
		},
		NativeFeeReserve: decimal.NewFromInt(2),
	}
}

// Calculator computes mint and withdraw limits under a Policy.
// It is stateless; vault and price snapshots are passed as arguments.
type Calculator struct {
	policy Policy
}

// NewCalculator validates the policy and returns a calculator bound to a
// private copy of it.
func NewCalculator(p Policy) (*Calculator, error) {
	if p.BufferPercent.IsNegative() {
		return nil, fmt.Errorf("%w: buffer must not be negative, got %s", ErrInvalidPolicy, p.BufferPercent)
	}
	if p.NativeFeeReserve.IsNegative() {
		return nil, fmt.Errorf("%w: native fee reserve must not be negative, got %s", ErrInvalidPolicy, p.NativeFeeReserve)
	}

	floors := make(map[collateral.Kind]decimal.Decimal, len(p.Floors))
	for _, k := range collateral.Kinds() {
		floor, ok := p.Floors[k]
		if !ok {
			return nil, fmt.Errorf("%w: no ratio floor for %s tokens", ErrInvalidPolicy, k)
		}
		if !floor.IsPositive() {
			return nil, fmt.Errorf("%w: ratio floor for %s tokens must be positive, got %s", ErrInvalidPolicy, k, floor)
		}
		floors[k] = floor
	}
	p.Floors = floors

	return &Calculator{policy: p}, nil
}

// Policy returns a copy of the calculator's policy.
func (c *Calculator) Policy() Policy {
	p := c.policy
	p.Floors = make(map[collateral.Kind]decimal.Decimal, len(c.policy.Floors))
	for k, v := range c.policy.Floors {
		p.Floors[k] = v
	}
	return p
}

// EffectiveMinRatio returns the ratio a vault must keep after a mint or
// withdraw: max(floor(kind), ratioFloor + buffer).
func (c *Calculator) EffectiveMinRatio(ratioFloor decimal.Decimal, kind collateral.Kind) (decimal.Decimal, error) {
	if ratioFloor.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative ratio floor %s", ErrInvalidInput, ratioFloor)
	}
	floor, ok := c.policy.Floors[kind]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown token kind", ErrInvalidInput)
	}
	return decimal.Max(floor, ratioFloor.Add(c.policy.BufferPercent)), nil
}

// AvailableCoinsToMint returns the additional debt, in USD, that keeps the
// vault at or above the effective minimum ratio:
//
//	max(0, collateral * price / (effectiveMin/100) - debt)
//
// The result is floored to micro-units. A missing or non-positive price
// yields zero with ErrStaleOrMissingPrice.
func (c *Calculator) AvailableCoinsToMint(priceUsd, collateralLocked, outstandingDebt, ratioFloor decimal.Decimal, kind collateral.Kind) (decimal.Decimal, error) {
	if err := nonNegative(collateralLocked, outstandingDebt); err != nil {
		return decimal.Zero, err
	}
	minRatio, err := c.EffectiveMinRatio(ratioFloor, kind)
	if err != nil {
		return decimal.Zero, err
	}
	if !priceUsd.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price %s USD", ErrStaleOrMissingPrice, priceUsd)
	}

	maxDebt := collateralLocked.Mul(priceUsd).Mul(hundred).Div(minRatio)
	available := maxDebt.Sub(outstandingDebt)
	if available.IsNegative() {
		return decimal.Zero, nil
	}
	return available.RoundFloor(MicroScale), nil
}

// AvailableCollateralToWithdraw returns how much collateral, in token units,
// can leave the vault while it stays at or above the effective minimum
// ratio:
//
//	max(0, collateral - debt * (effectiveMin/100) / price)
//
// With no debt the whole collateral is withdrawable and the price is not
// consulted. Otherwise the result is floored to the kind's base units.
func (c *Calculator) AvailableCollateralToWithdraw(priceUsd, collateralLocked, outstandingDebt, ratioFloor decimal.Decimal, kind collateral.Kind) (decimal.Decimal, error) {
	if err := nonNegative(collateralLocked, outstandingDebt); err != nil {
		return decimal.Zero, err
	}
	minRatio, err := c.EffectiveMinRatio(ratioFloor, kind)
	if err != nil {
		return decimal.Zero, err
	}
	if outstandingDebt.IsZero() {
		return collateralLocked, nil
	}
	if !priceUsd.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price %s USD", ErrStaleOrMissingPrice, priceUsd)
	}

	required := outstandingDebt.Mul(minRatio).Div(hundred.Mul(priceUsd))
	available := collateralLocked.Sub(required)
	if available.IsNegative() {
		return decimal.Zero, nil
	}
	return available.RoundFloor(kind.Decimals()), nil
}

// Derive computes every DerivedMetrics field for one vault snapshot.
// Undefined values (ratio without debt, liquidation price without
// collateral) are left nil. A stale price fails the whole derivation.
func (c *Calculator) Derive(state model.VaultState, params model.CollateralType, kind collateral.Kind) (model.DerivedMetrics, error) {
	var m model.DerivedMetrics

	ratio, err := CollateralToDebtRatio(state.CollateralTokenPriceMicroUsd, state.DebtAmount, state.CollateralAmount)
	switch {
	case err == nil:
		m.CollateralToDebtRatioPercent = &ratio
	case errors.Is(err, ErrUndefinedRatio):
	default:
		return model.DerivedMetrics{}, err
	}

	liq, err := liquidationPrice(params.LiquidationRatio, state.DebtAmount, state.CollateralAmount)
	switch {
	case err == nil:
		m.LiquidationPriceUsd = &liq
	case errors.Is(err, ErrUndefinedRatio):
	default:
		return model.DerivedMetrics{}, err
	}

	price := MicroToReadable(state.CollateralTokenPriceMicroUsd)
	m.MaximumMintableUsd, err = c.AvailableCoinsToMint(price,
		state.CollateralAmount, state.DebtAmount, params.CollateralToDebtRatio, kind)
	if err != nil {
		return model.DerivedMetrics{}, err
	}
	m.MaximumWithdrawableCollateral, err = c.AvailableCollateralToWithdraw(price,
		state.CollateralAmount, state.DebtAmount, params.CollateralToDebtRatio, kind)
	if err != nil {
		return model.DerivedMetrics{}, err
	}

	return m, nil
}

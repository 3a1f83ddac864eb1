// Package vaultmath implements the solvency and affordability arithmetic for
// collateralized-debt vaults: collateral-to-debt ratio, liquidation price and
// the maximum amounts a user may safely mint or withdraw.
//
// Every function is pure. Inputs are immutable snapshots (price, amounts,
// collateral-type parameters) and nothing is cached between calls, so the
// package is safe for concurrent use without coordination.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Limits that gate a transaction are floored to whole base units so a
// "can the user mint this much" comparison never drifts.
package vaultmath

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/collateral"
)

var (
	// ErrInvalidInput is returned for negative amounts, non-finite numbers or
	// malformed ratios. Never coerced to zero.
	ErrInvalidInput = errors.New("vaultmath: invalid input")

	// ErrUndefinedRatio is returned when a ratio or liquidation price has no
	// meaningful value: zero debt for a ratio, zero collateral for a
	// liquidation price.
	ErrUndefinedRatio = errors.New("vaultmath: ratio is undefined")

	// ErrStaleOrMissingPrice is returned when the collateral price is absent
	// or non-positive. Dependent limits are reported as zero.
	ErrStaleOrMissingPrice = errors.New("vaultmath: stale or missing price")

	// ErrExceedsMaximum is returned when a requested amount is above the
	// computed safe maximum.
	ErrExceedsMaximum = errors.New("vaultmath: amount exceeds maximum")
)

// MicroScale is the exponent of micro-units: 1 unit = 10^6 micro-units.
const MicroScale int32 = 6

var (
	hundred = decimal.NewFromInt(100)

	maxInt64 = decimal.NewFromInt(math.MaxInt64)

	// amountRegex mirrors the amount input field: digits with at most one
	// '.' or ',' separator.
	amountRegex = regexp.MustCompile(`^[0-9]*[.,]?[0-9]*$`)
)

// MicroToReadable converts micro-units to display units (divides by 10^6).
// No rounding is applied; locale formatting belongs to the display layer.
func MicroToReadable(micro int64) decimal.Decimal {
	return decimal.New(micro, -MicroScale)
}

// ReadableToMicro converts display units to whole micro-units, flooring any
// sub-micro precision.
func ReadableToMicro(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidInput, amount)
	}
	micro := amount.Shift(MicroScale).Floor()
	if micro.GreaterThan(maxInt64) {
		return 0, fmt.Errorf("%w: amount %s out of range", ErrInvalidInput, amount)
	}
	return micro.IntPart(), nil
}

// FromFloat converts a float64 to a decimal, rejecting NaN and ±Inf.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: non-finite number %v", ErrInvalidInput, f)
	}
	return decimal.NewFromFloat(f), nil
}

// ParseAmount parses a user-entered amount such as "12.5" or "12,5".
// Empty, signed or otherwise malformed input fails with ErrInvalidInput.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == "," || !amountRegex.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: malformed amount %q", ErrInvalidInput, s)
	}
	s = strings.Replace(s, ",", ".", 1)
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return amount, nil
}

// CollateralToDebtRatio computes the collateral-to-debt ratio as a percent:
//
//	ratio = (collateral * price) / debt * 100
//
// priceMicroUsd is the collateral price in micro-USD per token unit;
// debt and collateral are in display units. Zero debt has no ratio and
// yields ErrUndefinedRatio.
func CollateralToDebtRatio(priceMicroUsd int64, debt, collateralAmount decimal.Decimal) (decimal.Decimal, error) {
	if err := nonNegative(debt, collateralAmount); err != nil {
		return decimal.Zero, err
	}
	if priceMicroUsd <= 0 {
		return decimal.Zero, fmt.Errorf("%w: price %d micro-USD", ErrStaleOrMissingPrice, priceMicroUsd)
	}
	if debt.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: vault has no debt", ErrUndefinedRatio)
	}

	value := collateralAmount.Mul(MicroToReadable(priceMicroUsd))
	return value.Mul(hundred).Div(debt), nil
}

// LiquidationPrice computes the collateral price at which the vault's ratio
// equals liquidationRatio exactly:
//
//	price = (liquidationRatio/100 * debt) / collateral
//
// debtMicro is the on-chain debt in micro-USD and collateralBase the
// on-chain collateral in the token's base units; kind selects the decimal
// scale used to bring both to display units before dividing.
//
// Zero collateral yields ErrUndefinedRatio. Zero debt with collateral yields
// a price of zero: any price is safe.
func LiquidationPrice(liquidationRatio decimal.Decimal, debtMicro, collateralBase int64, kind collateral.Kind) (decimal.Decimal, error) {
	if !kind.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown token kind", ErrInvalidInput)
	}
	if debtMicro < 0 || collateralBase < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative amount (debt=%d, collateral=%d)",
			ErrInvalidInput, debtMicro, collateralBase)
	}
	return liquidationPrice(liquidationRatio,
		MicroToReadable(debtMicro), collateral.FromBase(collateralBase, kind))
}

// liquidationPrice is LiquidationPrice on display-unit amounts.
func liquidationPrice(liquidationRatio, debt, collateralAmount decimal.Decimal) (decimal.Decimal, error) {
	if !liquidationRatio.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: liquidation ratio must be positive, got %s",
			ErrInvalidInput, liquidationRatio)
	}
	if err := nonNegative(debt, collateralAmount); err != nil {
		return decimal.Zero, err
	}
	if collateralAmount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: vault has no collateral", ErrUndefinedRatio)
	}
	return liquidationRatio.Mul(debt).Div(collateralAmount.Mul(hundred)), nil
}

func nonNegative(amounts ...decimal.Decimal) error {
	for _, a := range amounts {
		if a.IsNegative() {
			return fmt.Errorf("%w: negative amount %s", ErrInvalidInput, a)
		}
	}
	return nil
}

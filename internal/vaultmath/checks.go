package vaultmath

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/collateral"
)

// DebtWithFee returns the total a vault owner must repay: outstanding debt
// plus the accrued stability fee (micro-USD).
func DebtWithFee(outstanding decimal.Decimal, feeMicro int64) decimal.Decimal {
	return outstanding.Add(MicroToReadable(feeMicro))
}

// BurnCeiling is the upper bound on stablecoin leaving the wallet when
// burning: the burn amount plus twice the accrued fee, so fee accrual between
// quote and confirmation cannot fail the transfer.
func BurnCeiling(burn decimal.Decimal, feeMicro int64) decimal.Decimal {
	return burn.Add(MicroToReadable(feeMicro).Mul(decimal.NewFromInt(2)))
}

// ValidateMint rejects a mint that is not positive or above max.
func ValidateMint(requested, max decimal.Decimal) error {
	return checkAmount("mint", requested, max)
}

// ValidateWithdraw rejects a withdrawal that is not positive or above max.
func ValidateWithdraw(requested, max decimal.Decimal) error {
	return checkAmount("withdraw", requested, max)
}

// ValidateBurn rejects a burn that is not positive or above the vault's
// outstanding debt.
func ValidateBurn(requested, outstanding decimal.Decimal) error {
	return checkAmount("burn", requested, outstanding)
}

// MaxDeposit returns how much of a wallet balance can go into a vault. The
// native token keeps the policy fee reserve in the wallet.
func (c *Calculator) MaxDeposit(balance decimal.Decimal, kind collateral.Kind) (decimal.Decimal, error) {
	if err := nonNegative(balance); err != nil {
		return decimal.Zero, err
	}
	if kind != collateral.KindNative {
		return balance, nil
	}
	return decimal.Max(decimal.Zero, balance.Sub(c.policy.NativeFeeReserve)), nil
}

// ValidateDeposit rejects a deposit that is not positive or exceeds what the
// wallet can spare. Native deposits must stay strictly below the balance.
func (c *Calculator) ValidateDeposit(amount, balance decimal.Decimal, kind collateral.Kind) error {
	if err := nonNegative(balance); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit amount must be positive, got %s", ErrInvalidInput, amount)
	}
	if kind == collateral.KindNative && amount.GreaterThanOrEqual(balance) {
		return fmt.Errorf("%w: deposit %s leaves nothing of balance %s for fees",
			ErrExceedsMaximum, amount, balance)
	}
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: deposit %s above balance %s", ErrExceedsMaximum, amount, balance)
	}
	return nil
}

func checkAmount(op string, requested, max decimal.Decimal) error {
	if !requested.IsPositive() {
		return fmt.Errorf("%w: %s amount must be positive, got %s", ErrInvalidInput, op, requested)
	}
	if requested.GreaterThan(max) {
		return fmt.Errorf("%w: %s %s above maximum %s", ErrExceedsMaximum, op, requested, max)
	}
	return nil
}

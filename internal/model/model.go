// Package model defines the core domain types shared across the vault engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Quantities read from chain stay in integer base units.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollateralType holds the risk parameters of one collateral type
// (e.g. "STX-A") as read from the collateral-types contract.
type CollateralType struct {
	Name      string `json:"name" db:"name"`
	Token     string `json:"token" db:"token"`
	TokenType string `json:"token_type" db:"token_type"`
	URL       string `json:"url" db:"url"`

	// Ratios are whole percentages: 150 means 150%.
	LiquidationRatio      decimal.Decimal `json:"liquidation_ratio" db:"liquidation_ratio"`
	LiquidationPenalty    decimal.Decimal `json:"liquidation_penalty" db:"liquidation_penalty"`
	CollateralToDebtRatio decimal.Decimal `json:"collateral_to_debt_ratio" db:"collateral_to_debt_ratio"`

	// StabilityFeeApy is in basis points (400 = 4% per year).
	StabilityFeeApy decimal.Decimal `json:"stability_fee_apy" db:"stability_fee_apy"`

	MaximumDebt int64 `json:"maximum_debt" db:"maximum_debt"` // micro-USD
	TotalDebt   int64 `json:"total_debt" db:"total_debt"`     // micro-USD

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// VaultRecord is a read-only snapshot of an on-chain vault. The engine never
// mutates a record in place; newer snapshots replace older ones.
type VaultRecord struct {
	ID              int64  `json:"id" db:"id"`
	Owner           string `json:"owner" db:"owner"`
	CollateralType  string `json:"collateral_type" db:"collateral_type"`
	CollateralToken string `json:"collateral_token" db:"collateral_token"`

	Collateral         int64 `json:"collateral" db:"collateral"`                   // token base units
	Debt               int64 `json:"debt" db:"debt"`                               // micro-USD
	StabilityFee       int64 `json:"stability_fee" db:"stability_fee"`             // accrued, micro-USD
	LeftoverCollateral int64 `json:"leftover_collateral" db:"leftover_collateral"` // token base units
	StackedTokens      int64 `json:"stacked_tokens" db:"stacked_tokens"`           // token base units

	StackerName     string `json:"stacker_name" db:"stacker_name"`
	RevokedStacking bool   `json:"revoked_stacking" db:"revoked_stacking"`
	IsLiquidated    bool   `json:"is_liquidated" db:"is_liquidated"`
	AuctionEnded    bool   `json:"auction_ended" db:"auction_ended"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// VaultState is the display-unit view of a vault used by the calculator.
type VaultState struct {
	CollateralAmount             decimal.Decimal `json:"collateral_amount"` // token units
	DebtAmount                   decimal.Decimal `json:"debt_amount"`       // USD units
	CollateralTokenPriceMicroUsd int64           `json:"collateral_token_price_micro_usd"`
}

// DerivedMetrics are recomputed on every request and never stored.
// A nil pointer means the metric is undefined (no debt, no collateral)
// and must be rendered as "—", not as zero.
type DerivedMetrics struct {
	CollateralToDebtRatioPercent  *decimal.Decimal `json:"collateral_to_debt_ratio_percent"`
	LiquidationPriceUsd           *decimal.Decimal `json:"liquidation_price_usd"`
	MaximumMintableUsd            decimal.Decimal  `json:"maximum_mintable_usd"`
	MaximumWithdrawableCollateral decimal.Decimal  `json:"maximum_withdrawable_collateral"`
}

// VaultAlert is emitted when a price update pushes a vault toward liquidation.
type VaultAlert struct {
	ID               string          `json:"id"`
	VaultID          int64           `json:"vault_id"`
	Owner            string          `json:"owner"`
	CollateralToken  string          `json:"collateral_token"`
	Health           string          `json:"health"`
	RatioPercent     decimal.Decimal `json:"ratio_percent"`
	LiquidationRatio decimal.Decimal `json:"liquidation_ratio"`
	PriceMicroUsd    int64           `json:"price_micro_usd"`
	Timestamp        time.Time       `json:"timestamp"`
}

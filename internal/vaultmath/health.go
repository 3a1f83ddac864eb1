package vaultmath

import "github.com/shopspring/decimal"

// Health classifies a vault's ratio against its collateral type's
// liquidation ratio.
type Health string

const (
	HealthNoDebt       Health = "no_debt"
	HealthHealthy      Health = "healthy"
	HealthAtRisk       Health = "at_risk"
	HealthLiquidatable Health = "liquidatable"
)

// Alerting reports whether the level warrants a risk alert.
func (h Health) Alerting() bool {
	return h == HealthAtRisk || h == HealthLiquidatable
}

// Health classifies a ratio. A nil ratio means the vault has no debt.
// Ratios below liquidationRatio are liquidatable; ratios within the policy
// buffer above it are at risk.
func (c *Calculator) Health(ratio *decimal.Decimal, liquidationRatio decimal.Decimal) Health {
	switch {
	case ratio == nil:
		return HealthNoDebt
	case ratio.LessThan(liquidationRatio):
		return HealthLiquidatable
	case ratio.LessThan(liquidationRatio.Add(c.policy.BufferPercent)):
		return HealthAtRisk
	default:
		return HealthHealthy
	}
}

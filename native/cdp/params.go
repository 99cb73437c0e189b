package cdp

import (
	"math"
	"math/big"
)

const moduleName = "cdp"

// Fixed system parameters. Governance of these values is out of scope; they
// are compile-time constants expressed in basis points unless noted.
const (
	// BipsPrecision is the denominator for all basis-point ratios.
	BipsPrecision = 10_000
	// MaxLTV caps minted debt at 80% of collateral value at deposit time.
	MaxLTV = 8_000
	// LiquidationThreshold is the health factor below which a position
	// becomes liquidatable (120%).
	LiquidationThreshold = 12_000
	// CollateralizationRatio is the minimum health factor a position must
	// retain immediately after a collateral-decreasing operation (125%).
	CollateralizationRatio = 12_500
	// LiquidationPenalty is the share of seized collateral withheld from the
	// liquidator (10%).
	LiquidationPenalty = 1_000
	// MaxCollateralTokens bounds the number of distinct collateral assets a
	// single position may hold.
	MaxCollateralTokens = 11
)

var (
	// PriceScale fixes the fixed-point precision of oracle unit prices. Every
	// valuation divides by it exactly once.
	PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// HealthInfinite is the sentinel health factor reported for zero-debt
	// positions.
	HealthInfinite = new(big.Int).SetUint64(math.MaxUint64)

	basisPoints = big.NewInt(BipsPrecision)
)

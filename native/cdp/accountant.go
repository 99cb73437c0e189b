package cdp

import "math/big"

// Accountant computes collateral valuation, debt health, and proportional burn
// amounts over position snapshots and live oracle prices. It holds no state of
// its own.
type Accountant struct {
	oracle *OracleClient
}

func NewAccountant(oracle *OracleClient) *Accountant {
	return &Accountant{oracle: oracle}
}

// Oracle exposes the underlying oracle client.
func (a *Accountant) Oracle() *OracleClient {
	if a == nil {
		return nil
	}
	return a.oracle
}

// TotalCollateralValue sums the oracle valuation of every holding.
func (a *Accountant) TotalCollateralValue(holdings []CollateralHolding) (*big.Int, error) {
	total := big.NewInt(0)
	for _, holding := range holdings {
		value, err := a.oracle.Valuation(holding.Asset, holding.Amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// HealthFactor returns totalCollateralValue * BipsPrecision / debt, or the
// HealthInfinite sentinel for zero-debt positions.
func (a *Accountant) HealthFactor(debt *big.Int, holdings []CollateralHolding) (*big.Int, error) {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(HealthInfinite), nil
	}
	total, err := a.TotalCollateralValue(holdings)
	if err != nil {
		return nil, err
	}
	health := new(big.Int).Mul(total, basisPoints)
	return health.Quo(health, debt), nil
}

// BurnPreview reports the proportional debt burn a collateral withdrawal would
// require and whether the resulting position stays solvent. BurnAmount is
// populated even when Eligible is false so callers can diagnose rejections.
type BurnPreview struct {
	Eligible       bool
	BurnAmount     *big.Int
	RemovedValue   *big.Int
	RemainingDebt  *big.Int
	RemainingValue *big.Int
}

// PreviewBurn computes the burn for withdrawing withdrawAmount of asset from a
// position with the given debt and holdings. Withdrawing a p fraction of
// collateral value burns the same p fraction of debt, which holds the health
// factor constant to first order and makes partial unwinds safe by
// construction. Rounds down.
func (a *Accountant) PreviewBurn(debt *big.Int, holdings []CollateralHolding, asset AssetID, withdrawAmount *big.Int) (BurnPreview, error) {
	preview := BurnPreview{
		BurnAmount:     big.NewInt(0),
		RemovedValue:   big.NewInt(0),
		RemainingDebt:  big.NewInt(0),
		RemainingValue: big.NewInt(0),
	}
	if withdrawAmount == nil || withdrawAmount.Sign() <= 0 {
		return preview, ErrInvalidAmount
	}
	if debt == nil {
		debt = big.NewInt(0)
	}

	asset = NormalizeAssetID(asset)
	var held *big.Int
	for _, holding := range holdings {
		if holding.Asset == asset {
			held = holding.Amount
			break
		}
	}
	if held == nil || held.Cmp(withdrawAmount) < 0 {
		return preview, nil
	}

	total, err := a.TotalCollateralValue(holdings)
	if err != nil {
		return preview, err
	}
	removed, err := a.oracle.Valuation(asset, withdrawAmount)
	if err != nil {
		return preview, err
	}

	burn := big.NewInt(0)
	if total.Sign() > 0 {
		burn = new(big.Int).Mul(debt, removed)
		burn.Quo(burn, total)
	}

	remainingValue := new(big.Int).Sub(total, removed)
	remainingDebt := new(big.Int).Sub(debt, burn)

	preview.BurnAmount = burn
	preview.RemovedValue = removed
	preview.RemainingDebt = remainingDebt
	preview.RemainingValue = remainingValue

	if remainingDebt.Sign() == 0 {
		preview.Eligible = true
		return preview, nil
	}
	health := new(big.Int).Mul(remainingValue, basisPoints)
	health.Quo(health, remainingDebt)
	preview.Eligible = health.Cmp(big.NewInt(CollateralizationRatio)) >= 0
	return preview, nil
}

// LiquidationSplit divides seized collateral between the protocol penalty and
// the liquidator reward.
func (a *Accountant) LiquidationSplit(collateralAmount *big.Int) (penalty, reward *big.Int) {
	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	penalty = new(big.Int).Mul(collateralAmount, big.NewInt(LiquidationPenalty))
	penalty.Quo(penalty, basisPoints)
	reward = new(big.Int).Sub(collateralAmount, penalty)
	return penalty, reward
}

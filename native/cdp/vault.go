package cdp

import (
	"math/big"

	"bondmint/crypto"
)

// CollateralVault owns the custody bookkeeping for deposited bond collateral.
// Each user's holdings are a bounded vector of (asset, amount) slots; removal
// swaps the last slot into place, so iteration order is unspecified.
type CollateralVault struct {
	holdings map[string][]CollateralHolding
}

func NewCollateralVault() *CollateralVault {
	return &CollateralVault{holdings: make(map[string][]CollateralHolding)}
}

func vaultKey(user crypto.Address) string {
	return string(user.Bytes())
}

func (v *CollateralVault) slotIndex(slots []CollateralHolding, asset AssetID) int {
	for i := range slots {
		if slots[i].Asset == asset {
			return i
		}
	}
	return -1
}

// CanIncrease reports whether a deposit of the asset would fit within the
// holding-set cardinality bound. Topping up an existing slot always fits.
func (v *CollateralVault) CanIncrease(user crypto.Address, asset AssetID) bool {
	slots := v.holdings[vaultKey(user)]
	if v.slotIndex(slots, NormalizeAssetID(asset)) >= 0 {
		return true
	}
	return len(slots) < MaxCollateralTokens
}

// Increase adds amount to the user's holding, opening a new slot when the
// asset is not yet held.
func (v *CollateralVault) Increase(user crypto.Address, asset AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset = NormalizeAssetID(asset)
	key := vaultKey(user)
	slots := v.holdings[key]
	idx := v.slotIndex(slots, asset)
	if idx >= 0 {
		slots[idx].Amount = new(big.Int).Add(slots[idx].Amount, amount)
		return nil
	}
	if len(slots) >= MaxCollateralTokens {
		return ErrTooManyCollateralTokens
	}
	v.holdings[key] = append(slots, CollateralHolding{
		Asset:  asset,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Decrease subtracts amount from the user's holding and swap-removes the slot
// when it reaches zero.
func (v *CollateralVault) Decrease(user crypto.Address, asset AssetID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset = NormalizeAssetID(asset)
	key := vaultKey(user)
	slots := v.holdings[key]
	idx := v.slotIndex(slots, asset)
	if idx < 0 {
		return ErrCollateralNotFound
	}
	held := slots[idx].Amount
	switch held.Cmp(amount) {
	case -1:
		return ErrInsufficientCollateral
	case 0:
		last := len(slots) - 1
		slots[idx] = slots[last]
		slots = slots[:last]
		if len(slots) == 0 {
			delete(v.holdings, key)
		} else {
			v.holdings[key] = slots
		}
	default:
		slots[idx].Amount = new(big.Int).Sub(held, amount)
	}
	return nil
}

// HoldingsOf returns a deep copy of the user's current holdings.
func (v *CollateralVault) HoldingsOf(user crypto.Address) []CollateralHolding {
	slots := v.holdings[vaultKey(user)]
	out := make([]CollateralHolding, 0, len(slots))
	for _, slot := range slots {
		out = append(out, CollateralHolding{
			Asset:  slot.Asset,
			Amount: new(big.Int).Set(slot.Amount),
		})
	}
	return out
}

// Amount returns the held amount of one asset; zero when not held.
func (v *CollateralVault) Amount(user crypto.Address, asset AssetID) *big.Int {
	slots := v.holdings[vaultKey(user)]
	idx := v.slotIndex(slots, NormalizeAssetID(asset))
	if idx < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(slots[idx].Amount)
}

// SlotCount returns the number of distinct assets the user holds.
func (v *CollateralVault) SlotCount(user crypto.Address) int {
	return len(v.holdings[vaultKey(user)])
}

package cdp

import (
	"math/big"
	"strings"

	"bondmint/crypto"
)

// AssetID identifies a collateral instrument (a bond series) by its security
// identifier, e.g. an OFZ SECID.
type AssetID string

// NormalizeAssetID canonicalises an asset identifier for map lookups.
func NormalizeAssetID(asset AssetID) AssetID {
	return AssetID(strings.ToUpper(strings.TrimSpace(string(asset))))
}

// CollateralHolding is one (asset, amount) slot inside a position's vault
// entry. Amounts are denominated in the asset's smallest unit.
type CollateralHolding struct {
	Asset  AssetID
	Amount *big.Int
}

// Position is a read snapshot of one account's debt and collateral holdings.
// Holding order is unspecified.
type Position struct {
	Owner    crypto.Address
	Debt     *big.Int
	Holdings []CollateralHolding
}

// PriceFeed is the oracle record for one collateral asset. MaturityAt == 0
// marks an unregistered asset; after maturity the oracle pins UnitPrice to the
// contractual redemption value.
type PriceFeed struct {
	UnitPrice   *big.Int
	LastUpdated int64
	MaturityAt  int64
}

// PriceSource resolves the last known oracle record for an asset. The engine
// treats the returned price as authoritative and performs no staleness check.
type PriceSource interface {
	GetPriceFeed(asset AssetID) (PriceFeed, bool)
}

// Custody moves collateral instruments between external holders and the
// engine's custody account. Both calls fail when balance or eligibility
// checks reject the movement; implementations wrap causes in
// ErrTransferRejected.
type Custody interface {
	TransferIn(from crypto.Address, asset AssetID, amount *big.Int) error
	TransferOut(to crypto.Address, asset AssetID, amount *big.Int) error
}

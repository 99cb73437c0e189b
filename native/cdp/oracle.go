package cdp

import "math/big"

// OracleClient is a thin read-only adapter around the external price oracle.
type OracleClient struct {
	source PriceSource
}

func NewOracleClient(source PriceSource) *OracleClient {
	return &OracleClient{source: source}
}

// Known reports whether the oracle has a record for the asset.
func (c *OracleClient) Known(asset AssetID) bool {
	if c == nil || c.source == nil {
		return false
	}
	feed, ok := c.source.GetPriceFeed(NormalizeAssetID(asset))
	return ok && feed.MaturityAt != 0
}

// Valuation prices amount units of the asset at the oracle's last known unit
// price: amount * unitPrice / PriceScale. The arithmetic is exact big-integer
// math, so the multiplication cannot overflow.
func (c *OracleClient) Valuation(asset AssetID, amount *big.Int) (*big.Int, error) {
	if c == nil || c.source == nil {
		return nil, errNilOracle
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	feed, ok := c.source.GetPriceFeed(NormalizeAssetID(asset))
	if !ok || feed.MaturityAt == 0 || feed.UnitPrice == nil {
		return nil, ErrUnknownCollateral
	}
	value := new(big.Int).Mul(amount, feed.UnitPrice)
	return value.Quo(value, PriceScale), nil
}

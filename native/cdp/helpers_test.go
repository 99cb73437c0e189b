package cdp

import (
	"errors"
	"fmt"
	"math/big"

	"bondmint/crypto"
)

func makeAddress(seed byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = seed
	return crypto.MustNewAddress(crypto.BMTPrefix, raw)
}

// mockPriceSource returns fixed feeds per asset.
type mockPriceSource struct {
	feeds map[AssetID]PriceFeed
}

func newMockPriceSource() *mockPriceSource {
	return &mockPriceSource{feeds: make(map[AssetID]PriceFeed)}
}

func (m *mockPriceSource) setPrice(asset AssetID, unitPrice *big.Int) {
	m.feeds[NormalizeAssetID(asset)] = PriceFeed{
		UnitPrice:   unitPrice,
		LastUpdated: 1_700_000_000,
		MaturityAt:  4_000_000_000,
	}
}

func (m *mockPriceSource) GetPriceFeed(asset AssetID) (PriceFeed, bool) {
	feed, ok := m.feeds[NormalizeAssetID(asset)]
	return feed, ok
}

// mockCustody tracks per-holder bond balances and supports failure injection.
type mockCustody struct {
	balances   map[string]*big.Int
	engineHeld map[AssetID]*big.Int
	failIn     bool
	failOut    bool
}

func newMockCustody() *mockCustody {
	return &mockCustody{
		balances:   make(map[string]*big.Int),
		engineHeld: make(map[AssetID]*big.Int),
	}
}

func custodyKey(holder crypto.Address, asset AssetID) string {
	return string(holder.Bytes()) + "/" + string(asset)
}

func (m *mockCustody) fund(holder crypto.Address, asset AssetID, amount *big.Int) {
	m.balances[custodyKey(holder, NormalizeAssetID(asset))] = new(big.Int).Set(amount)
}

func (m *mockCustody) balanceOf(holder crypto.Address, asset AssetID) *big.Int {
	balance := m.balances[custodyKey(holder, NormalizeAssetID(asset))]
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (m *mockCustody) held(asset AssetID) *big.Int {
	held := m.engineHeld[NormalizeAssetID(asset)]
	if held == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(held)
}

func (m *mockCustody) TransferIn(from crypto.Address, asset AssetID, amount *big.Int) error {
	if m.failIn {
		return errors.New("custody offline")
	}
	asset = NormalizeAssetID(asset)
	key := custodyKey(from, asset)
	balance := m.balances[key]
	if balance == nil || balance.Cmp(amount) < 0 {
		return fmt.Errorf("holder balance %s short of %s", balance, amount)
	}
	m.balances[key] = new(big.Int).Sub(balance, amount)
	held := m.engineHeld[asset]
	if held == nil {
		held = big.NewInt(0)
	}
	m.engineHeld[asset] = new(big.Int).Add(held, amount)
	return nil
}

func (m *mockCustody) TransferOut(to crypto.Address, asset AssetID, amount *big.Int) error {
	if m.failOut {
		return errors.New("custody offline")
	}
	asset = NormalizeAssetID(asset)
	held := m.engineHeld[asset]
	if held == nil || held.Cmp(amount) < 0 {
		return fmt.Errorf("engine holding %s short of %s", held, amount)
	}
	m.engineHeld[asset] = new(big.Int).Sub(held, amount)
	key := custodyKey(to, asset)
	balance := m.balances[key]
	if balance == nil {
		balance = big.NewInt(0)
	}
	m.balances[key] = new(big.Int).Add(balance, amount)
	return nil
}

type engineFixture struct {
	engine  *Engine
	source  *mockPriceSource
	custody *mockCustody
	vault   *CollateralVault
	ledger  *SupplyLedger
}

func newEngineFixture() *engineFixture {
	source := newMockPriceSource()
	custody := newMockCustody()
	vault := NewCollateralVault()
	ledger := NewSupplyLedger()
	accountant := NewAccountant(NewOracleClient(source))
	engine := NewEngine(vault, ledger, accountant, custody)
	return &engineFixture{
		engine:  engine,
		source:  source,
		custody: custody,
		vault:   vault,
		ledger:  ledger,
	}
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big int literal " + s)
	}
	return v
}

package bond

import (
	"errors"
	"math/big"
	"sync"

	"bondmint/core/events"
	"bondmint/crypto"
	"bondmint/native/cdp"
	nativecommon "bondmint/native/common"
	"bondmint/native/identity"
)

const moduleName = "bond"

var (
	// ErrSeriesExists is returned when a series identifier is registered twice.
	ErrSeriesExists = errors.New("bond: series already registered")
	// ErrUnknownSeries is returned for operations against an unregistered series.
	ErrUnknownSeries = errors.New("bond: unknown series")
	// ErrNotIssuer is returned when mint or burn is attempted by anyone but the
	// series issuer.
	ErrNotIssuer = errors.New("bond: caller is not the series issuer")
	// ErrNotWhitelisted is returned when a transfer party is missing identity
	// approval.
	ErrNotWhitelisted = errors.New("bond: party not whitelisted")
	// ErrInsufficientUnits is returned when a holder balance cannot cover a
	// burn or transfer.
	ErrInsufficientUnits = errors.New("bond: insufficient units")
	// ErrInvalidAmount is returned for nil, zero, or negative amounts.
	ErrInvalidAmount = errors.New("bond: amount must be positive")
)

// Series describes one issuable bond series.
type Series struct {
	Asset      cdp.AssetID
	Symbol     string
	Issuer     crypto.Address
	FaceValue  *big.Int
	MaturityAt int64
}

// Clone returns a defensive copy of the series record.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	clone := &Series{
		Asset:      s.Asset,
		Symbol:     s.Symbol,
		Issuer:     s.Issuer,
		MaturityAt: s.MaturityAt,
	}
	if s.FaceValue != nil {
		clone.FaceValue = new(big.Int).Set(s.FaceValue)
	}
	return clone
}

// Ledger tracks bond series and fungible per-series holder balances. Minting
// and burning are issuer-only; holder-to-holder transfers require both parties
// to be approved in the identity registry, with module custody accounts
// exempt so collateral can flow into the vault without whitelisting the vault
// itself.
type Ledger struct {
	mu       sync.RWMutex
	series   map[cdp.AssetID]*Series
	balances map[string]*big.Int
	exempt   map[string]struct{}
	identity identity.Checker
	emitter  events.Emitter
	pauses   nativecommon.PauseView
}

// NewLedger constructs an empty bond ledger over the given whitelist.
func NewLedger(checker identity.Checker) *Ledger {
	return &Ledger{
		series:   make(map[cdp.AssetID]*Series),
		balances: make(map[string]*big.Int),
		exempt:   make(map[string]struct{}),
		identity: checker,
		emitter:  events.NoopEmitter{},
	}
}

// SetEmitter wires the ledger to an event sink.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil || emitter == nil {
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// ExemptModuleAccount marks an address (an engine custody account) as exempt
// from whitelist checks on transfer.
func (l *Ledger) ExemptModuleAccount(addr crypto.Address) {
	if l == nil || addr.IsZero() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exempt[string(addr.Bytes())] = struct{}{}
}

func balanceKey(holder crypto.Address, asset cdp.AssetID) string {
	return string(holder.Bytes()) + "/" + string(asset)
}

// RegisterSeries installs a new series under the given issuer.
func (l *Ledger) RegisterSeries(issuer crypto.Address, asset cdp.AssetID, symbol string, faceValue *big.Int, maturityAt int64) error {
	if l == nil {
		return errors.New("bond: ledger not initialised")
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	asset = cdp.NormalizeAssetID(asset)
	if asset == "" {
		return errors.New("bond: asset required")
	}
	if issuer.IsZero() {
		return errors.New("bond: issuer required")
	}
	if faceValue == nil || faceValue.Sign() <= 0 {
		return errors.New("bond: face value must be positive")
	}
	if maturityAt <= 0 {
		return errors.New("bond: maturity required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.series[asset]; ok {
		return ErrSeriesExists
	}
	l.series[asset] = &Series{
		Asset:      asset,
		Symbol:     symbol,
		Issuer:     issuer,
		FaceValue:  new(big.Int).Set(faceValue),
		MaturityAt: maturityAt,
	}
	l.emitter.Emit(events.BondSeriesRegistered{Asset: string(asset), Symbol: symbol, Issuer: issuer})
	return nil
}

// Series returns a snapshot of the series record.
func (l *Ledger) Series(asset cdp.AssetID) (*Series, bool) {
	if l == nil {
		return nil, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	series, ok := l.series[cdp.NormalizeAssetID(asset)]
	if !ok {
		return nil, false
	}
	return series.Clone(), true
}

// Mint issues units of a series to a whitelisted holder. Issuer-only.
func (l *Ledger) Mint(caller, to crypto.Address, asset cdp.AssetID, amount *big.Int) error {
	if l == nil {
		return errors.New("bond: ledger not initialised")
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset = cdp.NormalizeAssetID(asset)
	l.mu.Lock()
	defer l.mu.Unlock()
	series, ok := l.series[asset]
	if !ok {
		return ErrUnknownSeries
	}
	if !series.Issuer.Equal(caller) {
		return ErrNotIssuer
	}
	if !l.approvedLocked(to) {
		return ErrNotWhitelisted
	}
	l.creditLocked(to, asset, amount)
	l.emitter.Emit(events.BondMinted{Asset: string(asset), To: to, Amount: amount})
	return nil
}

// Burn destroys units held by a redeeming holder. Issuer-only.
func (l *Ledger) Burn(caller, from crypto.Address, asset cdp.AssetID, amount *big.Int) error {
	if l == nil {
		return errors.New("bond: ledger not initialised")
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset = cdp.NormalizeAssetID(asset)
	l.mu.Lock()
	defer l.mu.Unlock()
	series, ok := l.series[asset]
	if !ok {
		return ErrUnknownSeries
	}
	if !series.Issuer.Equal(caller) {
		return ErrNotIssuer
	}
	if err := l.debitLocked(from, asset, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.BondBurned{Asset: string(asset), From: from, Amount: amount})
	return nil
}

// Transfer moves units between holders. Both parties must be whitelisted
// unless exempt as module accounts.
func (l *Ledger) Transfer(from, to crypto.Address, asset cdp.AssetID, amount *big.Int) error {
	if l == nil {
		return errors.New("bond: ledger not initialised")
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset = cdp.NormalizeAssetID(asset)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.series[asset]; !ok {
		return ErrUnknownSeries
	}
	if !l.approvedLocked(from) || !l.approvedLocked(to) {
		return ErrNotWhitelisted
	}
	if err := l.debitLocked(from, asset, amount); err != nil {
		return err
	}
	l.creditLocked(to, asset, amount)
	l.emitter.Emit(events.BondTransferred{Asset: string(asset), From: from, To: to, Amount: amount})
	return nil
}

// BalanceOf returns the holder's units of one series; zero when absent.
func (l *Ledger) BalanceOf(holder crypto.Address, asset cdp.AssetID) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance := l.balances[balanceKey(holder, cdp.NormalizeAssetID(asset))]
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (l *Ledger) approvedLocked(addr crypto.Address) bool {
	if _, ok := l.exempt[string(addr.Bytes())]; ok {
		return true
	}
	return l.identity != nil && l.identity.IsApproved(addr)
}

func (l *Ledger) creditLocked(holder crypto.Address, asset cdp.AssetID, amount *big.Int) {
	key := balanceKey(holder, asset)
	balance := l.balances[key]
	if balance == nil {
		balance = big.NewInt(0)
	}
	l.balances[key] = new(big.Int).Add(balance, amount)
}

func (l *Ledger) debitLocked(holder crypto.Address, asset cdp.AssetID, amount *big.Int) error {
	key := balanceKey(holder, asset)
	balance := l.balances[key]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientUnits
	}
	next := new(big.Int).Sub(balance, amount)
	if next.Sign() == 0 {
		delete(l.balances, key)
		return nil
	}
	l.balances[key] = next
	return nil
}

package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"bondmint/core/events"
	"bondmint/crypto"
	"bondmint/native/cdp"
)

var (
	// ErrNotAuthorized is returned when a proof was signed by a key outside the
	// registry's publisher set.
	ErrNotAuthorized = errors.New("oracle: publisher not authorized")
	// ErrUnknownBond is returned for price submissions against an unregistered series.
	ErrUnknownBond = errors.New("oracle: unknown bond series")
	// ErrBondExists is returned when a series identifier is registered twice.
	ErrBondExists = errors.New("oracle: bond series already registered")
	// ErrStaleProof is returned when a proof does not advance the feed's
	// timestamp or the publisher's nonce.
	ErrStaleProof = errors.New("oracle: stale price proof")
	// ErrInvalidProof covers malformed or wrongly domained proofs.
	ErrInvalidProof = errors.New("oracle: invalid price proof")
)

// FeedRecord is the registry's view of one bond series.
type FeedRecord struct {
	Symbol          string
	UnitPrice       *big.Int
	RedemptionValue *big.Int
	LastUpdated     int64
	MaturityAt      int64
}

// Clone returns a defensive copy of the record.
func (r *FeedRecord) Clone() *FeedRecord {
	if r == nil {
		return nil
	}
	clone := &FeedRecord{
		Symbol:      r.Symbol,
		LastUpdated: r.LastUpdated,
		MaturityAt:  r.MaturityAt,
	}
	if r.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(r.UnitPrice)
	}
	if r.RedemptionValue != nil {
		clone.RedemptionValue = new(big.Int).Set(r.RedemptionValue)
	}
	return clone
}

// Registry holds the live price feeds for registered bond series and the set
// of publisher keys allowed to update them. It implements the CDP engine's
// PriceSource: once a series passes maturity, its reported unit price is
// pinned to the contractual redemption value regardless of later submissions.
type Registry struct {
	mu         sync.RWMutex
	feeds      map[cdp.AssetID]*FeedRecord
	publishers map[string]struct{}
	nonces     map[string]uint64
	emitter    events.Emitter
	now        func() time.Time
}

// NewRegistry constructs an empty registry using wall-clock time.
func NewRegistry() *Registry {
	return &Registry{
		feeds:      make(map[cdp.AssetID]*FeedRecord),
		publishers: make(map[string]struct{}),
		nonces:     make(map[string]uint64),
		emitter:    events.NoopEmitter{},
		now:        time.Now,
	}
}

// SetEmitter wires the registry to an event sink.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil || emitter == nil {
		return
	}
	r.emitter = emitter
}

// SetClock overrides the registry's time source.
func (r *Registry) SetClock(now func() time.Time) {
	if r == nil || now == nil {
		return
	}
	r.now = now
}

// AuthorizePublisher admits a publisher key to the registry.
func (r *Registry) AuthorizePublisher(addr crypto.Address) {
	if r == nil || addr.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[string(addr.Bytes())] = struct{}{}
}

// RevokePublisher removes a publisher key; its pending nonce survives so a
// re-admitted key cannot replay old proofs.
func (r *Registry) RevokePublisher(addr crypto.Address) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.publishers, string(addr.Bytes()))
}

// IsPublisher reports whether the address may publish prices.
func (r *Registry) IsPublisher(addr crypto.Address) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.publishers[string(addr.Bytes())]
	return ok
}

// RegisterBond installs a series with its maturity metadata. The series has no
// usable price until a proof is published; maturityAt must be nonzero because
// a zero maturity is the engine's unregistered sentinel.
func (r *Registry) RegisterBond(asset cdp.AssetID, symbol string, redemptionValue *big.Int, maturityAt int64) error {
	if r == nil {
		return errors.New("oracle: registry not initialised")
	}
	asset = cdp.NormalizeAssetID(asset)
	if asset == "" {
		return errors.New("oracle: asset required")
	}
	if redemptionValue == nil || redemptionValue.Sign() <= 0 {
		return errors.New("oracle: redemption value must be positive")
	}
	if maturityAt <= 0 {
		return errors.New("oracle: maturity required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feeds[asset]; ok {
		return ErrBondExists
	}
	r.feeds[asset] = &FeedRecord{
		Symbol:          symbol,
		RedemptionValue: new(big.Int).Set(redemptionValue),
		MaturityAt:      maturityAt,
	}
	return nil
}

// PublishPrice verifies the proof's signature, publisher authorization, and
// freshness, then updates the series feed.
func (r *Registry) PublishPrice(proof *PriceProof) error {
	if r == nil {
		return errors.New("oracle: registry not initialised")
	}
	if proof == nil || proof.Domain != PriceProofDomainV1 {
		return ErrInvalidProof
	}
	publisher, err := proof.RecoverPublisher()
	if err != nil {
		return ErrInvalidProof
	}
	asset := cdp.NormalizeAssetID(proof.Asset)

	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(publisher.Bytes())
	if _, ok := r.publishers[key]; !ok {
		return ErrNotAuthorized
	}
	record, ok := r.feeds[asset]
	if !ok {
		return ErrUnknownBond
	}
	if proof.Timestamp <= record.LastUpdated || proof.Nonce <= r.nonces[key] {
		return ErrStaleProof
	}
	record.UnitPrice = new(big.Int).Set(proof.UnitPrice)
	record.LastUpdated = proof.Timestamp
	r.nonces[key] = proof.Nonce

	r.emitter.Emit(events.PriceUpdated{
		Asset:     string(asset),
		UnitPrice: record.UnitPrice,
		Publisher: publisher,
		Timestamp: proof.Timestamp,
	})
	return nil
}

// Feed returns a snapshot of the stored record, without maturity pinning.
func (r *Registry) Feed(asset cdp.AssetID) (*FeedRecord, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.feeds[cdp.NormalizeAssetID(asset)]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// GetPriceFeed implements cdp.PriceSource. Series without a published price
// yet read as unknown; matured series report the redemption value.
func (r *Registry) GetPriceFeed(asset cdp.AssetID) (cdp.PriceFeed, bool) {
	if r == nil {
		return cdp.PriceFeed{}, false
	}
	r.mu.RLock()
	record, ok := r.feeds[cdp.NormalizeAssetID(asset)]
	var snapshot *FeedRecord
	if ok {
		snapshot = record.Clone()
	}
	r.mu.RUnlock()
	if !ok || snapshot.UnitPrice == nil {
		return cdp.PriceFeed{}, false
	}
	feed := cdp.PriceFeed{
		UnitPrice:   snapshot.UnitPrice,
		LastUpdated: snapshot.LastUpdated,
		MaturityAt:  snapshot.MaturityAt,
	}
	if r.now().Unix() >= snapshot.MaturityAt {
		feed.UnitPrice = snapshot.RedemptionValue
	}
	return feed, true
}

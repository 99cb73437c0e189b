package events

import (
	"math/big"

	"bondmint/crypto"
)

const (
	// TypeBondSeriesRegistered is emitted when a new bond series becomes issuable.
	TypeBondSeriesRegistered = "bond.series.registered"
	// TypeBondMinted is emitted when the issuer mints bond units to a holder.
	TypeBondMinted = "bond.minted"
	// TypeBondBurned is emitted when bond units are redeemed and destroyed.
	TypeBondBurned = "bond.burned"
	// TypeBondTransferred is emitted for holder-to-holder bond movements.
	TypeBondTransferred = "bond.transferred"
	// TypePriceUpdated is emitted when the oracle registry accepts a price proof.
	TypePriceUpdated = "oracle.price.updated"
)

type BondSeriesRegistered struct {
	Asset  string
	Symbol string
	Issuer crypto.Address
}

func (BondSeriesRegistered) EventType() string { return TypeBondSeriesRegistered }

func (e BondSeriesRegistered) Event() *Event {
	return &Event{Type: TypeBondSeriesRegistered, Attributes: map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"symbol": normalizeAsset(e.Symbol),
		"issuer": e.Issuer.String(),
	}}
}

type BondMinted struct {
	Asset  string
	To     crypto.Address
	Amount *big.Int
}

func (BondMinted) EventType() string { return TypeBondMinted }

func (e BondMinted) Event() *Event {
	return &Event{Type: TypeBondMinted, Attributes: map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}}
}

type BondBurned struct {
	Asset  string
	From   crypto.Address
	Amount *big.Int
}

func (BondBurned) EventType() string { return TypeBondBurned }

func (e BondBurned) Event() *Event {
	return &Event{Type: TypeBondBurned, Attributes: map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"from":   e.From.String(),
		"amount": formatAmount(e.Amount),
	}}
}

type BondTransferred struct {
	Asset  string
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (BondTransferred) EventType() string { return TypeBondTransferred }

func (e BondTransferred) Event() *Event {
	return &Event{Type: TypeBondTransferred, Attributes: map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}}
}

type PriceUpdated struct {
	Asset     string
	UnitPrice *big.Int
	Publisher crypto.Address
	Timestamp int64
}

func (PriceUpdated) EventType() string { return TypePriceUpdated }

func (e PriceUpdated) Event() *Event {
	return &Event{Type: TypePriceUpdated, Attributes: map[string]string{
		"asset":     normalizeAsset(e.Asset),
		"unitPrice": formatAmount(e.UnitPrice),
		"publisher": e.Publisher.String(),
		"timestamp": formatInt(e.Timestamp),
	}}
}

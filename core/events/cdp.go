package events

import (
	"math/big"
	"strconv"
	"strings"

	"bondmint/crypto"
)

const (
	// TypeCollateralDeposited is emitted when bond collateral enters the engine vault.
	TypeCollateralDeposited = "cdp.collateral.deposited"
	// TypeCollateralWithdrawn is emitted when bond collateral is returned to its owner.
	TypeCollateralWithdrawn = "cdp.collateral.withdrawn"
	// TypePositionIncreased is emitted when synthetic currency is minted against a position.
	TypePositionIncreased = "cdp.position.increased"
	// TypePositionDecreased is emitted when debt is burned off a position.
	TypePositionDecreased = "cdp.position.decreased"
	// TypePositionLiquidated is emitted when a third party claims an undercollateralized holding.
	TypePositionLiquidated = "cdp.position.liquidated"
)

type CollateralDeposited struct {
	User   crypto.Address
	Asset  string
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *Event {
	return &Event{Type: TypeCollateralDeposited, Attributes: map[string]string{
		"user":   e.User.String(),
		"asset":  normalizeAsset(e.Asset),
		"amount": formatAmount(e.Amount),
	}}
}

type CollateralWithdrawn struct {
	User   crypto.Address
	Asset  string
	Amount *big.Int
}

func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

func (e CollateralWithdrawn) Event() *Event {
	return &Event{Type: TypeCollateralWithdrawn, Attributes: map[string]string{
		"user":   e.User.String(),
		"asset":  normalizeAsset(e.Asset),
		"amount": formatAmount(e.Amount),
	}}
}

type PositionIncreased struct {
	User   crypto.Address
	Amount *big.Int
}

func (PositionIncreased) EventType() string { return TypePositionIncreased }

func (e PositionIncreased) Event() *Event {
	return &Event{Type: TypePositionIncreased, Attributes: map[string]string{
		"user":   e.User.String(),
		"amount": formatAmount(e.Amount),
	}}
}

type PositionDecreased struct {
	User   crypto.Address
	Amount *big.Int
}

func (PositionDecreased) EventType() string { return TypePositionDecreased }

func (e PositionDecreased) Event() *Event {
	return &Event{Type: TypePositionDecreased, Attributes: map[string]string{
		"user":   e.User.String(),
		"amount": formatAmount(e.Amount),
	}}
}

type PositionLiquidated struct {
	User             crypto.Address
	Liquidator       crypto.Address
	Asset            string
	CollateralAmount *big.Int
	DebtCovered      *big.Int
}

func (PositionLiquidated) EventType() string { return TypePositionLiquidated }

func (e PositionLiquidated) Event() *Event {
	return &Event{Type: TypePositionLiquidated, Attributes: map[string]string{
		"user":             e.User.String(),
		"liquidator":       e.Liquidator.String(),
		"asset":            normalizeAsset(e.Asset),
		"collateralAmount": formatAmount(e.CollateralAmount),
		"debtCovered":      formatAmount(e.DebtCovered),
	}}
}

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

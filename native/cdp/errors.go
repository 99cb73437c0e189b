package cdp

import "errors"

// Error kinds surfaced by the engine and its sub-ledgers. Callers receive the
// specific kind so off-chain tooling can tell "fix your input" failures from
// "wait for the price to move" conditions.
var (
	// ErrInvalidAmount rejects nil, zero, or negative amounts on any operation.
	ErrInvalidAmount = errors.New("cdp: amount must be positive")
	// ErrUnknownCollateral signals the oracle has no record for the asset.
	ErrUnknownCollateral = errors.New("cdp: collateral asset unknown to oracle")
	// ErrInvalidCollateral rejects deposits of assets the oracle does not recognize.
	ErrInvalidCollateral = errors.New("cdp: invalid collateral asset")
	// ErrTooManyCollateralTokens rejects deposits that would exceed the holding-set bound.
	ErrTooManyCollateralTokens = errors.New("cdp: too many collateral tokens")
	// ErrCollateralNotFound signals the referenced holding does not exist.
	ErrCollateralNotFound = errors.New("cdp: collateral not found")
	// ErrInsufficientCollateral signals a withdrawal exceeds the held amount or
	// would leave the position below the collateralization floor.
	ErrInsufficientCollateral = errors.New("cdp: insufficient collateral")
	// ErrInsufficientBalance signals a synthetic-currency burn exceeds the
	// account balance.
	ErrInsufficientBalance = errors.New("cdp: insufficient balance")
	// ErrPositionNotLiquidatable signals the position is healthy or has no debt.
	ErrPositionNotLiquidatable = errors.New("cdp: position not liquidatable")
	// ErrTransferRejected wraps custody sub-call failures.
	ErrTransferRejected = errors.New("cdp: custody transfer rejected")
	// ErrReentrantCall rejects a nested state-mutating call while an operation
	// is already in flight.
	ErrReentrantCall = errors.New("cdp: reentrant engine call")

	errNilOracle  = errors.New("cdp: oracle source not configured")
	errNilCustody = errors.New("cdp: custody not configured")
)

package cdp

import (
	"errors"
	"fmt"
	"math/big"

	"bondmint/core/events"
	"bondmint/crypto"
	nativecommon "bondmint/native/common"
)

// Engine orchestrates the vault, supply ledger, and accountant into the public
// CDP operations, enforcing solvency invariants atomically. Callers are
// serialized by the host; the engine itself only guards against reentrancy
// through external custody calls.
type Engine struct {
	vault       *CollateralVault
	ledger      *SupplyLedger
	accountant  *Accountant
	custody     Custody
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	penaltySink crypto.Address
	debts       map[string]*big.Int
	entered     bool
}

// NewEngine constructs an engine over its sub-ledgers. The emitter defaults to
// a no-op; the penalty sink defaults to unset, in which case the liquidation
// penalty simply stays in the engine's custody account.
func NewEngine(vault *CollateralVault, ledger *SupplyLedger, accountant *Accountant, custody Custody) *Engine {
	return &Engine{
		vault:      vault,
		ledger:     ledger,
		accountant: accountant,
		custody:    custody,
		emitter:    events.NoopEmitter{},
		debts:      make(map[string]*big.Int),
	}
}

// SetEmitter wires the engine to an event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil || emitter == nil {
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetPenaltySink routes the liquidation penalty share of seized collateral to
// the given address instead of leaving it with the engine.
func (e *Engine) SetPenaltySink(sink crypto.Address) {
	if e == nil {
		return
	}
	e.penaltySink = sink
}

// Ledger exposes the synthetic-currency ledger for read access.
func (e *Engine) Ledger() *SupplyLedger {
	if e == nil {
		return nil
	}
	return e.ledger
}

func (e *Engine) debtOf(user crypto.Address) *big.Int {
	debt := e.debts[string(user.Bytes())]
	if debt == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(debt)
}

func (e *Engine) setDebt(user crypto.Address, debt *big.Int) {
	key := string(user.Bytes())
	if debt == nil || debt.Sign() == 0 {
		delete(e.debts, key)
		return
	}
	e.debts[key] = new(big.Int).Set(debt)
}

// journal collects undo steps for staged effects so a failing sub-call can
// revert the whole operation. Undo steps run in reverse order; they reverse
// effects that were just applied, so they cannot legitimately fail.
type journal struct {
	undos []func() error
}

func (j *journal) record(undo func() error) {
	j.undos = append(j.undos, undo)
}

func (j *journal) revert() {
	for i := len(j.undos) - 1; i >= 0; i-- {
		_ = j.undos[i]()
	}
}

func (e *Engine) begin() error {
	if e == nil || e.vault == nil || e.ledger == nil || e.accountant == nil {
		return errors.New("cdp engine: not configured")
	}
	if e.custody == nil {
		return errNilCustody
	}
	if e.entered {
		return ErrReentrantCall
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.entered = true
	return nil
}

func (e *Engine) end() { e.entered = false }

// Deposit moves collateral from the caller into the vault and auto-mints
// synthetic currency worth MaxLTV of the added value against the position.
// The minted amount is returned.
func (e *Engine) Deposit(caller crypto.Address, asset AssetID, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	asset = NormalizeAssetID(asset)

	valueAdded, err := e.accountant.Oracle().Valuation(asset, amount)
	if err != nil {
		if errors.Is(err, ErrUnknownCollateral) {
			return nil, ErrInvalidCollateral
		}
		return nil, err
	}
	if !e.vault.CanIncrease(caller, asset) {
		return nil, ErrTooManyCollateralTokens
	}

	var j journal
	if err := e.custody.TransferIn(caller, asset, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}
	j.record(func() error { return e.custody.TransferOut(caller, asset, amount) })

	if err := e.vault.Increase(caller, asset, amount); err != nil {
		j.revert()
		return nil, err
	}
	j.record(func() error { return e.vault.Decrease(caller, asset, amount) })

	mintAmount := new(big.Int).Mul(valueAdded, big.NewInt(MaxLTV))
	mintAmount.Quo(mintAmount, basisPoints)

	if mintAmount.Sign() > 0 {
		if err := e.ledger.Mint(caller, mintAmount); err != nil {
			j.revert()
			return nil, err
		}
		e.setDebt(caller, new(big.Int).Add(e.debtOf(caller), mintAmount))
	}

	e.emitter.Emit(events.CollateralDeposited{User: caller, Asset: string(asset), Amount: amount})
	if mintAmount.Sign() > 0 {
		e.emitter.Emit(events.PositionIncreased{User: caller, Amount: mintAmount})
	}
	return mintAmount, nil
}

// Decrease withdraws collateral from the caller's position, burning the
// proportional share of debt. The burned amount is returned.
func (e *Engine) Decrease(caller crypto.Address, asset AssetID, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	asset = NormalizeAssetID(asset)

	debt := e.debtOf(caller)
	holdings := e.vault.HoldingsOf(caller)
	preview, err := e.accountant.PreviewBurn(debt, holdings, asset, amount)
	if err != nil {
		return nil, err
	}
	if !preview.Eligible {
		return nil, ErrInsufficientCollateral
	}
	burnAmount := preview.BurnAmount
	if e.ledger.BalanceOf(caller).Cmp(burnAmount) < 0 {
		return nil, ErrInsufficientBalance
	}

	var j journal
	if burnAmount.Sign() > 0 {
		if err := e.ledger.Burn(caller, burnAmount); err != nil {
			return nil, err
		}
		j.record(func() error { return e.ledger.Mint(caller, burnAmount) })
		previousDebt := debt
		e.setDebt(caller, new(big.Int).Sub(debt, burnAmount))
		j.record(func() error { e.setDebt(caller, previousDebt); return nil })
	}

	if err := e.vault.Decrease(caller, asset, amount); err != nil {
		j.revert()
		return nil, err
	}
	j.record(func() error { return e.vault.Increase(caller, asset, amount) })

	if err := e.custody.TransferOut(caller, asset, amount); err != nil {
		j.revert()
		return nil, fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}

	e.emitter.Emit(events.CollateralWithdrawn{User: caller, Asset: string(asset), Amount: amount})
	if burnAmount.Sign() > 0 {
		e.emitter.Emit(events.PositionDecreased{User: caller, Amount: burnAmount})
	}
	return burnAmount, nil
}

// Liquidate lets a third party fully claim one collateral holding of an
// undercollateralized position. The liquidator covers the holding's
// proportional share of the debt from their own synthetic-currency balance and
// receives the holding minus the protocol penalty. The seized reward and the
// debt covered are returned.
func (e *Engine) Liquidate(liquidator, user crypto.Address, asset AssetID) (*big.Int, *big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, nil, err
	}
	defer e.end()

	asset = NormalizeAssetID(asset)
	collateralAmount := e.vault.Amount(user, asset)
	if collateralAmount.Sign() == 0 {
		return nil, nil, ErrCollateralNotFound
	}

	debt := e.debtOf(user)
	holdings := e.vault.HoldingsOf(user)
	health, err := e.accountant.HealthFactor(debt, holdings)
	if err != nil {
		return nil, nil, err
	}
	if debt.Sign() == 0 || health.Cmp(big.NewInt(LiquidationThreshold)) >= 0 {
		return nil, nil, ErrPositionNotLiquidatable
	}

	totalValue, err := e.accountant.TotalCollateralValue(holdings)
	if err != nil {
		return nil, nil, err
	}
	collateralValue, err := e.accountant.Oracle().Valuation(asset, collateralAmount)
	if err != nil {
		return nil, nil, err
	}

	debtToCover := big.NewInt(0)
	if totalValue.Sign() > 0 {
		debtToCover = new(big.Int).Mul(collateralValue, debt)
		debtToCover.Quo(debtToCover, totalValue)
	}
	if e.ledger.BalanceOf(liquidator).Cmp(debtToCover) < 0 {
		return nil, nil, ErrInsufficientBalance
	}

	penaltyAmount, liquidatorReward := e.accountant.LiquidationSplit(collateralAmount)

	var j journal
	if debtToCover.Sign() > 0 {
		if err := e.ledger.Burn(liquidator, debtToCover); err != nil {
			return nil, nil, err
		}
		j.record(func() error { return e.ledger.Mint(liquidator, debtToCover) })
		previousDebt := debt
		e.setDebt(user, new(big.Int).Sub(debt, debtToCover))
		j.record(func() error { e.setDebt(user, previousDebt); return nil })
	}

	// A liquidation always fully claims the targeted collateral slot.
	if err := e.vault.Decrease(user, asset, collateralAmount); err != nil {
		j.revert()
		return nil, nil, err
	}
	j.record(func() error { return e.vault.Increase(user, asset, collateralAmount) })

	if err := e.custody.TransferOut(liquidator, asset, liquidatorReward); err != nil {
		j.revert()
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}
	j.record(func() error { return e.custody.TransferIn(liquidator, asset, liquidatorReward) })

	if penaltyAmount.Sign() > 0 && !e.penaltySink.IsZero() {
		if err := e.custody.TransferOut(e.penaltySink, asset, penaltyAmount); err != nil {
			j.revert()
			return nil, nil, fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	}

	e.emitter.Emit(events.PositionLiquidated{
		User:             user,
		Liquidator:       liquidator,
		Asset:            string(asset),
		CollateralAmount: collateralAmount,
		DebtCovered:      debtToCover,
	})
	return liquidatorReward, debtToCover, nil
}

// --- read-only projections ---

// Position returns a snapshot of the user's debt and holdings.
func (e *Engine) Position(user crypto.Address) Position {
	return Position{
		Owner:    user,
		Debt:     e.debtOf(user),
		Holdings: e.vault.HoldingsOf(user),
	}
}

// PositionHealth returns the user's health factor in basis points; zero-debt
// positions report the HealthInfinite sentinel.
func (e *Engine) PositionHealth(user crypto.Address) *big.Int {
	health, err := e.accountant.HealthFactor(e.debtOf(user), e.vault.HoldingsOf(user))
	if err != nil {
		return big.NewInt(0)
	}
	return health
}

// TotalCollateralValue returns the oracle valuation of the user's holdings;
// unknown users read as zero.
func (e *Engine) TotalCollateralValue(user crypto.Address) *big.Int {
	total, err := e.accountant.TotalCollateralValue(e.vault.HoldingsOf(user))
	if err != nil {
		return big.NewInt(0)
	}
	return total
}

// UserCollaterals returns the user's holding snapshot in unspecified order.
func (e *Engine) UserCollaterals(user crypto.Address) []CollateralHolding {
	return e.vault.HoldingsOf(user)
}

// UserCollateralAmount returns the held amount of one asset; zero when absent.
func (e *Engine) UserCollateralAmount(user crypto.Address, asset AssetID) *big.Int {
	return e.vault.Amount(user, asset)
}

// UserDebt returns the user's outstanding synthetic-currency liability.
func (e *Engine) UserDebt(user crypto.Address) *big.Int {
	return e.debtOf(user)
}

// PreviewDecrease reports the burn a Decrease of the given amount would
// require, without side effects.
func (e *Engine) PreviewDecrease(user crypto.Address, asset AssetID, amount *big.Int) (BurnPreview, error) {
	return e.accountant.PreviewBurn(e.debtOf(user), e.vault.HoldingsOf(user), NormalizeAssetID(asset), amount)
}

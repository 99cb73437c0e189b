package cdp

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"bondmint/core/events"
	"bondmint/crypto"
)

func TestDepositMintsAtMaxLTV(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)

	fix.source.setPrice("SU26240", big.NewInt(1_000_000_000))
	amount := new(big.Int).Mul(big.NewInt(10_000), PriceScale)
	fix.custody.fund(alice, "SU26240", amount)

	minted, err := fix.engine.Deposit(alice, "SU26240", amount)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// valueAdded = 1e13, mint = 80% = 8e12
	if minted.Cmp(mustBig("8000000000000")) != 0 {
		t.Fatalf("unexpected mint amount: %s", minted)
	}
	if got := fix.ledger.BalanceOf(alice); got.Cmp(minted) != 0 {
		t.Fatalf("minted balance mismatch: %s", got)
	}
	if got := fix.engine.UserDebt(alice); got.Cmp(minted) != 0 {
		t.Fatalf("debt mismatch: %s", got)
	}
	if got := fix.custody.balanceOf(alice, "SU26240"); got.Sign() != 0 {
		t.Fatalf("custody should hold the deposit, holder kept %s", got)
	}
	if got := fix.custody.held("SU26240"); got.Cmp(amount) != 0 {
		t.Fatalf("engine custody mismatch: %s", got)
	}
}

func TestDepositUnknownAsset(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	fix.custody.fund(alice, "SU26240", big.NewInt(100))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(100)); !errors.Is(err, ErrInvalidCollateral) {
		t.Fatalf("expected ErrInvalidCollateral, got %v", err)
	}
}

func TestDepositCardinalityBound(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)

	for i := 0; i < MaxCollateralTokens; i++ {
		asset := AssetID(fmt.Sprintf("SU262%02d", i))
		fix.source.setPrice(asset, unitPrice(1))
		fix.custody.fund(alice, asset, big.NewInt(10))
		if _, err := fix.engine.Deposit(alice, asset, big.NewInt(10)); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	fix.source.setPrice("SU26999", unitPrice(1))
	fix.custody.fund(alice, "SU26999", big.NewInt(10))
	if _, err := fix.engine.Deposit(alice, "SU26999", big.NewInt(10)); !errors.Is(err, ErrTooManyCollateralTokens) {
		t.Fatalf("expected ErrTooManyCollateralTokens, got %v", err)
	}
	// Deposits into an already-held asset never fail for cardinality.
	fix.custody.fund(alice, "SU26200", big.NewInt(10))
	if _, err := fix.engine.Deposit(alice, "SU26200", big.NewInt(10)); err != nil {
		t.Fatalf("top-up deposit: %v", err)
	}
}

func TestDepositTransferRejectedLeavesNoState(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	fix.source.setPrice("SU26240", unitPrice(1))
	// No custody funding: transferIn must reject.
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(100)); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if fix.vault.SlotCount(alice) != 0 {
		t.Fatal("failed deposit must not create holdings")
	}
	if fix.ledger.TotalSupply().Sign() != 0 {
		t.Fatal("failed deposit must not mint")
	}
	if fix.engine.UserDebt(alice).Sign() != 0 {
		t.Fatal("failed deposit must not create debt")
	}
}

func TestFullRoundTrip(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)

	fix.source.setPrice("SU26240", big.NewInt(1_000_000_000))
	amount := new(big.Int).Mul(big.NewInt(10_000), PriceScale)
	fix.custody.fund(alice, "SU26240", amount)

	minted, err := fix.engine.Deposit(alice, "SU26240", amount)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	burned, err := fix.engine.Decrease(alice, "SU26240", amount)
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}

	dust := new(big.Int).Sub(minted, burned)
	if dust.Sign() < 0 || dust.Cmp(big.NewInt(1)) > 0 {
		t.Fatalf("round-trip dust exceeds 1 unit: %s", dust)
	}
	if got := fix.engine.UserDebt(alice); got.Cmp(big.NewInt(1)) > 0 {
		t.Fatalf("residual debt exceeds 1 unit: %s", got)
	}
	if got := fix.custody.balanceOf(alice, "SU26240"); got.Cmp(amount) != 0 {
		t.Fatalf("full amount should return to depositor, got %s", got)
	}
	if fix.vault.SlotCount(alice) != 0 {
		t.Fatal("fully withdrawn slot should be removed")
	}
}

func TestProportionalBurnHoldsHealthSteady(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)

	fix.source.setPrice("SU26240", unitPrice(1))
	fix.source.setPrice("SU26241", unitPrice(2))
	fix.custody.fund(alice, "SU26240", big.NewInt(10_000))
	fix.custody.fund(alice, "SU26241", big.NewInt(5_000))

	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Deposit(alice, "SU26241", big.NewInt(5_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	healthBefore := fix.engine.PositionHealth(alice)
	debtBefore := fix.engine.UserDebt(alice)

	// Withdraw a quarter of the SU26240 value.
	burned, err := fix.engine.Decrease(alice, "SU26240", big.NewInt(2_500))
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}

	// Removed value is 2500 of 20000 total (12.5%); burn must match the
	// fraction of debt to within one unit of rounding.
	expected := new(big.Int).Mul(debtBefore, big.NewInt(2_500))
	expected.Quo(expected, big.NewInt(20_000))
	diff := new(big.Int).Sub(expected, burned)
	if diff.CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("burn %s deviates from proportional %s", burned, expected)
	}

	healthAfter := fix.engine.PositionHealth(alice)
	drift := new(big.Int).Sub(healthAfter, healthBefore)
	if drift.CmpAbs(big.NewInt(2)) > 0 {
		t.Fatalf("health factor drifted: %s -> %s", healthBefore, healthAfter)
	}
}

func TestDecreaseExceedingHolding(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	fix.source.setPrice("SU26240", unitPrice(1))
	fix.custody.fund(alice, "SU26240", big.NewInt(100))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Requesting more than held is a rejection, not a clamp.
	if _, err := fix.engine.Decrease(alice, "SU26240", big.NewInt(101)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	if got := fix.engine.UserCollateralAmount(alice, "SU26240"); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("holding must be untouched, got %s", got)
	}
}

func TestDecreaseRequiresLedgerBalance(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	bob := makeAddress(0x02)
	fix.source.setPrice("SU26240", unitPrice(1))
	fix.custody.fund(alice, "SU26240", big.NewInt(10_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Alice gives away her minted balance and can no longer cover the burn.
	if err := fix.ledger.Transfer(alice, bob, fix.ledger.BalanceOf(alice)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := fix.engine.Decrease(alice, "SU26240", big.NewInt(5_000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestPreviewAgreesWithDecrease(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	fix.source.setPrice("SU26240", unitPrice(1))
	fix.source.setPrice("SU26241", unitPrice(5))
	fix.custody.fund(alice, "SU26240", big.NewInt(9_000))
	fix.custody.fund(alice, "SU26241", big.NewInt(2_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(9_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Deposit(alice, "SU26241", big.NewInt(2_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	preview, err := fix.engine.PreviewDecrease(alice, "SU26241", big.NewInt(700))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.Eligible {
		t.Fatalf("expected eligible preview: %+v", preview)
	}
	burned, err := fix.engine.Decrease(alice, "SU26241", big.NewInt(700))
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if burned.Cmp(preview.BurnAmount) != 0 {
		t.Fatalf("decrease burned %s, preview said %s", burned, preview.BurnAmount)
	}
}

func TestDecreaseTransferFailureRollsBack(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	fix.source.setPrice("SU26240", unitPrice(1))
	fix.custody.fund(alice, "SU26240", big.NewInt(1_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	debtBefore := fix.engine.UserDebt(alice)
	balanceBefore := fix.ledger.BalanceOf(alice)

	fix.custody.failOut = true
	if _, err := fix.engine.Decrease(alice, "SU26240", big.NewInt(500)); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	fix.custody.failOut = false

	if got := fix.engine.UserDebt(alice); got.Cmp(debtBefore) != 0 {
		t.Fatalf("debt changed on failed decrease: %s != %s", got, debtBefore)
	}
	if got := fix.ledger.BalanceOf(alice); got.Cmp(balanceBefore) != 0 {
		t.Fatalf("balance changed on failed decrease: %s != %s", got, balanceBefore)
	}
	if got := fix.engine.UserCollateralAmount(alice, "SU26240"); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("holding changed on failed decrease: %s", got)
	}
}

func TestLiquidateGatedOnHealth(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	fix.source.setPrice("SU26240", unitPrice(2))
	fix.custody.fund(alice, "SU26240", big.NewInt(10_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Health is 12500 >= 12000: not liquidatable.
	if _, _, err := fix.engine.Liquidate(liquidator, alice, "SU26240"); !errors.Is(err, ErrPositionNotLiquidatable) {
		t.Fatalf("expected ErrPositionNotLiquidatable, got %v", err)
	}

	// Price drops 10%: value 18000 against debt 16000 -> health 11250.
	price := new(big.Int).Mul(big.NewInt(18), PriceScale)
	price.Quo(price, big.NewInt(10))
	fix.source.setPrice("SU26240", price)

	fix.source.setPrice("SU26300", unitPrice(2))
	fix.custody.fund(liquidator, "SU26300", big.NewInt(20_000))
	if _, err := fix.engine.Deposit(liquidator, "SU26300", big.NewInt(20_000)); err != nil {
		t.Fatalf("liquidator deposit: %v", err)
	}

	reward, covered, err := fix.engine.Liquidate(liquidator, alice, "SU26240")
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// Single-asset position: debtToCover is the full debt.
	if covered.Cmp(big.NewInt(16_000)) != 0 {
		t.Fatalf("unexpected debt covered: %s", covered)
	}
	// 10% penalty on 10_000 collateral units.
	if reward.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("unexpected reward: %s", reward)
	}
	if got := fix.custody.balanceOf(liquidator, "SU26240"); got.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("liquidator received %s, want 9000", got)
	}
	// Penalty stays with the engine when no sink is configured.
	if got := fix.custody.held("SU26240"); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("engine should retain the penalty, holds %s", got)
	}
	if got := fix.engine.UserCollateralAmount(alice, "SU26240"); got.Sign() != 0 {
		t.Fatalf("liquidated slot should be zeroed, got %s", got)
	}
	if got := fix.engine.UserDebt(alice); got.Sign() != 0 {
		t.Fatalf("debt should be fully covered, got %s", got)
	}
}

func TestLiquidatePenaltySinkRouting(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	liquidator := makeAddress(0x02)
	sink := makeAddress(0x03)
	fix.engine.SetPenaltySink(sink)

	fix.source.setPrice("SU26240", unitPrice(2))
	fix.custody.fund(alice, "SU26240", big.NewInt(10_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	fix.source.setPrice("SU26240", unitPrice(1))

	fix.source.setPrice("SU26300", unitPrice(2))
	fix.custody.fund(liquidator, "SU26300", big.NewInt(20_000))
	if _, err := fix.engine.Deposit(liquidator, "SU26300", big.NewInt(20_000)); err != nil {
		t.Fatalf("liquidator deposit: %v", err)
	}

	if _, _, err := fix.engine.Liquidate(liquidator, alice, "SU26240"); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if got := fix.custody.balanceOf(sink, "SU26240"); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("sink should receive the penalty, got %s", got)
	}
}

func TestLiquidateUnknownHolding(t *testing.T) {
	fix := newEngineFixture()
	if _, _, err := fix.engine.Liquidate(makeAddress(0x02), makeAddress(0x01), "SU26240"); !errors.Is(err, ErrCollateralNotFound) {
		t.Fatalf("expected ErrCollateralNotFound, got %v", err)
	}
}

func TestLiquidateRequiresLiquidatorBalance(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	fix.source.setPrice("SU26240", unitPrice(2))
	fix.custody.fund(alice, "SU26240", big.NewInt(10_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	fix.source.setPrice("SU26240", unitPrice(1))

	// Liquidator holds no synthetic currency.
	if _, _, err := fix.engine.Liquidate(liquidator, alice, "SU26240"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLiquidatePartialPosition(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	fix.source.setPrice("SU26240", unitPrice(2))
	fix.source.setPrice("SU26241", unitPrice(2))
	fix.custody.fund(alice, "SU26240", big.NewInt(5_000))
	fix.custody.fund(alice, "SU26241", big.NewInt(5_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(5_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Deposit(alice, "SU26241", big.NewInt(5_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	debt := fix.engine.UserDebt(alice) // 16_000

	// Both assets halve: total value 10_000 against debt 16_000.
	fix.source.setPrice("SU26240", unitPrice(1))
	fix.source.setPrice("SU26241", unitPrice(1))

	fix.source.setPrice("SU26300", unitPrice(2))
	fix.custody.fund(liquidator, "SU26300", big.NewInt(20_000))
	if _, err := fix.engine.Deposit(liquidator, "SU26300", big.NewInt(20_000)); err != nil {
		t.Fatalf("liquidator deposit: %v", err)
	}

	_, covered, err := fix.engine.Liquidate(liquidator, alice, "SU26240")
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// The targeted slot is half the collateral value, so half the debt is covered.
	expected := new(big.Int).Quo(debt, big.NewInt(2))
	if covered.Cmp(expected) != 0 {
		t.Fatalf("unexpected debt covered: %s, want %s", covered, expected)
	}
	if got := fix.engine.UserCollateralAmount(alice, "SU26240"); got.Sign() != 0 {
		t.Fatal("targeted slot must be fully claimed")
	}
	if got := fix.engine.UserCollateralAmount(alice, "SU26241"); got.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("untargeted slot must survive, got %s", got)
	}
	if got := fix.engine.UserDebt(alice); got.Cmp(new(big.Int).Sub(debt, covered)) != 0 {
		t.Fatalf("unexpected residual debt: %s", got)
	}
}

func TestEngineEmitsEvents(t *testing.T) {
	fix := newEngineFixture()
	recorder := &events.Recorder{}
	fix.engine.SetEmitter(recorder)
	alice := makeAddress(0x01)

	fix.source.setPrice("SU26240", unitPrice(1))
	fix.custody.fund(alice, "SU26240", big.NewInt(1_000))
	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Decrease(alice, "SU26240", big.NewInt(500)); err != nil {
		t.Fatalf("decrease: %v", err)
	}

	types := make([]string, 0)
	for _, ev := range recorder.Events() {
		types = append(types, ev.Type)
	}
	want := []string{
		events.TypeCollateralDeposited,
		events.TypePositionIncreased,
		events.TypeCollateralWithdrawn,
		events.TypePositionDecreased,
	}
	if len(types) != len(want) {
		t.Fatalf("unexpected event sequence: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, types[i], want[i])
		}
	}
}

func TestSupplyMatchesAggregateDebt(t *testing.T) {
	fix := newEngineFixture()
	alice := makeAddress(0x01)
	bob := makeAddress(0x02)

	fix.source.setPrice("SU26240", unitPrice(1))
	fix.source.setPrice("SU26241", unitPrice(3))
	fix.custody.fund(alice, "SU26240", big.NewInt(7_000))
	fix.custody.fund(bob, "SU26241", big.NewInt(4_000))

	if _, err := fix.engine.Deposit(alice, "SU26240", big.NewInt(7_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Deposit(bob, "SU26241", big.NewInt(4_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fix.engine.Decrease(alice, "SU26240", big.NewInt(3_000)); err != nil {
		t.Fatalf("decrease: %v", err)
	}

	aggregate := new(big.Int).Add(fix.engine.UserDebt(alice), fix.engine.UserDebt(bob))
	if got := fix.ledger.TotalSupply(); got.Cmp(aggregate) != 0 {
		t.Fatalf("total supply %s != aggregate debt %s", got, aggregate)
	}
}

// reentrantCustody drives a nested engine call from inside TransferOut.
type reentrantCustody struct {
	*mockCustody
	engine    *Engine
	nestedErr error
}

func (c *reentrantCustody) TransferOut(to crypto.Address, asset AssetID, amount *big.Int) error {
	if c.engine != nil {
		_, c.nestedErr = c.engine.Deposit(to, asset, amount)
		if c.nestedErr != nil {
			return c.nestedErr
		}
	}
	return c.mockCustody.TransferOut(to, asset, amount)
}

func TestDecreaseRejectsReentrantCustody(t *testing.T) {
	custody := &reentrantCustody{mockCustody: newMockCustody()}
	source := newMockPriceSource()
	vault := NewCollateralVault()
	ledger := NewSupplyLedger()
	engine := NewEngine(vault, ledger, NewAccountant(NewOracleClient(source)), custody)
	custody.engine = engine

	alice := makeAddress(0x01)
	source.setPrice("SU26240", unitPrice(1))
	custody.fund(alice, "SU26240", big.NewInt(10_000))
	if _, err := engine.Deposit(alice, "SU26240", big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := engine.Decrease(alice, "SU26240", big.NewInt(2_500))
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if !errors.Is(custody.nestedErr, ErrReentrantCall) {
		t.Fatalf("nested call: expected ErrReentrantCall, got %v", custody.nestedErr)
	}
	// The failed transfer reverts the whole operation.
	if got := engine.UserDebt(alice); got.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("debt should be restored, got %s", got)
	}
	if got := ledger.BalanceOf(alice); got.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("balance should be restored, got %s", got)
	}
	if got := engine.UserCollateralAmount(alice, "SU26240"); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("holding should be restored, got %s", got)
	}
	// The guard clears once the outer operation unwinds.
	custody.engine = nil
	if _, err := engine.Decrease(alice, "SU26240", big.NewInt(2_500)); err != nil {
		t.Fatalf("engine should accept calls after revert: %v", err)
	}
}

package cdp

import (
	"math/big"

	"bondmint/crypto"
)

// SupplyLedger is the fungible balance ledger for the pegged synthetic
// currency. Mint and burn are only ever invoked by the engine in lock-step
// with a debt change, so sum(balances) == sum(debt) holds by construction.
type SupplyLedger struct {
	balances map[string]*big.Int
	total    *big.Int
}

func NewSupplyLedger() *SupplyLedger {
	return &SupplyLedger{
		balances: make(map[string]*big.Int),
		total:    big.NewInt(0),
	}
}

func ledgerKey(account crypto.Address) string {
	return string(account.Bytes())
}

// Mint credits the account and grows total supply.
func (l *SupplyLedger) Mint(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	key := ledgerKey(account)
	balance := l.balances[key]
	if balance == nil {
		balance = big.NewInt(0)
	}
	l.balances[key] = new(big.Int).Add(balance, amount)
	l.total = new(big.Int).Add(l.total, amount)
	return nil
}

// Burn debits the account and shrinks total supply.
func (l *SupplyLedger) Burn(account crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	key := ledgerKey(account)
	balance := l.balances[key]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	remaining := new(big.Int).Sub(balance, amount)
	if remaining.Sign() == 0 {
		delete(l.balances, key)
	} else {
		l.balances[key] = remaining
	}
	l.total = new(big.Int).Sub(l.total, amount)
	return nil
}

// Transfer moves synthetic currency between two accounts.
func (l *SupplyLedger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromKey := ledgerKey(from)
	balance := l.balances[fromKey]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	remaining := new(big.Int).Sub(balance, amount)
	if remaining.Sign() == 0 {
		delete(l.balances, fromKey)
	} else {
		l.balances[fromKey] = remaining
	}
	toKey := ledgerKey(to)
	toBalance := l.balances[toKey]
	if toBalance == nil {
		toBalance = big.NewInt(0)
	}
	l.balances[toKey] = new(big.Int).Add(toBalance, amount)
	return nil
}

// BalanceOf returns the account balance; unknown accounts read as zero.
func (l *SupplyLedger) BalanceOf(account crypto.Address) *big.Int {
	balance := l.balances[ledgerKey(account)]
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// TotalSupply returns the outstanding synthetic-currency supply.
func (l *SupplyLedger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.total)
}

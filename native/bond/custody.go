package bond

import (
	"errors"
	"math/big"

	"bondmint/crypto"
	"bondmint/native/cdp"
)

// Custody adapts the bond ledger to the CDP engine's collateral transfer
// capability. All vault collateral sits under a single module account, which
// the ledger exempts from whitelist checks.
type Custody struct {
	ledger  *Ledger
	account crypto.Address
}

// NewCustody binds a custody adapter to the module account holding vault
// collateral. The account is registered as whitelist-exempt.
func NewCustody(ledger *Ledger, account crypto.Address) (*Custody, error) {
	if ledger == nil {
		return nil, errors.New("bond: custody requires a ledger")
	}
	if account.IsZero() {
		return nil, errors.New("bond: custody requires a module account")
	}
	ledger.ExemptModuleAccount(account)
	return &Custody{ledger: ledger, account: account}, nil
}

// Account returns the module account units are held under.
func (c *Custody) Account() crypto.Address {
	return c.account
}

// TransferIn implements cdp.Custody by moving units from the depositor to the
// module account.
func (c *Custody) TransferIn(from crypto.Address, asset cdp.AssetID, amount *big.Int) error {
	if c == nil || c.ledger == nil {
		return errors.New("bond: custody not initialised")
	}
	return c.ledger.Transfer(from, c.account, asset, amount)
}

// TransferOut implements cdp.Custody by returning units from the module
// account to the recipient.
func (c *Custody) TransferOut(to crypto.Address, asset cdp.AssetID, amount *big.Int) error {
	if c == nil || c.ledger == nil {
		return errors.New("bond: custody not initialised")
	}
	return c.ledger.Transfer(c.account, to, asset, amount)
}

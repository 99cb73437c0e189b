// Package identity tracks which accounts are eligible counterparties for
// bond issuance and transfer. The CDP engine never consults it directly; the
// bond issuer enforces eligibility on every custody movement.
package identity

import (
	"errors"
	"sync"

	"bondmint/crypto"
)

var (
	errNilAddress = errors.New("identity registry: address required")
)

// Checker is the read side consumed by the bond issuer.
type Checker interface {
	IsApproved(addr crypto.Address) bool
}

// Registry is an in-memory whitelist of approved counterparties.
type Registry struct {
	mu       sync.RWMutex
	approved map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{approved: make(map[string]struct{})}
}

// Approve marks the address as an eligible counterparty.
func (r *Registry) Approve(addr crypto.Address) error {
	if addr.IsZero() {
		return errNilAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approved[string(addr.Bytes())] = struct{}{}
	return nil
}

// Revoke removes the address from the whitelist. Revoking an unknown address
// is a no-op.
func (r *Registry) Revoke(addr crypto.Address) error {
	if addr.IsZero() {
		return errNilAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.approved, string(addr.Bytes()))
	return nil
}

func (r *Registry) IsApproved(addr crypto.Address) bool {
	if r == nil || addr.IsZero() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.approved[string(addr.Bytes())]
	return ok
}

// Approved returns the number of whitelisted accounts.
func (r *Registry) Approved() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.approved)
}

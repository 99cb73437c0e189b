package oracle

import (
	"fmt"
	"math/big"
	"strings"

	"bondmint/crypto"
	"bondmint/native/cdp"
)

// PriceProofDomainV1 is the domain separator signed into every bond price
// attestation. Bumping the version invalidates all outstanding proofs.
const PriceProofDomainV1 = "BMT_BOND_PRICE_V1"

// PriceProof is a signed off-chain price attestation for one bond series.
// The signature is a recoverable secp256k1 signature over the keccak256 digest
// of the canonical message.
type PriceProof struct {
	Domain    string
	Asset     cdp.AssetID
	UnitPrice *big.Int
	Timestamp int64
	Nonce     uint64
	Signature []byte
}

// NewPriceProof validates the raw submission payload and normalizes it.
func NewPriceProof(domain string, asset cdp.AssetID, unitPrice *big.Int, ts int64, nonce uint64, signature []byte) (*PriceProof, error) {
	trimmedDomain := strings.TrimSpace(domain)
	if trimmedDomain == "" {
		return nil, fmt.Errorf("price proof: domain required")
	}
	normalized := cdp.NormalizeAssetID(asset)
	if normalized == "" {
		return nil, fmt.Errorf("price proof: asset required")
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, fmt.Errorf("price proof: unit price must be positive")
	}
	if ts <= 0 {
		return nil, fmt.Errorf("price proof: timestamp required")
	}
	proof := &PriceProof{
		Domain:    trimmedDomain,
		Asset:     normalized,
		UnitPrice: new(big.Int).Set(unitPrice),
		Timestamp: ts,
		Nonce:     nonce,
	}
	if len(signature) > 0 {
		proof.Signature = append([]byte(nil), signature...)
	}
	return proof, nil
}

// CanonicalMessage renders the byte-exact message both signer and verifier
// hash. Field order and casing are part of the wire contract.
func (p *PriceProof) CanonicalMessage() (string, error) {
	if p == nil {
		return "", fmt.Errorf("price proof not initialised")
	}
	domain := strings.ToUpper(strings.TrimSpace(p.Domain))
	if domain == "" {
		return "", fmt.Errorf("price proof: domain required")
	}
	asset := cdp.NormalizeAssetID(p.Asset)
	if asset == "" {
		return "", fmt.Errorf("price proof: asset required")
	}
	if p.UnitPrice == nil || p.UnitPrice.Sign() <= 0 {
		return "", fmt.Errorf("price proof: unit price required")
	}
	if p.Timestamp <= 0 {
		return "", fmt.Errorf("price proof: timestamp required")
	}
	builder := strings.Builder{}
	builder.WriteString(domain)
	builder.WriteString("|asset=")
	builder.WriteString(string(asset))
	builder.WriteString("|price=")
	builder.WriteString(p.UnitPrice.String())
	builder.WriteString("|ts=")
	builder.WriteString(fmt.Sprintf("%d", p.Timestamp))
	builder.WriteString("|nonce=")
	builder.WriteString(fmt.Sprintf("%d", p.Nonce))
	return builder.String(), nil
}

// Sign attaches a recoverable signature over the canonical message.
func (p *PriceProof) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("price proof: signing key required")
	}
	message, err := p.CanonicalMessage()
	if err != nil {
		return err
	}
	signature, err := key.SignMessage([]byte(message))
	if err != nil {
		return fmt.Errorf("price proof: sign: %w", err)
	}
	p.Signature = signature
	return nil
}

// RecoverPublisher returns the address that signed the proof.
func (p *PriceProof) RecoverPublisher() (crypto.Address, error) {
	if p == nil || len(p.Signature) == 0 {
		return crypto.Address{}, fmt.Errorf("price proof: signature required")
	}
	message, err := p.CanonicalMessage()
	if err != nil {
		return crypto.Address{}, err
	}
	addr, err := crypto.RecoverAddress([]byte(message), p.Signature)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("price proof: recover: %w", err)
	}
	return addr, nil
}

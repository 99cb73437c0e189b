package pricefeed

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"bondmint/crypto"
	"bondmint/native/cdp"
	"bondmint/native/oracle"
)

// NonceManager persists a monotonically increasing nonce so restarts cannot
// replay earlier proofs.
type NonceManager struct {
	mu      sync.Mutex
	path    string
	current uint64
}

func NewNonceManager(path string) (*NonceManager, error) {
	if path == "" {
		return nil, fmt.Errorf("pricefeed: nonce file path required")
	}
	manager := &NonceManager{path: path}
	if err := manager.load(); err != nil {
		return nil, err
	}
	return manager, nil
}

type nonceFile struct {
	Nonce uint64 `json:"nonce"`
}

func (m *NonceManager) load() error {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m.save()
	}
	if err != nil {
		return fmt.Errorf("pricefeed: read nonce file: %w", err)
	}
	var stored nonceFile
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("pricefeed: parse nonce file: %w", err)
	}
	m.current = stored.Nonce
	return nil
}

func (m *NonceManager) save() error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(nonceFile{Nonce: m.current})
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, raw, 0o600)
}

// Next reserves and persists the next nonce.
func (m *NonceManager) Next() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current++
	if err := m.save(); err != nil {
		m.current--
		return 0, err
	}
	return m.current, nil
}

// Current returns the last reserved nonce.
func (m *NonceManager) Current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Signer produces signed price proofs for the oracle registry.
type Signer struct {
	key    *crypto.PrivateKey
	nonces *NonceManager
}

func NewSigner(privateKeyHex string, nonces *NonceManager) (*Signer, error) {
	key, err := crypto.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: load signing key: %w", err)
	}
	if nonces == nil {
		return nil, fmt.Errorf("pricefeed: nonce manager required")
	}
	return &Signer{key: key, nonces: nonces}, nil
}

// Address returns the publisher address proofs recover to.
func (s *Signer) Address() crypto.Address {
	return s.key.PubKey().Address()
}

// SignPrice builds and signs a proof for the given asset and scaled unit price.
func (s *Signer) SignPrice(asset cdp.AssetID, unitPrice *big.Int, timestamp int64) (*oracle.PriceProof, error) {
	nonce, err := s.nonces.Next()
	if err != nil {
		return nil, err
	}
	proof, err := oracle.NewPriceProof(oracle.PriceProofDomainV1, asset, unitPrice, timestamp, nonce, nil)
	if err != nil {
		return nil, err
	}
	if err := proof.Sign(s.key); err != nil {
		return nil, err
	}
	return proof, nil
}

// ScaleUnitPrice converts a quote (a percentage of nominal) and the bond face
// value into the registry's fixed-point unit price.
func ScaleUnitPrice(percentage, faceValue float64) (*big.Int, error) {
	if percentage <= 0 || faceValue <= 0 {
		return nil, fmt.Errorf("pricefeed: non-positive price inputs")
	}
	absolute := new(big.Float).Quo(
		new(big.Float).Mul(big.NewFloat(percentage), big.NewFloat(faceValue)),
		big.NewFloat(100),
	)
	scaled, _ := new(big.Float).Mul(absolute, new(big.Float).SetInt(cdp.PriceScale)).Int(nil)
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("pricefeed: scaled price underflow")
	}
	return scaled, nil
}

package crypto

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(BMTPrefix)) {
		t.Fatalf("expected %q prefix, got %s", BMTPrefix, encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	if _, err := NewAddress(BMTPrefix, []byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error for short address bytes")
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("BOND_ORACLE_PRICE_V1|asset=SU26240RMFS0|price=985000000000000000000")
	sig, err := key.SignMessage(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := RecoverAddress(msg, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !recovered.Equal(key.PubKey().Address()) {
		t.Fatalf("recovered %s, want %s", recovered, key.PubKey().Address())
	}
	if _, err := RecoverAddress(msg, sig[:64]); err == nil {
		t.Fatal("expected error for truncated signature")
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hexed := "0x" + hex.EncodeToString(key.Bytes())
	parsed, err := PrivateKeyFromHex(hexed)
	if err != nil {
		t.Fatalf("parse hex key: %v", err)
	}
	if !parsed.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatal("parsed key derives a different address")
	}
	if _, err := PrivateKeyFromHex("not-hex"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

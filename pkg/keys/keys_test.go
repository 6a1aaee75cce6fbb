package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

var (
	evm1   = network.NewChainRef(network.KindEVM, "1")
	tvm42  = network.NewChainRef(network.KindTVM, "42")
	sol101 = network.NewChainRef(network.KindSolana, "101")
)

func testSeed() []byte {
	return bytes.Repeat([]byte{0x5a}, 32)
}

func mustDerive(t *testing.T, ref network.ChainRef, seed []byte) []byte {
	t.Helper()
	key, err := DeriveKey(ref, seed)
	if err != nil {
		t.Fatalf("DeriveKey(%s): %v", ref, err)
	}
	return key
}

func TestDeriveKey(t *testing.T) {
	a := mustDerive(t, evm1, testSeed())
	if len(a) != KeySize {
		t.Fatalf("key size %d, want %d", len(a), KeySize)
	}
	if !bytes.Equal(a, mustDerive(t, evm1, testSeed())) {
		t.Error("derivation is not deterministic")
	}
	if bytes.Equal(a, mustDerive(t, tvm42, testSeed())) {
		t.Error("two networks derived the same key")
	}
	if _, err := DeriveKey(evm1, make([]byte, 16)); err == nil {
		t.Error("short seed accepted")
	}
}

func TestDerivedKeySigns(t *testing.T) {
	key := mustDerive(t, sol101, testSeed())
	msg := []byte("transfer")

	ec, err := ECDSA(key)
	if err != nil {
		t.Fatalf("ECDSA: %v", err)
	}
	hash := crypto.Keccak256(msg)
	sig, err := crypto.Sign(hash, ec)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil || crypto.PubkeyToAddress(*pub) != crypto.PubkeyToAddress(ec.PublicKey) {
		t.Errorf("recovered signer mismatch (err %v)", err)
	}

	ed, err := Ed25519(key)
	if err != nil {
		t.Fatalf("Ed25519: %v", err)
	}
	if !ed25519.Verify(ed.Public().(ed25519.PublicKey), msg, ed25519.Sign(ed, msg)) {
		t.Error("ed25519 signature does not verify")
	}
	if _, err := Ed25519(key[:16]); err == nil {
		t.Error("short ed25519 seed accepted")
	}
}

func TestMasterKey_SealOpen(t *testing.T) {
	mk, err := NewMasterKey()
	if err != nil {
		t.Fatalf("NewMasterKey: %v", err)
	}
	key := mustDerive(t, evm1, testSeed())

	sealed, err := mk.Seal(key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	opened, err := mk.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, key) {
		t.Error("opened key differs")
	}

	other, _ := NewMasterKey()
	if _, err := other.Open(sealed); err == nil {
		t.Error("foreign master key opened the key")
	}
	if _, err := mk.Open("AAAA"); err == nil {
		t.Error("truncated box opened")
	}
	if _, err := mk.Seal(key[:31]); err == nil {
		t.Error("sealed a short key")
	}
	if _, err := MasterKey(make([]byte, 16)).Seal(key); err == nil {
		t.Error("sealed under a 16 byte master key")
	}
}

func TestParseMasterKey(t *testing.T) {
	mk, _ := NewMasterKey()
	parsed, err := ParseMasterKey(mk.String())
	if err != nil {
		t.Fatalf("ParseMasterKey: %v", err)
	}
	if !bytes.Equal(parsed, mk) {
		t.Error("round trip changed the key")
	}
	for _, in := range []string{"not-valid-base64!!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := ParseMasterKey(in); err == nil {
			t.Errorf("ParseMasterKey(%q) succeeded", in)
		}
	}
}

func TestLoad(t *testing.T) {
	mk, _ := NewMasterKey()
	stored := mustDerive(t, tvm42, bytes.Repeat([]byte{1}, 40))
	sealed, err := mk.Seal(stored)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	wallets := config.WalletsConfig{
		MasterKey: mk.String(),
		Seed:      base64.StdEncoding.EncodeToString(testSeed()),
	}

	tests := []struct {
		name    string
		wallet  config.WalletConfig
		want    []byte
		wantErr bool
	}{
		{"derived", config.WalletConfig{Network: "evm-1", Derive: true}, mustDerive(t, evm1, testSeed()), false},
		{"sealed", config.WalletConfig{Network: "tvm-42", EncryptedKey: sealed}, stored, false},
		{"bad network", config.WalletConfig{Network: "bogus", Derive: true}, nil, true},
		{"bad box", config.WalletConfig{Network: "tvm-42", EncryptedKey: "AAAA"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.wallet, wallets)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Error("Load returned the wrong key")
			}
		})
	}
}

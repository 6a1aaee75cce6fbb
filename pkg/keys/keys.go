// Package keys loads the private keys of the tracker's wallets.
//
// A key is 32 bytes: a secp256k1 scalar on EVM networks and an ed25519 seed on TVM and
// Solana networks. Configured keys are either sealed under a MasterKey or derived per
// network from a server seed.
package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"

	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

const (
	KeySize     = 32
	minSeedSize = 32
	deriveInfo  = "bridge-tracker-wallet-"
)

// DeriveKey expands seed into the key of the wallet on ref. The same seed and network always
// give the same key.
func DeriveKey(ref network.ChainRef, seed []byte) ([]byte, error) {
	if len(seed) < minSeedSize {
		return nil, fmt.Errorf("seed is %d bytes, need at least %d", len(seed), minSeedSize)
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(deriveInfo+ref.String())), key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

// Load returns the raw key of one configured wallet.
func Load(wallet config.WalletConfig, wallets config.WalletsConfig) ([]byte, error) {
	ref, err := network.ParseChainRef(wallet.Network)
	if err != nil {
		return nil, err
	}
	if wallet.Derive {
		seed, err := base64.StdEncoding.DecodeString(wallets.Seed)
		if err != nil {
			return nil, fmt.Errorf("wallet seed: %w", err)
		}
		return DeriveKey(ref, seed)
	}
	mk, err := ParseMasterKey(wallets.MasterKey)
	if err != nil {
		return nil, err
	}
	key, err := mk.Open(wallet.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("wallet on %s: %w", ref, err)
	}
	return key, nil
}

// ECDSA turns a raw key into a secp256k1 signing key.
func ECDSA(key []byte) (*ecdsa.PrivateKey, error) {
	pk, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 key: %w", err)
	}
	return pk, nil
}

// Ed25519 treats key as an ed25519 seed.
func Ed25519(key []byte) (ed25519.PrivateKey, error) {
	if len(key) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed is %d bytes, want %d", len(key), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(key), nil
}

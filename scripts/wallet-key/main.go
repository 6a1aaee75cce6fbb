// wallet-key - prints a new wallet key encrypted with the tracker master key
//
// Usage:
//
//	TRACKER_WALLET_MASTER_KEY=$(openssl rand -base64 32) go run ./scripts/wallet-key -network evm-1
//
// The output goes into wallets.accounts[].encrypted_key.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"

	"github.com/chainsafe/bridge-tracker/pkg/keys"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

func main() {
	ref := flag.String("network", "", "Network the key is for, e.g. evm-1 or solana-101")
	flag.Parse()

	chainRef, err := network.ParseChainRef(*ref)
	if err != nil {
		log.Fatalf("invalid network: %v", err)
	}
	masterKey, err := keys.ParseMasterKey(os.Getenv("TRACKER_WALLET_MASTER_KEY"))
	if err != nil {
		log.Fatalf("TRACKER_WALLET_MASTER_KEY: %v", err)
	}

	var raw []byte
	var address string
	switch chainRef.Kind() {
	case network.KindEVM:
		key, err := crypto.GenerateKey()
		if err != nil {
			log.Fatalf("failed to generate key: %v", err)
		}
		raw = crypto.FromECDSA(key)
		address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	default:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			log.Fatalf("failed to generate key: %v", err)
		}
		raw = priv.Seed()
		address = solana.PublicKeyFromBytes(pub).String()
		if chainRef.Kind() == network.KindTVM {
			address = fmt.Sprintf("%x (public key; set wallets.accounts[].address to the account)", []byte(pub))
		}
	}

	encrypted, err := masterKey.Seal(raw)
	if err != nil {
		log.Fatalf("failed to encrypt key: %v", err)
	}
	fmt.Printf("network:       %s\naddress:       %s\nencrypted_key: %s\n", chainRef, address, encrypted)
}

// Package chain declares the wallet surface the transfer engine acts through.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/chainsafe/bridge-tracker/pkg/network"
)

var (
	// ErrNotReady is returned when a wallet is used before Connect.
	ErrNotReady = errors.New("wallet not connected")
	// ErrUnsupportedCall is returned when a call does not fit the wallet's chain kind.
	ErrUnsupportedCall = errors.New("call not supported by wallet")
)

// AccountMeta is one account reference of a Solana instruction.
type AccountMeta struct {
	Address  string
	Signer   bool
	Writable bool
}

// Call is a pre-built transaction. Which fields are used depends on the chain kind:
// EVM wallets send Data to To with Value, TVM wallets call Method with Params on To,
// Solana wallets send one instruction with Data and Accounts to program To.
type Call struct {
	To       string
	Data     []byte
	Value    *big.Int
	Method   string
	Params   map[string]any
	Accounts []AccountMeta
}

// Wallet submits calls on one chain with one key.
type Wallet interface {
	Address() string
	Chain() network.ChainRef
	IsReady() bool
	Connect(ctx context.Context) error
	Disconnect()
	// SendTransaction submits the call and returns the chain's identifier for it.
	SendTransaction(ctx context.Context, call Call) (string, error)
}

// Wallets resolves the configured wallet for a chain.
type Wallets interface {
	Wallet(ref network.ChainRef) (Wallet, bool)
}

// WalletSet is a static Wallets implementation keyed by chain.
type WalletSet map[network.ChainRef]Wallet

// Wallet implements Wallets.
func (s WalletSet) Wallet(ref network.ChainRef) (Wallet, bool) {
	w, ok := s[ref]
	return w, ok
}

// OnChain reports whether w is ready and connected to ref.
func OnChain(w Wallet, ref network.ChainRef) bool {
	return w != nil && w.IsReady() && w.Chain() == ref
}

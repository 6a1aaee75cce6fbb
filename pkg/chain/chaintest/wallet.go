// Package chaintest provides a recording wallet for tests of code that acts through chain.Wallet.
package chaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// Wallet records every call it is asked to send.
type Wallet struct {
	Addr    string
	Ref     network.ChainRef
	Ready   bool
	SendErr error

	mu    sync.Mutex
	calls []chain.Call
}

// NewWallet returns a connected wallet for addr on ref.
func NewWallet(addr string, ref network.ChainRef) *Wallet {
	return &Wallet{Addr: addr, Ref: ref, Ready: true}
}

func (w *Wallet) Address() string         { return w.Addr }
func (w *Wallet) Chain() network.ChainRef { return w.Ref }
func (w *Wallet) IsReady() bool           { return w.Ready }

func (w *Wallet) Connect(context.Context) error {
	w.Ready = true
	return nil
}

func (w *Wallet) Disconnect() { w.Ready = false }

// SendTransaction records call and returns a synthetic transaction id.
func (w *Wallet) SendTransaction(_ context.Context, call chain.Call) (string, error) {
	if w.SendErr != nil {
		return "", w.SendErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call)
	return fmt.Sprintf("tx-%d", len(w.calls)), nil
}

// Calls returns the calls sent so far.
func (w *Wallet) Calls() []chain.Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]chain.Call(nil), w.calls...)
}

package solana

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// KeyedWallet signs single-instruction transactions with a local ed25519 key.
type KeyedWallet struct {
	client     *Client
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	logger     *zap.Logger

	mu    sync.RWMutex
	ready bool
}

var _ chain.Wallet = (*KeyedWallet)(nil)

// NewKeyedWallet creates a wallet for the client's network. It is not ready until Connect.
func NewKeyedWallet(client *Client, key ed25519.PrivateKey, logger *zap.Logger) *KeyedWallet {
	privateKey := solana.PrivateKey(key)
	return &KeyedWallet{
		client:     client,
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
		logger:     logger,
	}
}

func (w *KeyedWallet) Address() string { return w.publicKey.String() }

func (w *KeyedWallet) Chain() network.ChainRef { return w.client.Network().Ref() }

func (w *KeyedWallet) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// Connect checks that the cluster is healthy.
func (w *KeyedWallet) Connect(ctx context.Context) error {
	health, err := w.client.rpc.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cluster health: %w", err)
	}
	if health != rpc.HealthOk {
		return fmt.Errorf("cluster is not healthy: %s", health)
	}

	w.mu.Lock()
	w.ready = true
	w.mu.Unlock()

	w.logger.Info("Solana wallet connected",
		zap.String("network", w.Chain().String()),
		zap.String("address", w.Address()))
	return nil
}

func (w *KeyedWallet) Disconnect() {
	w.mu.Lock()
	w.ready = false
	w.mu.Unlock()
}

// SendTransaction sends one instruction to program call.To and returns the signature.
func (w *KeyedWallet) SendTransaction(ctx context.Context, call chain.Call) (string, error) {
	if !w.IsReady() {
		return "", chain.ErrNotReady
	}

	program, err := solana.PublicKeyFromBase58(call.To)
	if err != nil {
		return "", chain.ErrUnsupportedCall
	}

	accounts := make(solana.AccountMetaSlice, 0, len(call.Accounts))
	for _, a := range call.Accounts {
		key, err := solana.PublicKeyFromBase58(a.Address)
		if err != nil {
			return "", fmt.Errorf("invalid account %q: %w", a.Address, err)
		}
		accounts = append(accounts, solana.NewAccountMeta(key, a.Writable, a.Signer))
	}

	recent, err := w.client.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(program, accounts, call.Data)},
		recent.Value.Blockhash,
		solana.TransactionPayer(w.publicKey),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.publicKey) {
			return &w.privateKey
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := w.client.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}

	w.logger.Info("Transaction submitted",
		zap.String("network", w.Chain().String()),
		zap.String("program", call.To),
		zap.String("signature", sig.String()))

	return sig.String(), nil
}

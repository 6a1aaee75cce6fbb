package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// KeyedWallet signs EVM transactions with a local private key.
type KeyedWallet struct {
	client     *Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	logger     *zap.Logger

	mu    sync.RWMutex
	ready bool
}

var _ chain.Wallet = (*KeyedWallet)(nil)

// NewKeyedWallet creates a wallet for the client's network. It is not ready until Connect.
func NewKeyedWallet(client *Client, privateKey *ecdsa.PrivateKey, logger *zap.Logger) *KeyedWallet {
	return &KeyedWallet{
		client:     client,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		logger:     logger,
	}
}

func (w *KeyedWallet) Address() string { return w.address.Hex() }

func (w *KeyedWallet) Chain() network.ChainRef { return w.client.Network().Ref() }

func (w *KeyedWallet) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// Connect checks that the node serves the configured chain.
func (w *KeyedWallet) Connect(ctx context.Context) error {
	chainID, err := w.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if want := w.client.Network().ChainID; chainID.String() != want {
		return fmt.Errorf("node serves chain %s, wallet is configured for %s", chainID, want)
	}

	w.mu.Lock()
	w.ready = true
	w.mu.Unlock()

	w.logger.Info("EVM wallet connected",
		zap.String("network", w.Chain().String()),
		zap.String("address", w.Address()))
	return nil
}

func (w *KeyedWallet) Disconnect() {
	w.mu.Lock()
	w.ready = false
	w.mu.Unlock()
}

// SendTransaction sends call.Data to call.To and returns the transaction hash.
func (w *KeyedWallet) SendTransaction(ctx context.Context, call chain.Call) (string, error) {
	if !w.IsReady() {
		return "", chain.ErrNotReady
	}
	if !common.IsHexAddress(call.To) || len(call.Data) == 0 {
		return "", chain.ErrUnsupportedCall
	}

	auth, err := w.transactor(ctx)
	if err != nil {
		return "", err
	}
	auth.Value = call.Value

	backend := w.client.Backend()
	contract := bind.NewBoundContract(common.HexToAddress(call.To), abi.ABI{}, backend, backend, backend)
	tx, err := contract.RawTransact(auth, call.Data)
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}

	w.logger.Info("Transaction submitted",
		zap.String("network", w.Chain().String()),
		zap.String("to", call.To),
		zap.String("tx_hash", tx.Hash().Hex()))

	return tx.Hash().Hex(), nil
}

// transactor returns a transaction signer with nonce, gas limit and capped gas price set.
func (w *KeyedWallet) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	n := w.client.Network()
	chainID, ok := new(big.Int).SetString(n.ChainID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", n.ChainID)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(w.privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	nonce, err := w.client.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = n.GasLimit

	if n.MaxGasPrice != "" {
		maxGasPrice, ok := new(big.Int).SetString(n.MaxGasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max gas price %q", n.MaxGasPrice)
		}

		gasPrice, err := w.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}

		if gasPrice.Cmp(maxGasPrice) > 0 {
			w.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			auth.GasPrice = maxGasPrice
		} else {
			auth.GasPrice = gasPrice
		}
	}

	return auth, nil
}

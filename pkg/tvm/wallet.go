package tvm

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/network"
)

// GatewayWallet signs external messages of a deployed wallet contract. The gateway builds
// the message body, the wallet only signs its hash.
type GatewayWallet struct {
	client  *Client
	address string
	key     ed25519.PrivateKey
	logger  *zap.Logger

	mu    sync.RWMutex
	ready bool
}

var _ chain.Wallet = (*GatewayWallet)(nil)

// NewGatewayWallet creates a wallet for the wallet contract at address.
func NewGatewayWallet(client *Client, address string, key ed25519.PrivateKey, logger *zap.Logger) *GatewayWallet {
	return &GatewayWallet{client: client, address: address, key: key, logger: logger}
}

func (w *GatewayWallet) Address() string { return w.address }

func (w *GatewayWallet) Chain() network.ChainRef { return w.client.Network().Ref() }

func (w *GatewayWallet) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// Connect checks that the wallet contract is deployed.
func (w *GatewayWallet) Connect(ctx context.Context) error {
	state, err := w.client.ContractState(ctx, w.address)
	if err != nil {
		return fmt.Errorf("failed to read wallet state: %w", err)
	}
	if !state.Deployed {
		return fmt.Errorf("%w: wallet %s", ErrNotDeployed, w.address)
	}

	w.mu.Lock()
	w.ready = true
	w.mu.Unlock()

	w.logger.Info("TVM wallet connected",
		zap.String("network", w.Chain().String()),
		zap.String("address", w.address))
	return nil
}

func (w *GatewayWallet) Disconnect() {
	w.mu.Lock()
	w.ready = false
	w.mu.Unlock()
}

type preparedMessage struct {
	Hash string `mapstructure:"hash"`
	Boc  string `mapstructure:"boc"`
}

// SendTransaction calls call.Method on call.To through the wallet contract and returns
// the external message hash.
func (w *GatewayWallet) SendTransaction(ctx context.Context, call chain.Call) (string, error) {
	if !w.IsReady() {
		return "", chain.ErrNotReady
	}
	if call.To == "" || call.Method == "" {
		return "", chain.ErrUnsupportedCall
	}

	value := "0"
	if call.Value != nil {
		value = call.Value.String()
	}

	var msg preparedMessage
	err := w.client.call(ctx, &msg, methodPrepareExternal, map[string]any{
		"wallet":    w.address,
		"publicKey": hex.EncodeToString(w.key.Public().(ed25519.PublicKey)),
		"dst":       call.To,
		"value":     value,
		"method":    call.Method,
		"params":    call.Params,
	})
	if err != nil {
		return "", err
	}

	digest, err := hex.DecodeString(msg.Hash)
	if err != nil {
		return "", fmt.Errorf("gateway returned malformed message hash: %w", err)
	}
	signature := ed25519.Sign(w.key, digest)

	var sent struct {
		MessageHash string `mapstructure:"messageHash"`
	}
	err = w.client.call(ctx, &sent, methodSendExternal, map[string]any{
		"boc":       msg.Boc,
		"signature": hex.EncodeToString(signature),
	})
	if err != nil {
		return "", err
	}

	w.logger.Info("External message sent",
		zap.String("network", w.Chain().String()),
		zap.String("to", call.To),
		zap.String("method", call.Method),
		zap.String("message_hash", sent.MessageHash))

	return sent.MessageHash, nil
}

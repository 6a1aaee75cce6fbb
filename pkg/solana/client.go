// Package solana reads a Solana-family network and submits program instructions.
package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
)

// ErrNoWebsocket is returned by SubscribeProgramLogs when the network has no websocket endpoint.
var ErrNoWebsocket = errors.New("solana websocket not configured")

const logBuffer = 64

// lamportsPerSignature is the base fee of one transaction signature.
const lamportsPerSignature = 5000

// SignatureStatus is the finality of one transaction signature.
type SignatureStatus struct {
	Slot          uint64
	Confirmations uint64
	Finalized     bool
	// Err is the transaction error reported by the cluster, "" on success.
	Err string
}

// ProgramLog is the log output of one transaction that mentioned a program.
type ProgramLog struct {
	Signature string
	Logs      []string
	Err       string
}

// Client reads one Solana network.
type Client struct {
	network  network.Network
	rpc      *rpc.Client
	wsClient *ws.Client
	logger   *zap.Logger
}

// NewClient creates an RPC client and, when configured, a websocket client for n.
func NewClient(ctx context.Context, n network.Network, logger *zap.Logger) (*Client, error) {
	if n.Kind != network.KindSolana {
		return nil, fmt.Errorf("network %s is not a Solana network", n.Ref())
	}

	var wsClient *ws.Client
	if n.WSURL != "" {
		var err error
		wsClient, err = ws.Connect(ctx, n.WSURL)
		if err != nil {
			logger.Warn("Failed to connect to Solana websocket, program logs are looked up only",
				zap.String("network", n.Ref().String()),
				zap.Error(err))
			wsClient = nil
		}
	}

	logger.Info("Connected to Solana network",
		zap.String("network", n.Ref().String()),
		zap.String("rpc_url", n.RPCURL),
		zap.Bool("websocket", wsClient != nil))

	return &Client{
		network:  n,
		rpc:      rpc.New(n.RPCURL),
		wsClient: wsClient,
		logger:   logger,
	}, nil
}

// Close closes the connections.
func (c *Client) Close() {
	if c.wsClient != nil {
		c.wsClient.Close()
	}
	if err := c.rpc.Close(); err != nil {
		c.logger.Debug("Failed to close Solana RPC client", zap.Error(err))
	}
}

// Network returns the network the client reads.
func (c *Client) Network() network.Network { return c.network }

func (c *Client) observe(method string) func() {
	start := time.Now()
	return func() {
		metrics.ChainRequestDuration.WithLabelValues(c.network.Ref().String(), method).
			Observe(time.Since(start).Seconds())
	}
}

// SignatureStatus returns the status of signature, or nil when the cluster does not know it.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	defer c.observe("signature_status")()

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	v := out.Value[0]
	status := &SignatureStatus{
		Slot:      v.Slot,
		Finalized: v.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
	}
	if v.Confirmations != nil {
		status.Confirmations = *v.Confirmations
	}
	if v.Err != nil {
		status.Err = fmt.Sprint(v.Err)
	}
	return status, nil
}

// SuggestGasPrice returns the base fee per signature in lamports. Route hops into Solana
// express their gas usage in signatures.
func (c *Client) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(lamportsPerSignature), nil
}

// AccountExists reports whether address holds an account.
func (c *Client) AccountExists(ctx context.Context, address string) (bool, error) {
	defer c.observe("account_info")()

	key, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return false, fmt.Errorf("invalid account %q: %w", address, err)
	}

	_, err = c.rpc.GetAccountInfo(ctx, key)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get account info: %w", err)
	}
	return true, nil
}

// FindProgramLogs returns the logs of the latest finalized transactions mentioning program.
func (c *Client) FindProgramLogs(ctx context.Context, program string, limit int) ([]ProgramLog, error) {
	defer c.observe("program_logs")()

	key, err := solana.PublicKeyFromBase58(program)
	if err != nil {
		return nil, fmt.Errorf("invalid program %q: %w", program, err)
	}

	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, key, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get program signatures: %w", err)
	}

	maxVersion := uint64(0)
	out := make([]ProgramLog, 0, len(sigs))
	for _, s := range sigs {
		tx, err := c.rpc.GetTransaction(ctx, s.Signature, &rpc.GetTransactionOpts{
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get transaction %s: %w", s.Signature, err)
		}
		entry := ProgramLog{Signature: s.Signature.String()}
		if tx.Meta != nil {
			entry.Logs = tx.Meta.LogMessages
			if tx.Meta.Err != nil {
				entry.Err = fmt.Sprint(tx.Meta.Err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// SubscribeProgramLogs streams the logs of finalized transactions mentioning program.
func (c *Client) SubscribeProgramLogs(ctx context.Context, program string) (subscription.Subscription[ProgramLog], error) {
	if c.wsClient == nil {
		return nil, ErrNoWebsocket
	}

	key, err := solana.PublicKeyFromBase58(program)
	if err != nil {
		return nil, fmt.Errorf("invalid program %q: %w", program, err)
	}

	sub, err := c.wsClient.LogsSubscribeMentions(key, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to program logs: %w", err)
	}

	gauge := metrics.SubscriptionsActive.WithLabelValues(c.network.Ref().String())
	gauge.Inc()

	recvCtx, cancel := context.WithCancel(ctx)
	stream := subscription.NewStream[ProgramLog](logBuffer, func() error {
		cancel()
		sub.Unsubscribe()
		gauge.Dec()
		return nil
	})

	go func() {
		for {
			res, err := sub.Recv(recvCtx)
			if err != nil {
				if recvCtx.Err() == nil {
					stream.Fail(err)
				}
				return
			}
			entry := ProgramLog{
				Signature: res.Value.Signature.String(),
				Logs:      res.Value.Logs,
			}
			if res.Value.Err != nil {
				entry.Err = fmt.Sprint(res.Value.Err)
			}
			if !stream.Send(recvCtx, entry) {
				return
			}
		}
	}()

	return stream, nil
}

// Package tvm reads a TVM network through its JSON-RPC gateway and streams account
// transactions from the gateway's NATS feed.
package tvm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
)

// Gateway JSON-RPC methods.
const (
	methodGetTransaction        = "tvm_getTransaction"
	methodFindTransactions      = "tvm_findTransactions"
	methodGetContractState      = "tvm_getContractState"
	methodRunGetter             = "tvm_runGetter"
	methodPrepareExternal       = "tvm_prepareExternalMessage"
	methodSendExternal          = "tvm_sendExternalMessage"
	methodGetGasPrice           = "tvm_getGasPrice"
	defaultFindTransactionLimit = 50
)

// Client reads one TVM network.
type Client struct {
	network network.Network
	rpc     *rpc.Client
	stream  *Stream
	getters *lru.Cache
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient dials the gateway of n. stream may be nil, in which case subscriptions fail
// and trackers rely on their lookups.
func NewClient(ctx context.Context, n network.Network, cfg config.TVMConfig, stream *Stream, logger *zap.Logger) (*Client, error) {
	if n.Kind != network.KindTVM {
		return nil, fmt.Errorf("network %s is not a TVM network", n.Ref())
	}

	client, err := rpc.DialContext(ctx, n.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s gateway: %w", n.Ref(), err)
	}

	getters, err := lru.New(cfg.GetterCacheSize)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create getter cache: %w", err)
	}

	logger.Info("Connected to TVM gateway",
		zap.String("network", n.Ref().String()),
		zap.String("rpc_url", n.RPCURL),
		zap.Int("getter_cache_size", cfg.GetterCacheSize))

	return &Client{
		network: n,
		rpc:     client,
		stream:  stream,
		getters: getters,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

// Close closes the gateway connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Network returns the network the client reads.
func (c *Client) Network() network.Network { return c.network }

func (c *Client) call(ctx context.Context, out any, method string, args ...any) error {
	start := time.Now()
	defer func() {
		metrics.ChainRequestDuration.WithLabelValues(c.network.Ref().String(), method).
			Observe(time.Since(start).Seconds())
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var raw any
	if err := c.rpc.CallContext(ctx, &raw, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if out == nil {
		return nil
	}
	return Decode(raw, out)
}

// Transaction returns the transaction with hash, or nil when the gateway does not know it yet.
func (c *Client) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	var raw map[string]any
	if err := c.call(ctx, &raw, methodGetTransaction, hash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var tx Transaction
	if err := Decode(raw, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindTransactions returns the most recent transactions of address, newest first.
func (c *Client) FindTransactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = defaultFindTransactionLimit
	}
	var txs []Transaction
	if err := c.call(ctx, &txs, methodFindTransactions, address, limit); err != nil {
		return nil, err
	}
	return txs, nil
}

// ContractState returns the state of address. An address that never existed is reported
// as not deployed.
func (c *Client) ContractState(ctx context.Context, address string) (ContractState, error) {
	var state ContractState
	if err := c.call(ctx, &state, methodGetContractState, address); err != nil {
		return ContractState{}, err
	}
	state.Address = address
	return state, nil
}

// RunGetter runs a read-only method of a deployed contract and decodes its output into out.
// Results are cached by contract state, so repeated reads of an unchanged contract are free.
func (c *Client) RunGetter(ctx context.Context, address, method string, params map[string]any, out any) error {
	state, err := c.ContractState(ctx, address)
	if err != nil {
		return err
	}
	if !state.Deployed {
		return fmt.Errorf("%w: %s", ErrNotDeployed, address)
	}

	key, err := getterKey(address, state.LastLt, method, params)
	if err != nil {
		return err
	}
	if cached, ok := c.getters.Get(key); ok {
		return Decode(cached, out)
	}

	var raw map[string]any
	if err := c.call(ctx, &raw, methodRunGetter, address, method, params); err != nil {
		return err
	}
	c.getters.Add(key, raw)
	return Decode(raw, out)
}

func getterKey(address string, lt uint64, method string, params map[string]any) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode getter params: %w", err)
	}
	return fmt.Sprintf("%s/%d/%s/%s", address, lt, method, encoded), nil
}

// EventDetails reads the details of a bridge event contract.
func (c *Client) EventDetails(ctx context.Context, address string) (EventDetails, error) {
	var details EventDetails
	if err := c.RunGetter(ctx, address, "getDetails", nil, &details); err != nil {
		return EventDetails{}, err
	}
	return details, nil
}

// DeriveEventAddress asks an event configuration for the address of the event contract
// that relays will deploy for voteData.
func (c *Client) DeriveEventAddress(ctx context.Context, configuration string, voteData map[string]any) (string, error) {
	var out struct {
		EventContract string `mapstructure:"eventContract"`
	}
	err := c.RunGetter(ctx, configuration, "deriveEventAddress", map[string]any{"eventVoteData": voteData}, &out)
	if err != nil {
		return "", err
	}
	return out.EventContract, nil
}

// SuggestGasPrice returns the current gas price in nano units of the native currency.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out struct {
		GasPrice string `mapstructure:"gasPrice"`
	}
	if err := c.call(ctx, &out, methodGetGasPrice); err != nil {
		return nil, err
	}
	price, ok := new(big.Int).SetString(out.GasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("gateway returned malformed gas price %q", out.GasPrice)
	}
	return price, nil
}

// SubscribeTransactions streams new transactions of address.
func (c *Client) SubscribeTransactions(ctx context.Context, address string) (subscription.Subscription[Transaction], error) {
	if c.stream == nil {
		return nil, ErrNoStream
	}
	return c.stream.Subscribe(ctx, c.network.Ref(), address)
}

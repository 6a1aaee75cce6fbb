package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum/contracts"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
)

// DefaultLookbackBlocks bounds FindVaultEvents when no start block is known.
const DefaultLookbackBlocks = 10_000

const vaultEventBuffer = 64

// Client reads one EVM network.
type Client struct {
	network  network.Network
	client   *ethclient.Client
	wsClient *ethclient.Client
	logger   *zap.Logger
}

// NewClient dials the network's RPC endpoint and, when configured, its websocket endpoint.
func NewClient(ctx context.Context, n network.Network, logger *zap.Logger) (*Client, error) {
	if n.Kind != network.KindEVM {
		return nil, fmt.Errorf("network %s is not an EVM network", n.Ref())
	}

	client, err := ethclient.DialContext(ctx, n.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", n.Ref(), err)
	}

	// websocket is optional, subscriptions fall back to polling without it
	var wsClient *ethclient.Client
	if n.WSURL != "" {
		wsClient, err = ethclient.DialContext(ctx, n.WSURL)
		if err != nil {
			logger.Warn("Failed to connect to EVM websocket, falling back to polling",
				zap.String("network", n.Ref().String()),
				zap.Error(err))
			wsClient = nil
		}
	}

	logger.Info("Connected to EVM network",
		zap.String("network", n.Ref().String()),
		zap.String("rpc_url", n.RPCURL),
		zap.Bool("websocket", wsClient != nil))

	return &Client{
		network:  n,
		client:   client,
		wsClient: wsClient,
		logger:   logger,
	}, nil
}

// Close closes the RPC connections
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

// Network returns the network the client reads.
func (c *Client) Network() network.Network { return c.network }

// Backend exposes the RPC client for contract bindings and wallets.
func (c *Client) Backend() bind.ContractBackend { return c.client }

func (c *Client) observe(method string) func() {
	start := time.Now()
	return func() {
		metrics.ChainRequestDuration.WithLabelValues(c.network.Ref().String(), method).
			Observe(time.Since(start).Seconds())
	}
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	defer c.observe("chain_id")()
	return c.client.ChainID(ctx)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	defer c.observe("block_number")()
	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return n, nil
}

// SuggestGasPrice returns the node's gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	defer c.observe("gas_price")()
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	return price, nil
}

// Receipt returns the receipt of hash, or nil when the transaction is not mined yet.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	defer c.observe("receipt")()
	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, goethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// Deposit returns the vault Deposit event emitted by the transaction, or nil when the
// transaction is not mined or emitted none.
func (c *Client) Deposit(ctx context.Context, hash common.Hash) (*DepositEvent, *types.Receipt, error) {
	receipt, err := c.Receipt(ctx, hash)
	if err != nil || receipt == nil {
		return nil, receipt, err
	}
	return DepositFromReceipt(receipt), receipt, nil
}

// DepositFromReceipt decodes the first vault Deposit log of receipt.
func DepositFromReceipt(receipt *types.Receipt) *DepositEvent {
	for _, log := range receipt.Logs {
		vault, err := contracts.NewVault(log.Address, nil)
		if err != nil {
			return nil
		}
		if vault.EventName(*log) != contracts.EventDeposit {
			continue
		}
		ev, err := vault.ParseDeposit(*log)
		if err != nil {
			continue
		}
		return &DepositEvent{
			Vault:         log.Address,
			Token:         ev.Token,
			Sender:        ev.Sender,
			RecipientWid:  ev.RecipientWid,
			RecipientAddr: ev.RecipientAddr,
			Amount:        ev.Amount,
			ExpectedGas:   ev.ExpectedGas,
			Payload:       ev.Payload,
			BlockNumber:   log.BlockNumber,
			TxHash:        log.TxHash,
			LogIndex:      log.Index,
		}
	}
	return nil
}

// VaultFigures reads liquidity and fee figures of token in vault.
func (c *Client) VaultFigures(ctx context.Context, vaultAddress, token common.Address) (VaultFigures, error) {
	defer c.observe("vault_figures")()

	vault, err := contracts.NewVault(vaultAddress, c.client)
	if err != nil {
		return VaultFigures{}, err
	}
	erc20, err := contracts.NewERC20(token, c.client)
	if err != nil {
		return VaultFigures{}, err
	}

	opts := &bind.CallOpts{Context: ctx}
	settings, err := vault.Tokens(opts, token)
	if err != nil {
		return VaultFigures{}, fmt.Errorf("failed to read token settings: %w", err)
	}
	limits, err := vault.WithdrawalLimits(opts, token)
	if err != nil {
		return VaultFigures{}, fmt.Errorf("failed to read withdrawal limits: %w", err)
	}
	balance, err := erc20.BalanceOf(opts, vaultAddress)
	if err != nil {
		return VaultFigures{}, fmt.Errorf("failed to read vault balance: %w", err)
	}

	figures := VaultFigures{
		Balance:     balance,
		DepositFee:  settings.DepositFee,
		WithdrawFee: settings.WithdrawFee,
	}
	if limits.Enabled {
		figures.Limit = limits.Undeclared
	}
	return figures, nil
}

// PendingWithdrawal reads the pending withdrawal (recipient, id) from vault.
func (c *Client) PendingWithdrawal(ctx context.Context, vaultAddress, recipient common.Address, id *big.Int) (PendingWithdrawal, error) {
	defer c.observe("pending_withdrawal")()

	vault, err := contracts.NewVault(vaultAddress, c.client)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	rec, err := vault.PendingWithdrawals(&bind.CallOpts{Context: ctx}, recipient, id)
	if err != nil {
		return PendingWithdrawal{}, fmt.Errorf("failed to read pending withdrawal %s: %w", id, err)
	}
	return PendingWithdrawal{
		ID:        id,
		Recipient: recipient,
		Token:     rec.Token,
		Amount:    rec.Amount,
		Bounty:    rec.Bounty,
		Closed:    rec.Amount == nil || rec.Amount.Sign() == 0,
	}, nil
}

// FindVaultEvents returns the vault events of the last lookback blocks.
func (c *Client) FindVaultEvents(ctx context.Context, vaultAddress common.Address, lookback uint64) ([]VaultEvent, error) {
	latest, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	if lookback == 0 {
		lookback = DefaultLookbackBlocks
	}
	var from uint64
	if latest > lookback {
		from = latest - lookback
	}
	return c.filterVaultEvents(ctx, vaultAddress, from, latest)
}

func (c *Client) filterVaultEvents(ctx context.Context, vaultAddress common.Address, from, to uint64) ([]VaultEvent, error) {
	defer c.observe("filter_logs")()

	vault, err := contracts.NewVault(vaultAddress, nil)
	if err != nil {
		return nil, err
	}
	logs, err := c.client.FilterLogs(ctx, goethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{vaultAddress},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter vault logs: %w", err)
	}

	events := make([]VaultEvent, 0, len(logs))
	for _, log := range logs {
		if ev, ok := DecodeVaultEvent(vault, log); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// SubscribeVaultEvents streams vault events. It uses a websocket log subscription when
// available and otherwise polls new blocks on the network's polling interval.
func (c *Client) SubscribeVaultEvents(ctx context.Context, vaultAddress common.Address) (subscription.Subscription[VaultEvent], error) {
	vault, err := contracts.NewVault(vaultAddress, nil)
	if err != nil {
		return nil, err
	}
	if c.wsClient != nil {
		return c.subscribeLogs(ctx, vault)
	}
	return c.pollLogs(ctx, vault)
}

func (c *Client) subscribeLogs(ctx context.Context, vault *contracts.Vault) (subscription.Subscription[VaultEvent], error) {
	logs := make(chan types.Log, vaultEventBuffer)
	sub, err := c.wsClient.SubscribeFilterLogs(ctx, goethereum.FilterQuery{
		Addresses: []common.Address{vault.Address()},
	}, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to vault logs: %w", err)
	}

	gauge := metrics.SubscriptionsActive.WithLabelValues(c.network.Ref().String())
	gauge.Inc()
	stream := subscription.NewStream[VaultEvent](vaultEventBuffer, func() error {
		sub.Unsubscribe()
		gauge.Dec()
		return nil
	})

	go func() {
		for {
			select {
			case <-stream.Closed():
				return
			case err := <-sub.Err():
				stream.Fail(err)
				return
			case log := <-logs:
				if ev, ok := DecodeVaultEvent(vault, log); ok {
					stream.Send(ctx, ev)
				}
			}
		}
	}()

	return stream, nil
}

func (c *Client) pollLogs(ctx context.Context, vault *contracts.Vault) (subscription.Subscription[VaultEvent], error) {
	currentBlock, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	interval := c.network.PollingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	gauge := metrics.SubscriptionsActive.WithLabelValues(c.network.Ref().String())
	gauge.Inc()
	stream := subscription.NewStream[VaultEvent](vaultEventBuffer, func() error {
		gauge.Dec()
		return nil
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stream.Closed():
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				latestBlock, err := c.BlockNumber(ctx)
				if err != nil {
					c.logger.Warn("Failed to get latest block", zap.Error(err))
					continue
				}
				if latestBlock <= currentBlock {
					continue
				}

				events, err := c.filterVaultEvents(ctx, vault.Address(), currentBlock+1, latestBlock)
				if err != nil {
					c.logger.Warn("Failed to filter vault events", zap.Error(err))
					continue
				}
				for _, ev := range events {
					if !stream.Send(ctx, ev) {
						return
					}
				}
				currentBlock = latestBlock
			}
		}
	}()

	return stream, nil
}

// DecodeVaultEvent decodes log as one of the vault events, reporting false for anything else.
func DecodeVaultEvent(vault *contracts.Vault, log types.Log) (VaultEvent, bool) {
	ev := VaultEvent{
		Name:        vault.EventName(log),
		Vault:       log.Address,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}

	switch ev.Name {
	case contracts.EventWithdraw:
		w, err := vault.ParseWithdraw(log)
		if err != nil {
			return VaultEvent{}, false
		}
		ev.PayloadID = common.Hash(w.PayloadId)
		ev.Token = w.Token
		ev.Recipient = w.Recipient
		ev.Amount = w.Amount
		ev.Fee = w.Fee
	case contracts.EventPendingWithdrawalCreated:
		p, err := vault.ParsePendingWithdrawalCreated(log)
		if err != nil {
			return VaultEvent{}, false
		}
		ev.PayloadID = common.Hash(p.PayloadId)
		ev.Recipient = p.Recipient
		ev.PendingID = p.Id
		ev.Token = p.Token
		ev.Amount = p.Amount
	case contracts.EventPendingWithdrawalBounty:
		b, err := vault.ParsePendingWithdrawalBounty(log)
		if err != nil {
			return VaultEvent{}, false
		}
		ev.Recipient = b.Recipient
		ev.PendingID = b.Id
		ev.Bounty = b.Bounty
	case contracts.EventPendingWithdrawalForce:
		f, err := vault.ParsePendingWithdrawalForce(log)
		if err != nil {
			return VaultEvent{}, false
		}
		ev.Recipient = f.Recipient
		ev.PendingID = f.Id
	default:
		return VaultEvent{}, false
	}
	return ev, true
}

package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
)

// Pool routes calls to the client of the addressed EVM network.
type Pool map[network.ChainRef]*Client

// Client returns the client for ref.
func (p Pool) Client(ref network.ChainRef) (*Client, error) {
	c, ok := p[ref]
	if !ok {
		return nil, fmt.Errorf("%w: no EVM client for %s", network.ErrUnknownNetwork, ref)
	}
	return c, nil
}

// VaultFigures reads the figures of token in vault on ref.
func (p Pool) VaultFigures(ctx context.Context, ref network.ChainRef, vault, token string) (VaultFigures, error) {
	c, err := p.Client(ref)
	if err != nil {
		return VaultFigures{}, err
	}
	if !common.IsHexAddress(vault) || !common.IsHexAddress(token) {
		return VaultFigures{}, fmt.Errorf("invalid vault %q or token %q", vault, token)
	}
	return c.VaultFigures(ctx, common.HexToAddress(vault), common.HexToAddress(token))
}

// PendingWithdrawal reads a pending withdrawal record on ref.
func (p Pool) PendingWithdrawal(ctx context.Context, ref network.ChainRef, vault, recipient string, id *big.Int) (PendingWithdrawal, error) {
	c, err := p.Client(ref)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	return c.PendingWithdrawal(ctx, common.HexToAddress(vault), common.HexToAddress(recipient), id)
}

// FindVaultEvents returns the recent events of vault on ref.
func (p Pool) FindVaultEvents(ctx context.Context, ref network.ChainRef, vault string) ([]VaultEvent, error) {
	c, err := p.Client(ref)
	if err != nil {
		return nil, err
	}
	return c.FindVaultEvents(ctx, common.HexToAddress(vault), DefaultLookbackBlocks)
}

// SubscribeVaultEvents streams the events of vault on ref.
func (p Pool) SubscribeVaultEvents(ctx context.Context, ref network.ChainRef, vault string) (subscription.Subscription[VaultEvent], error) {
	c, err := p.Client(ref)
	if err != nil {
		return nil, err
	}
	return c.SubscribeVaultEvents(ctx, common.HexToAddress(vault))
}

// Close closes every client.
func (p Pool) Close() {
	for _, c := range p {
		c.Close()
	}
}

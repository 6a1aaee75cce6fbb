package transfer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainsafe/bridge-tracker/pkg/credit"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	sol "github.com/chainsafe/bridge-tracker/pkg/solana"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
	"github.com/chainsafe/bridge-tracker/pkg/withdrawal"
)

// EVMChain is the EVM read surface the stage trackers use.
type EVMChain interface {
	withdrawal.Vault
	BlockNumber(ctx context.Context) (uint64, error)
	Deposit(ctx context.Context, hash common.Hash) (*ethereum.DepositEvent, *types.Receipt, error)
}

// TVMChain is the TVM read surface the stage trackers use.
type TVMChain interface {
	credit.Reader
	Transaction(ctx context.Context, hash string) (*tvm.Transaction, error)
	FindTransactions(ctx context.Context, address string, limit int) ([]tvm.Transaction, error)
	EventDetails(ctx context.Context, address string) (tvm.EventDetails, error)
	DeriveEventAddress(ctx context.Context, configuration string, voteData map[string]any) (string, error)
	SubscribeTransactions(ctx context.Context, address string) (subscription.Subscription[tvm.Transaction], error)
}

// SolanaChain is the Solana read surface the stage trackers use.
type SolanaChain interface {
	SignatureStatus(ctx context.Context, signature string) (*sol.SignatureStatus, error)
	AccountExists(ctx context.Context, address string) (bool, error)
	FindProgramLogs(ctx context.Context, program string, limit int) ([]sol.ProgramLog, error)
	SubscribeProgramLogs(ctx context.Context, program string) (subscription.Subscription[sol.ProgramLog], error)
}

// Clients holds the chain clients by network.
type Clients struct {
	EVM    map[network.ChainRef]EVMChain
	TVM    map[network.ChainRef]TVMChain
	Solana map[network.ChainRef]SolanaChain
}

func (c Clients) evm(ref network.ChainRef) (EVMChain, error) {
	if cl, ok := c.EVM[ref]; ok {
		return cl, nil
	}
	return nil, fmt.Errorf("%w: no evm client for %s", network.ErrUnknownNetwork, ref)
}

func (c Clients) tvm(ref network.ChainRef) (TVMChain, error) {
	if cl, ok := c.TVM[ref]; ok {
		return cl, nil
	}
	return nil, fmt.Errorf("%w: no tvm client for %s", network.ErrUnknownNetwork, ref)
}

func (c Clients) solana(ref network.ChainRef) (SolanaChain, error) {
	if cl, ok := c.Solana[ref]; ok {
		return cl, nil
	}
	return nil, fmt.Errorf("%w: no solana client for %s", network.ErrUnknownNetwork, ref)
}

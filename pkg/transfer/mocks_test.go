package transfer

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/gas"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	sol "github.com/chainsafe/bridge-tracker/pkg/solana"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
)

// MockEVMChain is a mock implementation of EVMChain
type MockEVMChain struct {
	DepositFunc           func(ctx context.Context, hash common.Hash) (*ethereum.DepositEvent, *types.Receipt, error)
	BlockNumberFunc       func(ctx context.Context) (uint64, error)
	FindVaultEventsFunc   func(ctx context.Context, vault common.Address, lookback uint64) ([]ethereum.VaultEvent, error)
	PendingWithdrawalFunc func(ctx context.Context, vault, recipient common.Address, id *big.Int) (ethereum.PendingWithdrawal, error)
}

func (m *MockEVMChain) Deposit(ctx context.Context, hash common.Hash) (*ethereum.DepositEvent, *types.Receipt, error) {
	if m.DepositFunc != nil {
		return m.DepositFunc(ctx, hash)
	}
	return nil, nil, nil
}

func (m *MockEVMChain) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFunc != nil {
		return m.BlockNumberFunc(ctx)
	}
	return 0, nil
}

func (m *MockEVMChain) FindVaultEvents(ctx context.Context, vault common.Address, lookback uint64) ([]ethereum.VaultEvent, error) {
	if m.FindVaultEventsFunc != nil {
		return m.FindVaultEventsFunc(ctx, vault, lookback)
	}
	return nil, nil
}

func (m *MockEVMChain) PendingWithdrawal(ctx context.Context, vault, recipient common.Address, id *big.Int) (ethereum.PendingWithdrawal, error) {
	if m.PendingWithdrawalFunc != nil {
		return m.PendingWithdrawalFunc(ctx, vault, recipient, id)
	}
	return ethereum.PendingWithdrawal{ID: id, Bounty: new(big.Int)}, nil
}

func (m *MockEVMChain) SubscribeVaultEvents(context.Context, common.Address) (subscription.Subscription[ethereum.VaultEvent], error) {
	return subscription.NewStream[ethereum.VaultEvent](1, nil), nil
}

// MockTVMChain is a mock implementation of TVMChain
type MockTVMChain struct {
	TransactionFunc        func(ctx context.Context, hash string) (*tvm.Transaction, error)
	FindTransactionsFunc   func(ctx context.Context, address string, limit int) ([]tvm.Transaction, error)
	EventDetailsFunc       func(ctx context.Context, address string) (tvm.EventDetails, error)
	DeriveEventAddressFunc func(ctx context.Context, configuration string, voteData map[string]any) (string, error)
	ContractStateFunc      func(ctx context.Context, address string) (tvm.ContractState, error)
	RunGetterFunc          func(ctx context.Context, address, method string, params map[string]any, out any) error
}

func (m *MockTVMChain) Transaction(ctx context.Context, hash string) (*tvm.Transaction, error) {
	if m.TransactionFunc != nil {
		return m.TransactionFunc(ctx, hash)
	}
	return nil, nil
}

func (m *MockTVMChain) FindTransactions(ctx context.Context, address string, limit int) ([]tvm.Transaction, error) {
	if m.FindTransactionsFunc != nil {
		return m.FindTransactionsFunc(ctx, address, limit)
	}
	return nil, nil
}

func (m *MockTVMChain) EventDetails(ctx context.Context, address string) (tvm.EventDetails, error) {
	if m.EventDetailsFunc != nil {
		return m.EventDetailsFunc(ctx, address)
	}
	return tvm.EventDetails{}, tvm.ErrNotDeployed
}

func (m *MockTVMChain) DeriveEventAddress(ctx context.Context, configuration string, voteData map[string]any) (string, error) {
	if m.DeriveEventAddressFunc != nil {
		return m.DeriveEventAddressFunc(ctx, configuration, voteData)
	}
	return "", nil
}

func (m *MockTVMChain) ContractState(ctx context.Context, address string) (tvm.ContractState, error) {
	if m.ContractStateFunc != nil {
		return m.ContractStateFunc(ctx, address)
	}
	return tvm.ContractState{Address: address}, nil
}

func (m *MockTVMChain) RunGetter(ctx context.Context, address, method string, params map[string]any, out any) error {
	if m.RunGetterFunc != nil {
		return m.RunGetterFunc(ctx, address, method, params, out)
	}
	return tvm.ErrNotDeployed
}

func (m *MockTVMChain) SubscribeTransactions(context.Context, string) (subscription.Subscription[tvm.Transaction], error) {
	return subscription.NewStream[tvm.Transaction](1, nil), nil
}

// MockSolanaChain is a mock implementation of SolanaChain
type MockSolanaChain struct {
	SignatureStatusFunc func(ctx context.Context, signature string) (*sol.SignatureStatus, error)
	AccountExistsFunc   func(ctx context.Context, address string) (bool, error)
	FindProgramLogsFunc func(ctx context.Context, program string, limit int) ([]sol.ProgramLog, error)
}

func (m *MockSolanaChain) SignatureStatus(ctx context.Context, signature string) (*sol.SignatureStatus, error) {
	if m.SignatureStatusFunc != nil {
		return m.SignatureStatusFunc(ctx, signature)
	}
	return nil, nil
}

func (m *MockSolanaChain) AccountExists(ctx context.Context, address string) (bool, error) {
	if m.AccountExistsFunc != nil {
		return m.AccountExistsFunc(ctx, address)
	}
	return false, nil
}

func (m *MockSolanaChain) FindProgramLogs(ctx context.Context, program string, limit int) ([]sol.ProgramLog, error) {
	if m.FindProgramLogsFunc != nil {
		return m.FindProgramLogsFunc(ctx, program, limit)
	}
	return nil, nil
}

func (m *MockSolanaChain) SubscribeProgramLogs(context.Context, string) (subscription.Subscription[sol.ProgramLog], error) {
	return subscription.NewStream[sol.ProgramLog](1, nil), nil
}

// MockResolver is a mock implementation of Resolver
type MockResolver struct {
	ResolveByIdentityFunc func(ctx context.Context, source, destination network.ChainRef, hints pipeline.Hints) (*pipeline.Pipeline, error)
	RefreshFunc           func(ctx context.Context, p *pipeline.Pipeline) *pipeline.Pipeline

	mu    sync.Mutex
	hints []pipeline.Hints
}

func (m *MockResolver) ResolveByIdentity(ctx context.Context, source, destination network.ChainRef, hints pipeline.Hints) (*pipeline.Pipeline, error) {
	m.mu.Lock()
	m.hints = append(m.hints, hints)
	m.mu.Unlock()
	if m.ResolveByIdentityFunc != nil {
		return m.ResolveByIdentityFunc(ctx, source, destination, hints)
	}
	return nil, pipeline.ErrNotFound
}

func (m *MockResolver) Refresh(ctx context.Context, p *pipeline.Pipeline) *pipeline.Pipeline {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, p)
	}
	return p
}

func (m *MockResolver) Hints() []pipeline.Hints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipeline.Hints(nil), m.hints...)
}

// MockStore is a mock implementation of Store that records every saved snapshot
type MockStore struct {
	ListOpenFunc func(ctx context.Context, limit int) ([]Snapshot, error)

	mu    sync.Mutex
	saved []Snapshot
}

func (m *MockStore) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, s)
	return nil
}

func (m *MockStore) ListOpen(ctx context.Context, limit int) ([]Snapshot, error) {
	if m.ListOpenFunc != nil {
		return m.ListOpenFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockStore) Saved() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.saved...)
}

// MockEstimator is a mock implementation of Estimator
type MockEstimator struct {
	Locked bool
}

func (m *MockEstimator) Watch(_ context.Context, p *pipeline.Pipeline) gas.Estimate {
	return gas.Estimate{Route: p.Route(), Locked: m.Locked}
}

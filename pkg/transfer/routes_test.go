package transfer

import (
	"bytes"
	"context"
	"math/big"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mr-tron/base58"

	"github.com/chainsafe/bridge-tracker/pkg/chain/chaintest"
	"github.com/chainsafe/bridge-tracker/pkg/credit"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum/contracts"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	sol "github.com/chainsafe/bridge-tracker/pkg/solana"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
)

const (
	testFactory   = "0:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testProcessor = "0:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testOutEvent  = "0:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	testOutProxy  = "0:5555555555555555555555555555555555555555555555555555555555555555"
)

var (
	bscRef    = network.NewChainRef(network.KindEVM, "56")
	solanaRef = network.NewChainRef(network.KindSolana, "101")

	solRecipient = base58.Encode(bytes.Repeat([]byte{1}, 32))
	solMint      = base58.Encode(bytes.Repeat([]byte{2}, 32))
	solProgram   = base58.Encode(bytes.Repeat([]byte{3}, 32))
	solSettings  = base58.Encode(bytes.Repeat([]byte{4}, 32))
	solSignature = base58.Encode(bytes.Repeat([]byte{7}, 64))
)

// withAllNetworks adds a second EVM network and a Solana network to the fixture.
func (f *fixture) withAllNetworks(t *testing.T) (*MockEVMChain, *MockSolanaChain) {
	t.Helper()
	networks, err := network.NewRegistry(
		network.Network{Kind: network.KindEVM, ChainID: "1", Name: "Ethereum", ConfirmationBlocks: 2, PollingInterval: 5 * time.Millisecond},
		network.Network{Kind: network.KindEVM, ChainID: "56", Name: "BNB Chain", ConfirmationBlocks: 2, PollingInterval: 5 * time.Millisecond},
		network.Network{Kind: network.KindTVM, ChainID: "42", Name: "TVM", ConfirmationBlocks: 1, PollingInterval: 5 * time.Millisecond},
		network.Network{Kind: network.KindSolana, ChainID: "101", Name: "Solana", PollingInterval: 5 * time.Millisecond},
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	bsc, solana := &MockEVMChain{}, &MockSolanaChain{}
	f.cfg.Networks = networks
	f.cfg.Clients.EVM[bscRef] = bsc
	f.cfg.Clients.Solana = map[network.ChainRef]SolanaChain{solanaRef: solana}
	return bsc, solana
}

// evmToTvmCredit wires a gas-less deposit whose processor is deployed right away and reports
// the given state register and deadline.
func (f *fixture) evmToTvmCredit(state *atomic.Int32, deadline int64) {
	f.resolver.ResolveByIdentityFunc = func(_ context.Context, source, destination network.ChainRef, _ pipeline.Hints) (*pipeline.Pipeline, error) {
		return &pipeline.Pipeline{
			Source:      source,
			Destination: destination,
			TokenBase:   pipeline.BaseSource,
			SourceToken: testToken,
			Variant: pipeline.EvmToTvmCredit{
				CreditFactory:     testFactory,
				Configuration:     testConfiguration,
				FallbackAvailable: true,
			},
		}, nil
	}
	f.evm.DepositFunc = func(_ context.Context, hash common.Hash) (*ethereum.DepositEvent, *types.Receipt, error) {
		return &ethereum.DepositEvent{
			Token:         common.HexToAddress(testToken),
			Sender:        common.HexToAddress(testStranger),
			RecipientAddr: big.NewInt(0xbeef),
			Amount:        big.NewInt(100),
			ExpectedGas:   big.NewInt(5),
			BlockNumber:   10,
			TxHash:        hash,
		}, &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
	}
	f.evm.BlockNumberFunc = func(context.Context) (uint64, error) { return 11, nil }
	f.tvm.DeriveEventAddressFunc = func(context.Context, string, map[string]any) (string, error) { return testEvent, nil }
	f.tvm.FindTransactionsFunc = func(_ context.Context, address string, _ int) ([]tvm.Transaction, error) {
		if address != testFactory {
			return nil, nil
		}
		return []tvm.Transaction{{
			Hash: "processor-deploy",
			Events: []tvm.Event{{
				Name: tvm.EventProcessorDeployed,
				Data: map[string]any{"eventContract": testEvent, "processor": testProcessor},
			}},
		}}, nil
	}
	f.tvm.ContractStateFunc = func(_ context.Context, address string) (tvm.ContractState, error) {
		return tvm.ContractState{Address: address, Deployed: address == testProcessor}, nil
	}
	f.tvm.RunGetterFunc = func(_ context.Context, address, _ string, _ map[string]any, out any) error {
		if address != testProcessor {
			return tvm.ErrNotDeployed
		}
		// gateway integers arrive as strings
		return tvm.Decode(map[string]any{
			"state":    strconv.Itoa(int(state.Load())),
			"deadline": strconv.FormatInt(deadline, 10),
		}, out)
	}
}

func TestContext_EvmToTvmCredit_Processed(t *testing.T) {
	f := newFixture(t)
	var state atomic.Int32
	state.Store(int32(credit.StatusEventConfirmed))
	f.evmToTvmCredit(&state, time.Now().Add(time.Hour).Unix())
	m := f.manager(t)

	c, err := m.Open(context.Background(), "evm-1", "tvm-42", testDepositHash)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eventually(t, "credit release stage", func() bool { return c.Snapshot().Release.Status == StatusPending })

	snap := c.Snapshot()
	if snap.Route != "evm_tvm_credit" {
		t.Fatalf("expected route evm_tvm_credit, got %q", snap.Route)
	}
	if snap.Prepare.Status != StatusConfirmed || snap.Prepare.TxID != "processor-deploy" {
		t.Fatalf("unexpected prepare stage %+v", snap.Prepare)
	}
	if snap.Prepare.IsDeployed == nil || !*snap.Prepare.IsDeployed {
		t.Fatalf("expected a deployed processor, got %+v", snap.Prepare)
	}
	if snap.Details.Processor != testProcessor || snap.Details.EventAddress != testEvent {
		t.Fatalf("unexpected details %+v", snap.Details)
	}
	if snap.Transfer.Status != StatusConfirmed {
		t.Fatalf("unexpected transfer stage %+v", snap.Transfer)
	}
	if snap.Event.Status != StatusConfirmed || snap.Event.TxID != testEvent {
		t.Fatalf("unexpected event stage %+v", snap.Event)
	}
	if snap.Credit == nil || !snap.Credit.Deployed || snap.Credit.TTL == nil {
		t.Fatalf("unexpected credit state %+v", snap.Credit)
	}
	if hints := f.resolver.Hints(); len(hints) == 0 || !hints[0].Credit {
		t.Fatalf("expected a credit hint for a deposit with expected gas, got %+v", hints)
	}

	ctx := context.Background()
	if c.Release(ctx, chaintest.NewWallet(testRecipient, evmRef), nil) {
		t.Fatalf("fallback release from the source network must be refused")
	}
	w := chaintest.NewWallet(testRecipient, tvmRef)
	if !c.Release(ctx, w, nil) {
		t.Fatalf("expected the fallback release to be sent")
	}
	if calls := w.Calls(); len(calls) != 1 || calls[0].To != testProcessor || calls[0].Method != "releaseFallback" {
		t.Fatalf("unexpected calls %+v", calls)
	}

	state.Store(int32(credit.StatusProcessed))
	eventually(t, "processed transfer", func() bool { return c.Snapshot().Terminal() })
	if snap := c.Snapshot(); snap.Release.Status != StatusConfirmed || snap.Release.TxID != testProcessor {
		t.Fatalf("unexpected release stage %+v", snap.Release)
	}
	assertOrdered(t, f.store.Saved())
}

func TestContext_EvmToTvmCredit_ReleaseAfterExpiry(t *testing.T) {
	f := newFixture(t)
	var state atomic.Int32
	state.Store(int32(credit.StatusEventConfirmed))
	f.evmToTvmCredit(&state, time.Now().Add(-time.Minute).Unix())
	m := f.manager(t)

	c, err := m.Open(context.Background(), "evm-1", "tvm-42", testDepositHash)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eventually(t, "expired processor", func() bool { return c.Snapshot().Release.Note == "processor expired" })

	snap := c.Snapshot()
	if snap.Release.Status != StatusPending || snap.Terminal() {
		t.Fatalf("an expired processor keeps the release pending: %+v", snap.Release)
	}
	if snap.Credit == nil || !snap.Credit.IsExpired {
		t.Fatalf("expected an expired credit state, got %+v", snap.Credit)
	}

	ctx := context.Background()
	w := chaintest.NewWallet(testRecipient, tvmRef)
	if c.Release(ctx, w, nil) {
		t.Fatalf("fallback release must be refused once the TTL passed")
	}
	if len(w.Calls()) != 0 {
		t.Fatalf("refused release must not send anything")
	}
	if !c.Cancel(ctx, w) {
		t.Fatalf("expected an expired processor to be cancellable")
	}
	if calls := w.Calls(); len(calls) != 1 || calls[0].Method != "cancel" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestContext_EvmToTvmCredit_Outdated(t *testing.T) {
	f := newFixture(t)
	var state atomic.Int32
	f.evmToTvmCredit(&state, 0)
	// the factory never deploys the processor of a deposit confirmed long ago
	f.evm.BlockNumberFunc = func(context.Context) (uint64, error) { return 100, nil }
	f.tvm.FindTransactionsFunc = func(context.Context, string, int) ([]tvm.Transaction, error) { return nil, nil }
	m := f.manager(t)

	c, err := m.Open(context.Background(), "evm-1", "tvm-42", testDepositHash)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eventually(t, "outdated prepare stage", func() bool { return c.Snapshot().Prepare.IsOutdated })

	snap := c.Snapshot()
	if snap.Prepare.Status != StatusPending || snap.Transfer.Status != StatusDisabled {
		t.Fatalf("an undeployed processor holds the transfer at prepare: %+v", snap)
	}
	if snap.Details.EventAddress != testEvent {
		t.Fatalf("expected the event address to be derived, got %q", snap.Details.EventAddress)
	}

	w := chaintest.NewWallet(testRecipient, tvmRef)
	if !c.Broadcast(context.Background(), w) {
		t.Fatalf("expected an outdated processor to be broadcast")
	}
	calls := w.Calls()
	if len(calls) != 1 || calls[0].To != testFactory || calls[0].Method != "deployProcessor" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls[0].Params["eventVoteData"] == nil {
		t.Fatalf("broadcast must carry the deposit vote data, got %+v", calls[0].Params)
	}
}

func TestContext_EvmToEvm_SwitchesToOutgoingEvent(t *testing.T) {
	f := newFixture(t)
	bsc, _ := f.withAllNetworks(t)
	f.evmToTvm()
	f.resolver.ResolveByIdentityFunc = func(_ context.Context, source, destination network.ChainRef, _ pipeline.Hints) (*pipeline.Pipeline, error) {
		return &pipeline.Pipeline{
			Source:           source,
			Destination:      destination,
			TokenBase:        pipeline.BaseSource,
			SourceToken:      testToken,
			DestinationToken: testToken,
			VaultAddress:     testVault,
			WithdrawFee:      new(big.Int),
			VaultBalance:     big.NewInt(1_000_000),
			Variant: pipeline.EvmToEvm{
				Transit:  tvmRef,
				Incoming: pipeline.EvmToTvm{Configuration: testConfiguration, Proxy: testProxy},
				Outgoing: pipeline.TvmToEvm{Proxy: testOutProxy, Configuration: testConfiguration},
			},
		}, nil
	}
	f.tvm.ContractStateFunc = func(_ context.Context, address string) (tvm.ContractState, error) {
		return tvm.ContractState{Address: address, Deployed: true}, nil
	}
	f.tvm.EventDetailsFunc = func(_ context.Context, address string) (tvm.EventDetails, error) {
		d := tvm.EventDetails{Status: tvm.EventConfirmed, Confirms: []string{"relay-1"}, RequiredVotes: 1}
		if address == testOutEvent {
			d.Recipient, d.Payload, d.Signatures = testRecipient, testPayload, []string{"0x01"}
		}
		return d, nil
	}
	f.tvm.FindTransactionsFunc = func(_ context.Context, address string, _ int) ([]tvm.Transaction, error) {
		if address != testOutProxy {
			return nil, nil
		}
		return []tvm.Transaction{{
			Hash:            "transit-hash",
			InMessageSource: testEvent,
			Events: []tvm.Event{{
				Name: tvm.EventOutgoingTransfer,
				Data: map[string]any{"eventContract": testOutEvent, "recipient": testRecipient},
			}},
		}}, nil
	}
	bsc.FindVaultEventsFunc = func(context.Context, common.Address, uint64) ([]ethereum.VaultEvent, error) {
		return []ethereum.VaultEvent{{
			Name:      contracts.EventWithdraw,
			PayloadID: testPayloadID(),
			TxHash:    common.HexToHash("0x99"),
		}}, nil
	}
	m := f.manager(t)

	c, err := m.Open(context.Background(), "evm-1", "evm-56", testDepositHash)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eventually(t, "terminal transfer", func() bool { return c.Snapshot().Terminal() })

	snap := c.Snapshot()
	if snap.Route != "evm_evm" {
		t.Fatalf("expected route evm_evm, got %q", snap.Route)
	}
	if snap.Event.Status != StatusConfirmed || snap.Event.TxID != testOutEvent {
		t.Fatalf("the event stage must settle on the outgoing event: %+v", snap.Event)
	}
	if snap.Details.TransitEvent != testEvent || snap.Details.EventAddress != testOutEvent {
		t.Fatalf("unexpected details %+v", snap.Details)
	}
	if snap.Details.Recipient != testRecipient {
		t.Fatalf("expected the outgoing recipient, got %q", snap.Details.Recipient)
	}
	if snap.Release.Status != StatusConfirmed || snap.Release.TxID != common.HexToHash("0x99").Hex() {
		t.Fatalf("unexpected release stage %+v", snap.Release)
	}
	if snap.PendingWithdrawal != nil {
		t.Fatalf("a liquid vault pays out instantly, got %+v", snap.PendingWithdrawal)
	}

	for i, s := range f.store.Saved() {
		if s.Event.Status == StatusConfirmed && s.Event.TxID != testOutEvent {
			t.Fatalf("snapshot %d: the incoming event must not confirm the stage", i)
		}
	}
	assertOrdered(t, f.store.Saved())
}

func TestContext_TvmToSolana_PrepareAndRelease(t *testing.T) {
	f := newFixture(t)
	_, solana := f.withAllNetworks(t)
	f.resolver.ResolveByIdentityFunc = func(_ context.Context, source, destination network.ChainRef, _ pipeline.Hints) (*pipeline.Pipeline, error) {
		return &pipeline.Pipeline{
			Source:           source,
			Destination:      destination,
			TokenBase:        pipeline.BaseDestination,
			DestinationToken: solMint,
			Variant:          pipeline.TvmToSolana{Proxy: testProxy, Program: solProgram, Settings: solSettings},
		}, nil
	}
	f.tvm.TransactionFunc = func(_ context.Context, hash string) (*tvm.Transaction, error) {
		return &tvm.Transaction{
			Hash:    hash,
			Account: testProxy,
			Events: []tvm.Event{{
				Name: tvm.EventOutgoingTransfer,
				Data: map[string]any{
					"token":         testToken,
					"amount":        "100",
					"recipient":     solRecipient,
					"eventContract": testEvent,
				},
			}},
		}, nil
	}
	f.tvm.EventDetailsFunc = func(context.Context, string) (tvm.EventDetails, error) {
		return tvm.EventDetails{Status: tvm.EventConfirmed, Confirms: []string{"relay-1"}, RequiredVotes: 1}, nil
	}
	account, err := sol.TokenAccount(solRecipient, solMint)
	if err != nil {
		t.Fatalf("TokenAccount failed: %v", err)
	}
	var exists, released atomic.Bool
	solana.AccountExistsFunc = func(_ context.Context, address string) (bool, error) {
		return address == account && exists.Load(), nil
	}
	solana.FindProgramLogsFunc = func(_ context.Context, program string, _ int) ([]sol.ProgramLog, error) {
		if program != solProgram || !released.Load() {
			return nil, nil
		}
		return []sol.ProgramLog{
			{Signature: "other", Logs: []string{"Program log: withdraw 0123"}},
			{Signature: "sol-release", Logs: []string{"Program log: withdraw " + testEvent[2:]}},
		}, nil
	}
	m := f.manager(t)

	c, err := m.Open(context.Background(), "tvm-42", "solana-101", testTVMHash)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eventually(t, "missing token account", func() bool {
		st := c.Snapshot().Prepare
		return st.Status == StatusPending && st.IsDeployed != nil && !*st.IsDeployed
	})

	ctx := context.Background()
	if c.Prepare(ctx, chaintest.NewWallet(solRecipient, tvmRef)) {
		t.Fatalf("prepare from the source network must be refused")
	}
	w := chaintest.NewWallet(solRecipient, solanaRef)
	if !c.Prepare(ctx, w) {
		t.Fatalf("expected the token account to be created")
	}
	if !c.Snapshot().Prepare.IsDeploying {
		t.Fatalf("expected prepare to be deploying")
	}
	if c.Prepare(ctx, w) {
		t.Fatalf("a prepare already in flight must not be sent twice")
	}
	if calls := w.Calls(); len(calls) != 1 || calls[0].Accounts[1].Address != account {
		t.Fatalf("unexpected prepare calls %+v", calls)
	}

	exists.Store(true)
	eventually(t, "pending release", func() bool { return c.Snapshot().Release.Status == StatusPending })
	if st := c.Snapshot().Prepare; st.Status != StatusConfirmed || st.TxID != account {
		t.Fatalf("unexpected prepare stage %+v", st)
	}

	if !c.Release(ctx, w, nil) {
		t.Fatalf("expected the solana release to be sent")
	}
	calls := w.Calls()
	if len(calls) != 2 || calls[1].To != solProgram || len(calls[1].Data) != 33 {
		t.Fatalf("unexpected release calls %+v", calls)
	}
	if calls[1].Accounts[2].Address != account {
		t.Fatalf("release must pay the recipient token account, got %+v", calls[1].Accounts)
	}

	released.Store(true)
	eventually(t, "terminal transfer", func() bool { return c.Snapshot().Terminal() })
	if st := c.Snapshot().Release; st.Status != StatusConfirmed || st.TxID != "sol-release" {
		t.Fatalf("unexpected release stage %+v", st)
	}
	assertOrdered(t, f.store.Saved())
}

func TestContext_SolanaToTvm(t *testing.T) {
	f := newFixture(t)
	_, solana := f.withAllNetworks(t)
	f.evmToTvm()
	f.resolver.ResolveByIdentityFunc = func(_ context.Context, source, destination network.ChainRef, _ pipeline.Hints) (*pipeline.Pipeline, error) {
		return &pipeline.Pipeline{
			Source:      source,
			Destination: destination,
			TokenBase:   pipeline.BaseSource,
			SourceToken: solMint,
			Variant:     pipeline.SolanaToTvm{Program: solProgram, Configuration: testConfiguration, Proxy: testProxy},
		}, nil
	}
	var polls atomic.Int32
	solana.SignatureStatusFunc = func(_ context.Context, signature string) (*sol.SignatureStatus, error) {
		if signature != solSignature {
			return nil, nil
		}
		if polls.Add(1) == 1 {
			return &sol.SignatureStatus{Slot: 99, Confirmations: 5}, nil
		}
		return &sol.SignatureStatus{Slot: 99, Finalized: true}, nil
	}
	var voteData atomic.Value
	f.tvm.DeriveEventAddressFunc = func(_ context.Context, _ string, data map[string]any) (string, error) {
		voteData.Store(data)
		return testEvent, nil
	}
	m := f.manager(t)

	c, err := m.Open(context.Background(), "solana-101", "tvm-42", solSignature)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eventually(t, "terminal transfer", func() bool { return c.Snapshot().Terminal() })

	snap := c.Snapshot()
	if !snap.Prepare.Skipped {
		t.Fatalf("expected prepare to be skipped")
	}
	if snap.Transfer.Status != StatusConfirmed || snap.Transfer.TxID != solSignature || snap.Transfer.Confirmations != 5 {
		t.Fatalf("unexpected transfer stage %+v", snap.Transfer)
	}
	if snap.Event.Status != StatusConfirmed || snap.Event.TxID != testEvent {
		t.Fatalf("unexpected event stage %+v", snap.Event)
	}
	if snap.Release.Status != StatusConfirmed || snap.Release.TxID != "release-hash" {
		t.Fatalf("unexpected release stage %+v", snap.Release)
	}
	data, _ := voteData.Load().(map[string]any)
	if data["eventTransaction"] != solSignature || data["eventSlot"] != uint64(99) {
		t.Fatalf("event address must be derived from the finalized signature, got %+v", data)
	}
	assertOrdered(t, f.store.Saved())
}

func TestContext_SolanaToTvm_FailedSignature(t *testing.T) {
	f := newFixture(t)
	_, solana := f.withAllNetworks(t)
	f.resolver.ResolveByIdentityFunc = func(_ context.Context, source, destination network.ChainRef, _ pipeline.Hints) (*pipeline.Pipeline, error) {
		return &pipeline.Pipeline{
			Source:      source,
			Destination: destination,
			Variant:     pipeline.SolanaToTvm{Program: solProgram, Configuration: testConfiguration, Proxy: testProxy},
		}, nil
	}
	solana.SignatureStatusFunc = func(context.Context, string) (*sol.SignatureStatus, error) {
		return &sol.SignatureStatus{Slot: 99, Err: "InstructionError"}, nil
	}
	m := f.manager(t)

	c, err := m.Open(context.Background(), "solana-101", "tvm-42", solSignature)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	eventually(t, "rejected transfer", func() bool { return c.Snapshot().Transfer.Status == StatusRejected })
	if snap := c.Snapshot(); snap.Transfer.Note != "InstructionError" || snap.Event.Status != StatusDisabled {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

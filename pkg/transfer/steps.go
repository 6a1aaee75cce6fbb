package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum/contracts"
	"github.com/chainsafe/bridge-tracker/pkg/identifier"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	sol "github.com/chainsafe/bridge-tracker/pkg/solana"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
)

const programLogLookup = 50

var errUnknownTarget = errors.New("tracked contract not known yet")

// evmDeposit follows the source deposit transaction until it has the network's required
// confirmations.
func (c *Context) evmDeposit(ref network.ChainRef, client EVMChain) Step {
	required := c.requiredConfirmations(ref)
	hash := common.HexToHash(c.tuple.ID)

	return PollTracker{
		Name:     "evm_deposit",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(ctx context.Context) (Observation, error) {
			dep, conf, o, err := c.readDeposit(ctx, client, hash, required)
			if err != nil || dep == nil {
				return o, err
			}
			c.sourceConfirmations(conf, required)
			return o, nil
		},
	}
}

// readDeposit reads the deposit of hash and classifies it. dep is nil while the transaction
// is not mined or when it was rejected.
func (c *Context) readDeposit(ctx context.Context, client EVMChain, hash common.Hash, required uint64) (*ethereum.DepositEvent, uint64, Observation, error) {
	dep, receipt, err := client.Deposit(ctx, hash)
	if err != nil {
		return nil, 0, Observation{}, err
	}
	if receipt == nil {
		return nil, 0, Pending(), nil
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, 0, Rejected("transaction reverted"), nil
	}
	if dep == nil {
		return nil, 0, Rejected("transaction emitted no vault deposit"), nil
	}
	c.learnDeposit(dep)

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, 0, Observation{}, err
	}
	var conf uint64
	if head >= dep.BlockNumber {
		conf = head - dep.BlockNumber + 1
	}

	o := Observation{
		Status:                StatusPending,
		Confirmations:         conf,
		RequiredConfirmations: required,
		TxID:                  hash.Hex(),
	}
	if conf >= required {
		o.Status = StatusConfirmed
	}
	return dep, conf, o, nil
}

func (c *Context) learnDeposit(dep *ethereum.DepositEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &c.details
	d.Token = dep.Token.Hex()
	d.Amount = copyInt(dep.Amount)
	d.Sender = dep.Sender.Hex()
	if dep.RecipientAddr != nil {
		d.Recipient = fmt.Sprintf("%d:%064x", dep.RecipientWid, dep.RecipientAddr)
	}
	d.voteData = map[string]any{
		"eventTransaction": dep.TxHash.Hex(),
		"eventIndex":       dep.LogIndex,
		"eventBlockNumber": dep.BlockNumber,
	}
}

// contractProof confirms a source transfer through the TVM contract it created. It is used
// when the transfer is addressed by that contract instead of the source transaction.
func (c *Context) contractProof(ref network.ChainRef, client TVMChain, address string) Step {
	return PollTracker{
		Name:     "contract_proof",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(ctx context.Context) (Observation, error) {
			state, err := client.ContractState(ctx, address)
			if err != nil {
				return Observation{}, err
			}
			if !state.Deployed {
				return Observation{Status: StatusPending, IsDeployed: boolPtr(false)}, nil
			}
			return Observation{Status: StatusConfirmed, IsDeployed: boolPtr(true), Note: "proven by " + address}, nil
		},
	}
}

// tvmSource follows a source TVM transaction.
func (c *Context) tvmSource(ref network.ChainRef, client TVMChain) Step {
	return PollTracker{
		Name:     "tvm_transaction",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(ctx context.Context) (Observation, error) {
			tx, err := client.Transaction(ctx, c.tuple.ID)
			if err != nil {
				return Observation{}, err
			}
			if tx == nil {
				return Pending(), nil
			}
			if tx.Aborted {
				return Rejected("transaction aborted"), nil
			}
			c.learnTVMTransaction(*tx)
			return Confirmed(tx.Hash), nil
		},
	}
}

func (c *Context) learnTVMTransaction(tx tvm.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &c.details
	if d.Sender == "" {
		d.Sender = tx.Account
	}
	if ev, ok := tx.Event(tvm.EventOutgoingTransfer); ok {
		d.Token = ev.String("token")
		if amount, ok := new(big.Int).SetString(ev.String("amount"), 10); ok {
			d.Amount = amount
		}
		d.Recipient = ev.String("recipient")
		if addr := ev.String("eventContract"); addr != "" {
			d.EventAddress = addr
		}
	}
	if ev, ok := tx.Event(tvm.EventNewEventContract); ok && d.EventAddress == "" {
		d.EventAddress = ev.String("address")
	}
}

// learnTVMSource reads whatever identifies a TVM-sourced transfer: the source transaction or
// the event contract it is addressed by.
func (c *Context) learnTVMSource(ctx context.Context, client TVMChain) error {
	switch c.tuple.Type {
	case identifier.TVMTransaction:
		tx, err := client.Transaction(ctx, c.tuple.ID)
		if err != nil {
			return err
		}
		if tx == nil {
			return errUnknownTarget
		}
		c.learnTVMTransaction(*tx)
	default:
		d, err := client.EventDetails(ctx, c.tuple.ID)
		if err != nil {
			return err
		}
		c.learnEvent(d)
	}
	return nil
}

// deriveEvent computes the address of the event contract relays deploy for the source
// deposit.
func (c *Context) deriveEvent(ref network.ChainRef, client TVMChain, configuration string) Step {
	return PollTracker{
		Name:     "derive_event",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Until:    func(Observation) bool { return true },
		Check: func(ctx context.Context) (Observation, error) {
			c.mu.Lock()
			voteData, known := c.details.voteData, c.details.EventAddress
			c.mu.Unlock()
			if known != "" {
				return Pending(), nil
			}
			if voteData == nil {
				return Observation{}, errUnknownTarget
			}
			addr, err := client.DeriveEventAddress(ctx, configuration, voteData)
			if err != nil {
				return Observation{}, err
			}
			c.mu.Lock()
			c.details.EventAddress = addr
			c.mu.Unlock()
			return Observation{Status: StatusPending, IsDeployed: boolPtr(false)}, nil
		},
	}
}

// awaitEventDeployed waits for the configuration to announce the event contract.
func (c *Context) awaitEventDeployed(ref network.ChainRef, client TVMChain, configuration string) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		addr := c.detailsCopy().EventAddress
		if addr == "" {
			return errUnknownTarget
		}
		return AwaitTracker[tvm.Transaction]{
			Name: "new_event_contract",
			Subscribe: func(ctx context.Context) (subscription.Subscription[tvm.Transaction], error) {
				return client.SubscribeTransactions(ctx, configuration)
			},
			Lookup: func(ctx context.Context) (tvm.Transaction, bool, error) {
				state, err := client.ContractState(ctx, addr)
				if err != nil || !state.Deployed {
					return tvm.Transaction{}, false, err
				}
				return tvm.Transaction{Events: []tvm.Event{{
					Name: tvm.EventNewEventContract,
					Data: map[string]any{"address": addr},
				}}}, true, nil
			},
			Match: func(tx tvm.Transaction) bool {
				ev, ok := tx.Event(tvm.EventNewEventContract)
				return ok && tvm.SameAddress(ev.String("address"), addr)
			},
			Observe: func(tvm.Transaction) Observation {
				return Observation{Status: StatusPending, IsDeployed: boolPtr(true)}
			},
			Interval:         c.pollInterval(ref),
			ResubscribeDelay: c.env.resubscribeDelay,
			Logger:           c.logger,
		}.Run(ctx, emit)
	})
}

// eventStatus polls the event contract until relays confirm or reject it.
func (c *Context) eventStatus(ref network.ChainRef, client TVMChain) Step {
	return PollTracker{
		Name:     "event_status",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(ctx context.Context) (Observation, error) {
			addr := c.detailsCopy().EventAddress
			if addr == "" {
				return Observation{}, errUnknownTarget
			}
			d, err := client.EventDetails(ctx, addr)
			if errors.Is(err, tvm.ErrNotDeployed) {
				return Observation{Status: StatusPending, IsDeployed: boolPtr(false)}, nil
			}
			if err != nil {
				return Observation{}, err
			}
			c.learnEvent(d)

			o := Observation{
				Status:                StatusPending,
				Confirmations:         uint64(len(d.Confirms)),
				RequiredConfirmations: uint64(max(d.RequiredVotes, 0)),
				IsDeployed:            boolPtr(true),
			}
			switch d.Status {
			case tvm.EventConfirmed:
				o.Status, o.TxID = StatusConfirmed, addr
			case tvm.EventRejected:
				o.Status, o.Note = StatusRejected, "event rejected by relays"
			}
			return o, nil
		},
	}
}

func (c *Context) learnEvent(d tvm.EventDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.Recipient != "" && c.details.Recipient == "" {
		c.details.Recipient = d.Recipient
	}
	if d.Payload == "" || c.details.payload != nil {
		return
	}
	payload := common.FromHex(d.Payload)
	sigs := make([][]byte, 0, len(d.Signatures))
	for _, s := range d.Signatures {
		sigs = append(sigs, common.FromHex(s))
	}
	c.details.payload = payload
	c.details.signatures = sigs
	c.details.PayloadID = crypto.Keccak256Hash(payload).Hex()
}

// awaitOutgoingEvent waits for the transit proxy to turn the confirmed incoming event into
// an outgoing one, and switches tracking to the outgoing event.
func (c *Context) awaitOutgoingEvent(ref network.ChainRef, client TVMChain, proxy string) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		incoming := c.detailsCopy().EventAddress
		if incoming == "" {
			return errUnknownTarget
		}
		match := func(tx tvm.Transaction) bool {
			if !tvm.SameAddress(tx.InMessageSource, incoming) {
				return false
			}
			ev, ok := tx.Event(tvm.EventOutgoingTransfer)
			return ok && ev.String("eventContract") != ""
		}
		return AwaitTracker[tvm.Transaction]{
			Name: "outgoing_event",
			Subscribe: func(ctx context.Context) (subscription.Subscription[tvm.Transaction], error) {
				return client.SubscribeTransactions(ctx, proxy)
			},
			Lookup: firstTransaction(client, proxy, match),
			Match:  match,
			Observe: func(tx tvm.Transaction) Observation {
				ev, _ := tx.Event(tvm.EventOutgoingTransfer)
				c.mu.Lock()
				c.details.TransitEvent = incoming
				c.details.EventAddress = ev.String("eventContract")
				if r := ev.String("recipient"); r != "" {
					c.details.Recipient = r
				}
				c.mu.Unlock()
				return Observation{Status: StatusPending, IsDeployed: boolPtr(false), Note: "incoming event confirmed"}
			},
			Interval:         c.pollInterval(ref),
			ResubscribeDelay: c.env.resubscribeDelay,
			Logger:           c.logger,
		}.Run(ctx, emit)
	})
}

// tvmRelease waits for the proxy transaction triggered by the confirmed event.
func (c *Context) tvmRelease(ref network.ChainRef, client TVMChain, proxy string) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		event := c.detailsCopy().EventAddress
		if event == "" {
			return errUnknownTarget
		}
		match := func(tx tvm.Transaction) bool { return tvm.SameAddress(tx.InMessageSource, event) }
		return AwaitTracker[tvm.Transaction]{
			Name: "tvm_release",
			Subscribe: func(ctx context.Context) (subscription.Subscription[tvm.Transaction], error) {
				return client.SubscribeTransactions(ctx, proxy)
			},
			Lookup: firstTransaction(client, proxy, match),
			Match:  match,
			Observe: func(tx tvm.Transaction) Observation {
				if tx.Aborted {
					return Observation{Status: StatusRejected, TxID: tx.Hash, Note: "release transaction aborted"}
				}
				return Confirmed(tx.Hash)
			},
			Interval:         c.pollInterval(ref),
			ResubscribeDelay: c.env.resubscribeDelay,
			Logger:           c.logger,
		}.Run(ctx, emit)
	})
}

func firstTransaction(client TVMChain, address string, match func(tvm.Transaction) bool) subscription.Lookup[tvm.Transaction] {
	return func(ctx context.Context) (tvm.Transaction, bool, error) {
		txs, err := client.FindTransactions(ctx, address, 0)
		if err != nil {
			return tvm.Transaction{}, false, err
		}
		for _, tx := range txs {
			if match(tx) {
				return tx, true, nil
			}
		}
		return tvm.Transaction{}, false, nil
	}
}

// vaultRelease waits for the EVM vault to pay out the event payload, instantly or as a
// pending withdrawal.
func (c *Context) vaultRelease(ref network.ChainRef, client EVMChain, vault string) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		d := c.detailsCopy()
		if d.PayloadID == "" {
			return errUnknownTarget
		}
		payloadID := common.HexToHash(d.PayloadID)
		vaultAddr := common.HexToAddress(vault)
		match := func(ev ethereum.VaultEvent) bool {
			if ev.PayloadID != payloadID {
				return false
			}
			return ev.Name == contracts.EventWithdraw || ev.Name == contracts.EventPendingWithdrawalCreated
		}

		return AwaitTracker[ethereum.VaultEvent]{
			Name: "vault_release",
			Subscribe: func(ctx context.Context) (subscription.Subscription[ethereum.VaultEvent], error) {
				return client.SubscribeVaultEvents(ctx, vaultAddr)
			},
			Lookup: func(ctx context.Context) (ethereum.VaultEvent, bool, error) {
				events, err := client.FindVaultEvents(ctx, vaultAddr, ethereum.DefaultLookbackBlocks)
				if err != nil {
					return ethereum.VaultEvent{}, false, err
				}
				for _, ev := range events {
					if match(ev) {
						return ev, true, nil
					}
				}
				return ethereum.VaultEvent{}, false, nil
			},
			Match: match,
			Observe: func(ev ethereum.VaultEvent) Observation {
				if ev.Name == contracts.EventPendingWithdrawalCreated {
					c.learnPendingID(ev.PendingID)
					return Observation{Status: StatusConfirmed, TxID: ev.TxHash.Hex(), Note: "pending withdrawal"}
				}
				return Confirmed(ev.TxHash.Hex())
			},
			Interval:         c.pollInterval(ref),
			ResubscribeDelay: c.env.resubscribeDelay,
			Logger:           c.logger,
		}.Run(ctx, emit)
	})
}

// solanaSource follows a source Solana signature until it is finalized.
func (c *Context) solanaSource(ref network.ChainRef, client SolanaChain) Step {
	return PollTracker{
		Name:     "solana_signature",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(ctx context.Context) (Observation, error) {
			status, err := client.SignatureStatus(ctx, c.tuple.ID)
			if err != nil {
				return Observation{}, err
			}
			if status == nil {
				return Pending(), nil
			}
			if status.Err != "" {
				return Observation{Status: StatusRejected, TxID: c.tuple.ID, Note: status.Err}, nil
			}
			if !status.Finalized {
				return Observation{Status: StatusPending, Confirmations: status.Confirmations}, nil
			}
			c.mu.Lock()
			c.details.voteData = map[string]any{"eventTransaction": c.tuple.ID, "eventSlot": status.Slot}
			c.mu.Unlock()
			return Confirmed(c.tuple.ID), nil
		},
	}
}

// solanaPrepare checks that the recipient can receive the token on Solana.
func (c *Context) solanaPrepare(ref network.ChainRef, client SolanaChain, source TVMChain) Step {
	return PollTracker{
		Name:     "solana_account",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(ctx context.Context) (Observation, error) {
			if c.detailsCopy().Recipient == "" {
				if err := c.learnTVMSource(ctx, source); err != nil {
					if errors.Is(err, errUnknownTarget) {
						return Pending(), nil
					}
					return Observation{}, err
				}
			}
			account, err := c.recipientAccount()
			if err != nil {
				return Pending(), nil
			}
			exists, err := client.AccountExists(ctx, account)
			if err != nil {
				return Observation{}, err
			}
			if !exists {
				return Observation{Status: StatusPending, IsDeployed: boolPtr(false)}, nil
			}
			return Observation{Status: StatusConfirmed, IsDeployed: boolPtr(true), TxID: account}, nil
		},
	}
}

// recipientAccount is the Solana account receiving the transfer: the recipient's token
// account for the destination mint.
func (c *Context) recipientAccount() (string, error) {
	c.mu.Lock()
	recipient, mint := c.details.Recipient, c.pipeline.DestinationToken
	c.mu.Unlock()
	if recipient == "" {
		return "", errUnknownTarget
	}
	if mint == "" {
		return recipient, nil
	}
	return sol.TokenAccount(recipient, mint)
}

// solanaRelease waits for the program to log the release of the event.
func (c *Context) solanaRelease(ref network.ChainRef, client SolanaChain, program string) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		event := c.detailsCopy().EventAddress
		if event == "" {
			return errUnknownTarget
		}
		_, id, _ := strings.Cut(event, ":")
		match := func(l sol.ProgramLog) bool {
			for _, line := range l.Logs {
				if strings.Contains(strings.ToLower(line), strings.ToLower(id)) {
					return true
				}
			}
			return false
		}
		return AwaitTracker[sol.ProgramLog]{
			Name: "solana_release",
			Subscribe: func(ctx context.Context) (subscription.Subscription[sol.ProgramLog], error) {
				return client.SubscribeProgramLogs(ctx, program)
			},
			Lookup: func(ctx context.Context) (sol.ProgramLog, bool, error) {
				logs, err := client.FindProgramLogs(ctx, program, programLogLookup)
				if err != nil {
					return sol.ProgramLog{}, false, err
				}
				for _, l := range logs {
					if match(l) {
						return l, true, nil
					}
				}
				return sol.ProgramLog{}, false, nil
			},
			Match: match,
			Observe: func(l sol.ProgramLog) Observation {
				if l.Err != "" {
					return Observation{Status: StatusRejected, TxID: l.Signature, Note: l.Err}
				}
				return Confirmed(l.Signature)
			},
			Interval:         c.pollInterval(ref),
			ResubscribeDelay: c.env.resubscribeDelay,
			Logger:           c.logger,
		}.Run(ctx, emit)
	})
}

// intermediate reports a step's confirmation as progress of a longer stage.
func intermediate(step Step) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		return step.Run(ctx, func(o Observation) bool {
			if o.Status == StatusConfirmed {
				o.Status, o.TxID = StatusPending, ""
			}
			return emit(o)
		})
	})
}

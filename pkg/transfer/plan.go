package transfer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/credit"
	"github.com/chainsafe/bridge-tracker/pkg/identifier"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
	"github.com/chainsafe/bridge-tracker/pkg/withdrawal"
)

// plan builds the step of every stage for the pipeline variant. A nil step means the stage
// is skipped.
func (c *Context) plan() ([len(Stages)]Step, error) {
	var plan [len(Stages)]Step
	p := c.pipeline
	clients := c.env.clients

	// a TVM contract identifier names the event contract of the transfer
	byContract := c.tuple.Type == identifier.TVMAddress
	if byContract {
		c.details.EventAddress = c.tuple.ID
	}

	switch v := p.Variant.(type) {
	case pipeline.EvmToTvm:
		src, err := clients.evm(p.Source)
		if err != nil {
			return plan, err
		}
		dst, err := clients.tvm(p.Destination)
		if err != nil {
			return plan, err
		}
		if byContract {
			plan[1] = c.contractProof(p.Destination, dst, c.tuple.ID)
		} else {
			plan[1] = c.evmDeposit(p.Source, src)
		}
		plan[2] = c.evmEvent(p.Destination, dst, v.Configuration)
		plan[3] = c.tvmRelease(p.Destination, dst, v.Proxy)

	case pipeline.EvmToTvmCredit:
		if byContract {
			return plan, fmt.Errorf("%s transfers are addressed by their deposit transaction", p.Route())
		}
		src, err := clients.evm(p.Source)
		if err != nil {
			return plan, err
		}
		dst, err := clients.tvm(p.Destination)
		if err != nil {
			return plan, err
		}
		c.credit = credit.NewTracker(credit.Config{
			Chain:             p.Destination,
			Factory:           v.CreditFactory,
			FallbackAvailable: v.FallbackAvailable,
			PollInterval:      c.pollInterval(p.Destination),
		}, dst, c.logger)
		initial := c.credit.State()
		c.creditState = &initial

		plan[0] = c.creditPrepare(p.Source, src, dst, v)
		plan[1] = c.evmDeposit(p.Source, src)
		plan[2] = c.creditEvent(p.Destination)
		plan[3] = c.creditRelease(p.Destination)

	case pipeline.TvmToEvm:
		src, err := clients.tvm(p.Source)
		if err != nil {
			return plan, err
		}
		dst, err := clients.evm(p.Destination)
		if err != nil {
			return plan, err
		}
		if byContract {
			plan[1] = c.contractProof(p.Source, src, c.tuple.ID)
		} else {
			plan[1] = c.tvmSource(p.Source, src)
		}
		plan[2] = c.eventStatus(p.Source, src)
		plan[3] = c.vaultRelease(p.Destination, dst, p.VaultAddress)

	case pipeline.EvmToEvm:
		src, err := clients.evm(p.Source)
		if err != nil {
			return plan, err
		}
		transit, err := clients.tvm(v.Transit)
		if err != nil {
			return plan, err
		}
		dst, err := clients.evm(p.Destination)
		if err != nil {
			return plan, err
		}
		plan[1] = c.evmDeposit(p.Source, src)
		plan[2] = Sequence(
			intermediate(c.evmEvent(v.Transit, transit, v.Incoming.Configuration)),
			c.awaitOutgoingEvent(v.Transit, transit, v.Outgoing.Proxy),
			c.eventStatus(v.Transit, transit),
		)
		plan[3] = c.vaultRelease(p.Destination, dst, p.VaultAddress)

	case pipeline.TvmToSolana:
		src, err := clients.tvm(p.Source)
		if err != nil {
			return plan, err
		}
		dst, err := clients.solana(p.Destination)
		if err != nil {
			return plan, err
		}
		plan[0] = c.solanaPrepare(p.Destination, dst, src)
		if byContract {
			plan[1] = c.contractProof(p.Source, src, c.tuple.ID)
		} else {
			plan[1] = c.tvmSource(p.Source, src)
		}
		plan[2] = c.eventStatus(p.Source, src)
		plan[3] = c.solanaRelease(p.Destination, dst, v.Program)

	case pipeline.SolanaToTvm:
		src, err := clients.solana(p.Source)
		if err != nil {
			return plan, err
		}
		dst, err := clients.tvm(p.Destination)
		if err != nil {
			return plan, err
		}
		if byContract {
			plan[1] = c.contractProof(p.Destination, dst, c.tuple.ID)
		} else {
			plan[1] = c.solanaSource(p.Source, src)
		}
		plan[2] = c.evmEvent(p.Destination, dst, v.Configuration)
		plan[3] = c.tvmRelease(p.Destination, dst, v.Proxy)

	default:
		return plan, fmt.Errorf("no stage plan for route %s", p.Route())
	}
	return plan, nil
}

// evmEvent tracks an event contract deployed by configuration for a deposit made outside
// the TVM chain.
func (c *Context) evmEvent(ref network.ChainRef, client TVMChain, configuration string) Step {
	return Sequence(
		c.deriveEvent(ref, client, configuration),
		c.awaitEventDeployed(ref, client, configuration),
		c.eventStatus(ref, client),
	)
}

// creditPrepare waits for the credit factory to deploy the processor of the deposit and
// flags the transfer outdated while the deposit is old enough that it should have been.
func (c *Context) creditPrepare(srcRef network.ChainRef, src EVMChain, dst TVMChain, v pipeline.EvmToTvmCredit) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		required := c.requiredConfirmations(srcRef)
		hash := common.HexToHash(c.tuple.ID)

		ticker := time.NewTicker(c.pollInterval(srcRef))
		defer ticker.Stop()

		var future *subscription.Future[tvm.Transaction]
		defer func() {
			if future != nil {
				future.Cancel()
			}
		}()

		if !emit(Observation{Status: StatusPending, IsDeployed: boolPtr(false)}) {
			return errDisposed
		}
		for {
			dep, conf, o, err := c.readDeposit(ctx, src, hash, required)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("Failed to read credit deposit", zap.Error(err))
			case o.Status == StatusRejected:
				if !emit(o) {
					return errDisposed
				}
				return nil
			case dep != nil:
				c.sourceConfirmations(conf, required)
				if future == nil {
					future = c.awaitProcessor(ctx, dst, v)
				}
			}

			var found <-chan struct{}
			if future != nil {
				found = future.Done()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-found:
				tx, err := future.Result()
				if err != nil {
					return err
				}
				ev, _ := tx.Event(tvm.EventProcessorDeployed)
				c.attachProcessor(ev.String("processor"))
				if !emit(Observation{Status: StatusConfirmed, TxID: tx.Hash, IsDeployed: boolPtr(true)}) {
					return errDisposed
				}
				return nil
			case <-ticker.C:
			}
		}
	})
}

// awaitProcessor derives the event contract of the deposit and waits for the factory to
// deploy a processor for it. It returns nil while the event address cannot be derived.
func (c *Context) awaitProcessor(ctx context.Context, client TVMChain, v pipeline.EvmToTvmCredit) *subscription.Future[tvm.Transaction] {
	c.mu.Lock()
	voteData, event := c.details.voteData, c.details.EventAddress
	c.mu.Unlock()
	if voteData == nil {
		return nil
	}
	c.credit.SetDeployParams(map[string]any{"eventVoteData": voteData})

	if event == "" {
		addr, err := client.DeriveEventAddress(ctx, v.Configuration, voteData)
		if err != nil {
			c.logger.Debug("Failed to derive event address", zap.Error(err))
			return nil
		}
		c.mu.Lock()
		c.details.EventAddress = addr
		c.mu.Unlock()
		event = addr
	}

	match := func(tx tvm.Transaction) bool {
		ev, ok := tx.Event(tvm.EventProcessorDeployed)
		return ok && tvm.SameAddress(ev.String("eventContract"), event) && ev.String("processor") != ""
	}
	return subscription.AwaitFirst(ctx,
		func(ctx context.Context) (subscription.Subscription[tvm.Transaction], error) {
			return client.SubscribeTransactions(ctx, v.CreditFactory)
		},
		match,
		subscription.Options[tvm.Transaction]{
			Lookup:           firstTransaction(client, v.CreditFactory, match),
			LookupInterval:   c.pollInterval(c.Pipeline().Destination),
			ResubscribeDelay: c.env.resubscribeDelay,
			Logger:           c.logger,
			Name:             "processor_deployed",
		})
}

// sourceConfirmations feeds deposit confirmations to the credit processor's outdated flag.
func (c *Context) sourceConfirmations(conf, required uint64) {
	if c.credit == nil {
		return
	}
	prepared := c.stageState(StagePrepare).Status == StatusConfirmed
	if !c.credit.SetOutdated(conf, required, prepared) {
		return
	}
	s := c.credit.State()
	c.update(func() bool {
		c.creditState = &s
		if st := &c.stages[stageIndex(StagePrepare)]; !st.Done() {
			st.IsOutdated = s.IsOutdated
		}
		return true
	})
}

// attachProcessor starts mirroring the deployed processor.
func (c *Context) attachProcessor(processor string) {
	if processor == "" {
		return
	}
	c.credit.SetProcessor(processor)
	c.mu.Lock()
	c.details.Processor = processor
	c.mu.Unlock()

	c.goTrack(func(ctx context.Context) {
		c.credit.Track(ctx, func(s credit.State) {
			c.update(func() bool {
				c.creditState = &s
				return true
			})
		})
	})
}

// creditEvent reports the bridge event as seen by the processor.
func (c *Context) creditEvent(ref network.ChainRef) Step {
	return PollTracker{
		Name:     "credit_event",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(context.Context) (Observation, error) {
			s := c.credit.State()
			if !s.Deployed {
				return Observation{Status: StatusPending, IsDeployed: boolPtr(false)}, nil
			}
			switch {
			case s.Status == credit.StatusEventRejected:
				return Rejected("event rejected by relays"), nil
			case s.Status.EventConfirmed():
				return Observation{Status: StatusConfirmed, TxID: c.detailsCopy().EventAddress, TTL: s.TTL}, nil
			}
			return Observation{Status: StatusPending, IsDeployed: boolPtr(true), TTL: s.TTL}, nil
		},
	}
}

// creditRelease waits for the processor to finish. A cancelled or expired processor keeps
// the stage pending; its fallback actions stay available.
func (c *Context) creditRelease(ref network.ChainRef) Step {
	return PollTracker{
		Name:     "credit_release",
		Interval: c.pollInterval(ref),
		Logger:   c.logger,
		Check: func(context.Context) (Observation, error) {
			s := c.credit.State()
			o := Observation{Status: StatusPending, TTL: s.TTL}
			switch {
			case s.IsProcessed:
				o.Status, o.TxID = StatusConfirmed, c.credit.Processor()
			case s.IsCancelled:
				o.Note = "processor cancelled"
			case s.IsExpired:
				o.Note = "processor expired"
			}
			return o, nil
		},
	}
}

// onEventConfirmed runs before Release starts. Vault releases that cannot be paid
// instantly go through the pending withdrawal path.
func (c *Context) onEventConfirmed(ctx context.Context) {
	p := c.Pipeline()
	if !p.ReleasesFromVault() || c.stageState(StageEvent).Status != StatusConfirmed {
		return
	}
	liquidity := c.liquidity(ctx)
	d := c.detailsCopy()
	if withdrawal.ShouldActivate(true, d.PendingID, liquidity) {
		c.startNegotiator(d.PendingID)
	}
}

// liquidity refreshes the vault figures and classifies capacity for the transfer amount.
func (c *Context) liquidity(ctx context.Context) pipeline.Liquidity {
	fresh := c.env.resolver.Refresh(ctx, c.Pipeline())
	c.mu.Lock()
	c.pipeline = fresh
	amount := copyInt(c.details.Amount)
	c.mu.Unlock()
	return fresh.Liquidity(amount)
}

func (c *Context) learnPendingID(id *big.Int) {
	if id == nil {
		return
	}
	c.mu.Lock()
	c.details.PendingID = copyInt(id)
	c.mu.Unlock()
	c.startNegotiator(id)
}

// startNegotiator activates the pending withdrawal of the transfer, or records its id when
// it is already active.
func (c *Context) startNegotiator(id *big.Int) {
	c.negMu.Lock()
	defer c.negMu.Unlock()

	c.mu.Lock()
	n, disposed := c.negotiator, c.disposed
	c.mu.Unlock()
	if disposed {
		return
	}
	if n != nil {
		n.SetID(id)
		c.changed()
		return
	}

	p := c.Pipeline()
	client, err := c.env.clients.evm(p.Destination)
	if err != nil {
		c.logger.Warn("Cannot negotiate pending withdrawal", zap.Error(err))
		return
	}
	d := c.detailsCopy()
	n = withdrawal.NewNegotiator(withdrawal.Config{
		Chain:            p.Destination,
		Vault:            p.VaultAddress,
		Recipient:        d.Recipient,
		Amount:           d.Amount,
		PayloadID:        common.HexToHash(d.PayloadID),
		PollInterval:     c.pollInterval(p.Destination),
		ResubscribeDelay: c.env.resubscribeDelay,
	}, c.Key(), client, c.liquidity, c.env.registry, c.logger)
	n.Activate(id)

	c.mu.Lock()
	c.negotiator = n
	c.mu.Unlock()

	if !c.goTrack(func(ctx context.Context) {
		n.Run(ctx, func(withdrawal.PendingWithdrawal) { c.changed() })
	}) {
		n.Abandon()
		return
	}
	c.changed()
}

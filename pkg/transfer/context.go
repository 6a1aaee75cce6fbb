// Package transfer renders the lifecycle of one cross-chain transfer from its identifier and
// performs the user actions that move it forward.
package transfer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/credit"
	"github.com/chainsafe/bridge-tracker/pkg/identifier"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/pipeline"
	"github.com/chainsafe/bridge-tracker/pkg/withdrawal"
)

// Networks resolves the settings of a network.
type Networks interface {
	Get(ref network.ChainRef) (network.Network, bool)
}

// Resolver finds and refreshes pipelines.
type Resolver interface {
	ResolveByIdentity(ctx context.Context, source, destination network.ChainRef, hints pipeline.Hints) (*pipeline.Pipeline, error)
	Refresh(ctx context.Context, p *pipeline.Pipeline) *pipeline.Pipeline
}

// Details are the facts learnt about a transfer while tracking it.
type Details struct {
	Token        string   `json:"token,omitempty"`
	Amount       *big.Int `json:"amount,omitempty"`
	Sender       string   `json:"sender,omitempty"`
	Recipient    string   `json:"recipient,omitempty"`
	EventAddress string   `json:"eventAddress,omitempty"`
	// TransitEvent is the incoming event on the transit chain of an EVM to EVM transfer.
	TransitEvent string   `json:"transitEvent,omitempty"`
	Processor    string   `json:"processor,omitempty"`
	PayloadID    string   `json:"payloadId,omitempty"`
	PendingID    *big.Int `json:"pendingId,omitempty"`

	voteData   map[string]any
	payload    []byte
	signatures [][]byte
}

func (d Details) clone() Details {
	d.Amount = copyInt(d.Amount)
	d.PendingID = copyInt(d.PendingID)
	return d
}

// Snapshot is the published view of a transfer.
type Snapshot struct {
	Source            network.ChainRef              `json:"source"`
	Destination       network.ChainRef              `json:"destination"`
	ID                string                        `json:"id"`
	Route             string                        `json:"route"`
	Prepare           StageState                    `json:"prepare"`
	Transfer          StageState                    `json:"transfer"`
	Event             StageState                    `json:"event"`
	Release           StageState                    `json:"release"`
	Details           Details                       `json:"details"`
	Liquidity         string                        `json:"liquidity,omitempty"`
	PendingWithdrawal *withdrawal.PendingWithdrawal `json:"pendingWithdrawal,omitempty"`
	Credit            *credit.State                 `json:"credit,omitempty"`
	Disposed          bool                          `json:"disposed,omitempty"`
	UpdatedAt         time.Time                     `json:"updatedAt"`
}

// Stage returns the state of one stage.
func (s Snapshot) Stage(stage Stage) StageState {
	switch stage {
	case StagePrepare:
		return s.Prepare
	case StageTransfer:
		return s.Transfer
	case StageEvent:
		return s.Event
	default:
		return s.Release
	}
}

// Terminal reports whether no stage can change anymore.
func (s Snapshot) Terminal() bool {
	for _, stage := range Stages {
		st := s.Stage(stage)
		if st.Status == StatusRejected {
			return true
		}
		if !st.Done() {
			return false
		}
	}
	if s.PendingWithdrawal != nil && s.PendingWithdrawal.Status == withdrawal.StatusOpen {
		return false
	}
	return true
}

// env is what a Context shares with its manager.
type env struct {
	clients          Clients
	networks         Networks
	resolver         Resolver
	registry         *withdrawal.Registry
	pollInterval     time.Duration
	resubscribeDelay time.Duration
	now              func() time.Time
	onChange         func(*Context)
	logger           *zap.Logger
}

// Context is one tracked transfer. All state is guarded by mu; tracker goroutines run under
// ctx and stop on Dispose.
type Context struct {
	tuple  identifier.Tuple
	env    *env
	logger *zap.Logger

	mu          sync.Mutex
	pipeline    *pipeline.Pipeline
	stages      [len(Stages)]StageState
	details     Details
	negotiator  *withdrawal.Negotiator
	negMu       sync.Mutex
	credit      *credit.Tracker
	creditState *credit.State
	disposed    bool
	listeners   map[int]func(Snapshot)
	nextID      int
	startedAt   [len(Stages)]time.Time
	updatedAt   time.Time

	// persistMu orders snapshot reads with their saves so the store never goes backwards.
	persistMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dispose sync.Once
}

func newContext(tuple identifier.Tuple, p *pipeline.Pipeline, e *env) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		tuple:     tuple,
		env:       e,
		logger:    e.logger.With(zap.String("transfer", tuple.Key()), zap.String("route", p.Route())),
		pipeline:  p,
		listeners: make(map[int]func(Snapshot)),
		updatedAt: e.now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := range c.stages {
		c.stages[i].Status = StatusDisabled
		c.stages[i].UpdatedAt = c.updatedAt
	}
	return c
}

// start builds the stage plan and launches the driver.
func (c *Context) start() error {
	plan, err := c.plan()
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go c.drive(plan)
	return nil
}

// restore applies a persisted view before start. Terminal stages are kept; the trackers of
// the others start from scratch and catch up through their lookups.
func (c *Context) restore(stages map[Stage]StageState, d Details) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, stage := range Stages {
		if st, ok := stages[stage]; ok && st.Done() {
			c.stages[i] = st
		}
	}
	c.details = d.clone()
}

// Key returns the canonical transfer key.
func (c *Context) Key() string { return c.tuple.Key() }

// Tuple returns the identity of the transfer.
func (c *Context) Tuple() identifier.Tuple { return c.tuple }

// Pipeline returns the current pipeline.
func (c *Context) Pipeline() *pipeline.Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipeline
}

// Snapshot returns the current view.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SnapshotFor returns the current view with WrongNetwork set on the stages w cannot act on.
func (c *Context) SnapshotFor(w chain.Wallet) Snapshot {
	s := c.Snapshot()
	if w == nil {
		return s
	}
	p := c.Pipeline()
	for _, stage := range Stages {
		ref, ok := actingChain(p, stage)
		if !ok {
			continue
		}
		wrong := !chain.OnChain(w, ref)
		switch stage {
		case StagePrepare:
			s.Prepare.WrongNetwork = wrong
		case StageTransfer:
			s.Transfer.WrongNetwork = wrong
		case StageEvent:
			s.Event.WrongNetwork = wrong
		case StageRelease:
			s.Release.WrongNetwork = wrong
		}
	}
	return s
}

func (c *Context) snapshotLocked() Snapshot {
	s := Snapshot{
		Source:      c.tuple.Source,
		Destination: c.tuple.Destination,
		ID:          c.tuple.ID,
		Route:       c.pipeline.Route(),
		Prepare:     c.stages[0],
		Transfer:    c.stages[1],
		Event:       c.stages[2],
		Release:     c.stages[3],
		Details:     c.details.clone(),
		Disposed:    c.disposed,
		UpdatedAt:   c.updatedAt,
	}
	if c.details.Amount != nil {
		s.Liquidity = c.pipeline.Liquidity(c.details.Amount).String()
	}
	if c.negotiator != nil {
		s.PendingWithdrawal = c.negotiator.Snapshot()
	}
	if c.creditState != nil {
		cs := *c.creditState
		s.Credit = &cs
	}
	return s
}

// Listen registers fn for every change. The returned function removes it.
func (c *Context) Listen(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Dispose stops every tracker and waits for them. It is safe to call any number of times.
func (c *Context) Dispose() {
	c.dispose.Do(func() {
		c.mu.Lock()
		c.disposed = true
		c.mu.Unlock()

		c.cancel()
		c.wg.Wait()
		c.notify()
		c.logger.Debug("Transfer disposed")
	})
}

// Disposed reports whether Dispose was called.
func (c *Context) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// drive runs the stages in order. A stage starts once its predecessor is terminal or
// skipped; a rejected stage ends the transfer.
func (c *Context) drive(plan [len(Stages)]Step) {
	defer c.wg.Done()

	for i, stage := range Stages {
		step := plan[i]
		if step == nil {
			c.update(func() bool { return c.stages[i].skip(c.env.now()) })
			continue
		}
		if stage == StageRelease {
			c.onEventConfirmed(c.ctx)
		}

		err := step.Run(c.ctx, c.emitter(stage))
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, errDisposed) {
				return
			}
			metrics.ErrorsTotal.WithLabelValues("transfer", string(stage)).Inc()
			c.logger.Warn("Stage tracker stopped", zap.String("stage", string(stage)), zap.Error(err))
			return
		}

		c.mu.Lock()
		st := c.stages[i]
		c.mu.Unlock()
		if st.Status != StatusConfirmed {
			if !st.Done() {
				c.logger.Warn("Stage tracker returned before a terminal state", zap.String("stage", string(stage)))
			}
			return
		}
	}
}

// emitter applies observations of stage unless the transfer was disposed.
func (c *Context) emitter(stage Stage) Emit {
	idx := stageIndex(stage)
	return func(o Observation) bool {
		c.mu.Lock()
		if c.disposed {
			c.mu.Unlock()
			return false
		}
		changed := c.applyLocked(idx, o)
		c.mu.Unlock()

		if changed {
			c.changed()
		}
		return true
	}
}

// applyLocked folds o into stage idx. A stage may only progress once every earlier stage is
// done, and Release only once Event is confirmed.
func (c *Context) applyLocked(idx int, o Observation) bool {
	for i := 0; i < idx; i++ {
		if !c.stages[i].Done() {
			return false
		}
	}
	if Stages[idx] == StageRelease && c.stages[stageIndex(StageEvent)].Status != StatusConfirmed &&
		!c.stages[stageIndex(StageEvent)].Skipped {
		return false
	}

	st := &c.stages[idx]
	before := st.Status
	now := c.env.now()
	if !st.Apply(o, now) {
		return false
	}
	c.updatedAt = now

	if st.Status != before {
		stage := Stages[idx]
		metrics.StageTransitions.WithLabelValues(string(stage), string(st.Status)).Inc()
		switch {
		case st.Status == StatusPending:
			c.startedAt[idx] = now
		case st.Status.Terminal() && !c.startedAt[idx].IsZero():
			metrics.StageDuration.WithLabelValues(string(stage)).Observe(now.Sub(c.startedAt[idx]).Seconds())
		}
		c.logger.Info("Stage changed",
			zap.String("stage", string(stage)),
			zap.String("status", string(st.Status)),
			zap.String("tx", st.TxID),
			zap.String("note", st.Note))
	}
	return true
}

// update runs fn under the lock and publishes when it reports a change.
func (c *Context) update(fn func() bool) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	changed := fn()
	if changed {
		c.updatedAt = c.env.now()
	}
	c.mu.Unlock()

	if changed {
		c.changed()
	}
}

// changed publishes the current view to listeners and the manager.
func (c *Context) changed() {
	c.notify()
	if c.env.onChange != nil {
		c.env.onChange(c)
	}
}

func (c *Context) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Context) stageState(stage Stage) StageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stages[stageIndex(stage)]
}

func (c *Context) detailsCopy() Details {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.details.clone()
}

// goTrack runs fn as a tracker goroutine of the transfer, unless it was disposed.
// goTrack runs fn under the transfer context and reports false once disposed.
func (c *Context) goTrack(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}

func (c *Context) pollInterval(ref network.ChainRef) time.Duration {
	if n, ok := c.env.networks.Get(ref); ok && n.PollingInterval > 0 {
		return n.PollingInterval
	}
	return c.env.pollInterval
}

func (c *Context) requiredConfirmations(ref network.ChainRef) uint64 {
	if n, ok := c.env.networks.Get(ref); ok {
		return n.ConfirmationBlocks
	}
	return 0
}

func stageIndex(stage Stage) int {
	for i, s := range Stages {
		if s == stage {
			return i
		}
	}
	return -1
}

// actingChain returns the network a wallet must be on to act on stage.
func actingChain(p *pipeline.Pipeline, stage Stage) (network.ChainRef, bool) {
	switch stage {
	case StageTransfer:
		return p.Source, true
	case StagePrepare:
		switch p.Variant.(type) {
		case pipeline.TvmToSolana, pipeline.EvmToTvmCredit:
			return p.Destination, true
		}
	case StageRelease:
		return p.Destination, true
	}
	return "", false
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

package credit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/chain"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/tvm"
)

const defaultPollInterval = 10 * time.Second

// Processor contract methods.
const (
	methodGetDetails      = "getDetails"
	methodCancel          = "cancel"
	methodReleaseFallback = "releaseFallback"
	methodDeployProcessor = "deployProcessor"
)

// Reader is the TVM surface the tracker polls.
type Reader interface {
	ContractState(ctx context.Context, address string) (tvm.ContractState, error)
	RunGetter(ctx context.Context, address, method string, params map[string]any, out any) error
}

// Config identifies the processor of one transfer.
type Config struct {
	Chain             network.ChainRef
	Processor         string
	Factory           string
	FallbackAvailable bool
	// DeployParams are passed to the factory when the processor is broadcast again.
	DeployParams map[string]any
	PollInterval time.Duration
}

// Tracker polls one processor.
type Tracker struct {
	cfg    Config
	reader Reader
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	processor    string
	deployParams map[string]any
	status       Status
	ttl          *time.Time
	deployed     bool
	outdated     bool
}

var errNoProcessor = errors.New("processor address unknown")

// NewTracker creates a tracker for cfg.Processor. The processor may be left empty and set
// with SetProcessor once the factory deployed it.
func NewTracker(cfg Config, reader Reader, logger *zap.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Tracker{
		cfg:          cfg,
		reader:       reader,
		logger:       logger.With(zap.String("factory", cfg.Factory)),
		now:          time.Now,
		processor:    cfg.Processor,
		deployParams: cfg.DeployParams,
	}
}

// SetProcessor records the deployed processor address.
func (t *Tracker) SetProcessor(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.processor == "" {
		t.processor = address
		t.logger.Info("Processor located", zap.String("processor", address))
	}
}

// Processor returns the processor address, or "" while unknown.
func (t *Tracker) Processor() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processor
}

// SetDeployParams records the factory arguments used by Broadcast.
func (t *Tracker) SetDeployParams(params map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deployParams = params
}

// Track polls the processor until it is processed or cancelled, or ctx is done. onChange
// receives every state that differs from the previous one.
func (t *Tracker) Track(ctx context.Context, onChange func(State)) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	last := t.State()
	for {
		if err := t.refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.ErrorsTotal.WithLabelValues("credit", "poll").Inc()
			t.logger.Debug("Failed to read processor", zap.Error(err))
		}

		s := t.State()
		if !sameState(s, last) {
			last = s
			onChange(s)
		}
		if s.IsProcessed || s.IsCancelled {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) refresh(ctx context.Context) error {
	processor := t.Processor()
	if processor == "" {
		return errNoProcessor
	}
	state, err := t.reader.ContractState(ctx, processor)
	if err != nil {
		return err
	}
	if !state.Deployed {
		t.mu.Lock()
		t.deployed = false
		t.mu.Unlock()
		return nil
	}

	var d Details
	if err := t.reader.RunGetter(ctx, processor, methodGetDetails, nil, &d); err != nil {
		if errors.Is(err, tvm.ErrNotDeployed) {
			return nil
		}
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.deployed = true
	t.status = d.State
	if d.Deadline > 0 {
		ttl := time.Unix(d.Deadline, 0)
		t.ttl = &ttl
	}
	return nil
}

// State returns the current view. IsExpired is evaluated against the current time.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	s := State{
		Status:      t.status,
		Deployed:    t.deployed,
		IsOutdated:  t.outdated,
		IsCancelled: t.status == StatusCancelled,
		IsProcessed: t.status == StatusProcessed,
	}
	if t.ttl != nil {
		ttl := *t.ttl
		s.TTL = &ttl
		s.IsExpired = !s.IsProcessed && Expired(t.ttl, t.now())
	}
	return s
}

// SetOutdated updates the outdated flag from the deposit confirmations. It reports whether
// the flag changed.
func (t *Tracker) SetOutdated(confirmations, required uint64, prepareConfirmed bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := Outdated(confirmations, required, prepareConfirmed)
	if v == t.outdated {
		return false
	}
	t.outdated = v
	return true
}

// FallbackAllowed reports whether the manual fallback release may be sent.
func (t *Tracker) FallbackAllowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stateLocked()
	return t.cfg.FallbackAvailable && s.Deployed && !s.IsExpired && !s.IsProcessed && s.Status.EventConfirmed()
}

// Release sends the manual fallback release to the processor.
func (t *Tracker) Release(ctx context.Context, w chain.Wallet) bool {
	if !t.FallbackAllowed() {
		return t.refuse("release", "fallback not available")
	}
	return t.send(ctx, w, "release", chain.Call{To: t.Processor(), Method: methodReleaseFallback})
}

// Cancel stops the processor after expiry or a failed swap or unwrap.
func (t *Tracker) Cancel(ctx context.Context, w chain.Wallet) bool {
	s := t.State()
	if !s.Deployed || s.Status.Final() || !(s.IsExpired || s.Status.Failed()) {
		return t.refuse("cancel", "processor is not cancellable")
	}
	return t.send(ctx, w, "cancel", chain.Call{To: t.Processor(), Method: methodCancel})
}

// Broadcast asks the factory to deploy the processor of an outdated transfer.
func (t *Tracker) Broadcast(ctx context.Context, w chain.Wallet) bool {
	t.mu.Lock()
	s := t.stateLocked()
	params := t.deployParams
	t.mu.Unlock()
	if !s.IsOutdated || s.Deployed || t.cfg.Factory == "" || params == nil {
		return t.refuse("broadcast", "processor is not outdated")
	}
	return t.send(ctx, w, "broadcast", chain.Call{To: t.cfg.Factory, Method: methodDeployProcessor, Params: params})
}

func (t *Tracker) send(ctx context.Context, w chain.Wallet, action string, call chain.Call) bool {
	if !chain.OnChain(w, t.cfg.Chain) {
		return t.refuse(action, "wallet not on processor network")
	}
	tx, err := w.SendTransaction(ctx, call)
	if err != nil {
		t.logger.Warn("Processor action failed", zap.String("action", action), zap.Error(err))
		metrics.ActionsTotal.WithLabelValues(action, "failed").Inc()
		return false
	}
	t.logger.Info("Processor action sent", zap.String("action", action), zap.String("tx", tx))
	metrics.ActionsTotal.WithLabelValues(action, "accepted").Inc()
	return true
}

func (t *Tracker) refuse(action, reason string) bool {
	t.logger.Debug("Processor action refused", zap.String("action", action), zap.String("reason", reason))
	metrics.ActionsTotal.WithLabelValues(action, "ignored").Inc()
	return false
}

func sameState(a, b State) bool {
	if !sameTTL(a.TTL, b.TTL) {
		return false
	}
	a.TTL, b.TTL = nil, nil
	return a == b
}

func sameTTL(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

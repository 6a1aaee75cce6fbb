package transfer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
)

const defaultPollInterval = 10 * time.Second

// errDisposed stops a step whose transfer was disposed while it was running.
var errDisposed = errors.New("transfer disposed")

// Emit reports an observation of the running stage. It returns false once the transfer is
// disposed, after which the step must return.
type Emit func(Observation) bool

// Step observes one stage. It returns nil once it has nothing more to report.
type Step interface {
	Run(ctx context.Context, emit Emit) error
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, emit Emit) error

func (f StepFunc) Run(ctx context.Context, emit Emit) error { return f(ctx, emit) }

// Sequence runs steps one after the other on the same stage. It stops after the first
// terminal observation.
func Sequence(steps ...Step) Step {
	return StepFunc(func(ctx context.Context, emit Emit) error {
		terminal := false
		track := func(o Observation) bool {
			if o.Status.Terminal() {
				terminal = true
			}
			return emit(o)
		}
		for _, s := range steps {
			if err := s.Run(ctx, track); err != nil {
				return err
			}
			if terminal {
				return nil
			}
		}
		return nil
	})
}

// PollTracker checks the chain on a fixed interval until the stage is terminal. A check
// error is logged, counted and retried on the next tick.
type PollTracker struct {
	Name     string
	Interval time.Duration
	Check    func(ctx context.Context) (Observation, error)
	// Until stops polling on a non-terminal observation. Stages that finish with a later
	// step use it to hand over.
	Until  func(Observation) bool
	Logger *zap.Logger
}

func (p PollTracker) Run(ctx context.Context, emit Emit) error {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		o, err := p.Check(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.ErrorsTotal.WithLabelValues("tracker", p.Name).Inc()
			logger.Debug("Check failed, retrying", zap.String("tracker", p.Name), zap.Error(err))
		default:
			if !emit(o) {
				return errDisposed
			}
			if o.Status.Terminal() || (p.Until != nil && p.Until(o)) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AwaitTracker reports pending, then waits for the first item matching Match and reports
// Observe of it. Lookup re-runs every Interval while the subscription is silent.
type AwaitTracker[T any] struct {
	Name             string
	Subscribe        subscription.Subscriber[T]
	Lookup           subscription.Lookup[T]
	Match            func(T) bool
	Observe          func(T) Observation
	Interval         time.Duration
	ResubscribeDelay time.Duration
	Logger           *zap.Logger
}

func (a AwaitTracker[T]) Run(ctx context.Context, emit Emit) error {
	if !emit(Pending()) {
		return errDisposed
	}

	f := subscription.AwaitFirst(ctx, a.Subscribe, a.Match, subscription.Options[T]{
		Lookup:           a.Lookup,
		LookupInterval:   a.Interval,
		ResubscribeDelay: a.ResubscribeDelay,
		Logger:           a.Logger,
		Name:             a.Name,
	})
	defer f.Cancel()

	v, err := f.Result()
	if err != nil {
		return err
	}
	if !emit(a.Observe(v)) {
		return errDisposed
	}
	return nil
}

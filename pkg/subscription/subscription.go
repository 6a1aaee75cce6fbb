// Package subscription provides the one-shot "first match, then unsubscribe" primitive
// every stage tracker is built on.
package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCancelled is the result of a future that was cancelled before a match arrived.
var ErrCancelled = errors.New("subscription cancelled")

// Subscription is a live stream of items from a chain.
// Err delivers at most one error after which the stream is dead.
type Subscription[T any] interface {
	Items() <-chan T
	Err() <-chan error
	Unsubscribe() error
}

// Subscriber opens a new subscription.
type Subscriber[T any] func(ctx context.Context) (Subscription[T], error)

// Lookup checks the current chain state for an item that already happened.
// It returns ok=false when nothing matches yet.
type Lookup[T any] func(ctx context.Context) (item T, ok bool, err error)

// Options tune AwaitFirst.
type Options[T any] struct {
	// Lookup, when set, runs before subscribing, on every retry and once the subscription is
	// live, so items emitted before the subscription existed are not missed.
	Lookup Lookup[T]
	// LookupInterval re-runs Lookup while a live subscription stays silent. Zero uses
	// ResubscribeDelay.
	LookupInterval time.Duration
	// ResubscribeDelay is the fixed wait before reopening a failed subscription.
	ResubscribeDelay time.Duration
	Logger           *zap.Logger
	Name             string
}

// Future is the pending result of AwaitFirst.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc

	once   sync.Once
	result T
	err    error
}

// Done is closed once the future resolved, with a match or with cancellation.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result blocks until the future resolves.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.result, f.err
}

// Cancel stops waiting. It is safe to call any number of times.
func (f *Future[T]) Cancel() {
	f.cancel()
	<-f.done
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.result = v
		f.err = err
		close(f.done)
	})
}

// AwaitFirst subscribes and resolves with the first item matching predicate, then
// unsubscribes. Subscription failures are retried after a fixed delay; teardown failures
// are logged and ignored.
func AwaitFirst[T any](ctx context.Context, subscribe Subscriber[T], predicate func(T) bool, opts Options[T]) *Future[T] {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = 5 * time.Second
	}
	if opts.LookupInterval <= 0 {
		opts.LookupInterval = opts.ResubscribeDelay
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &Future[T]{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer cancel()
		v, err := run(ctx, subscribe, predicate, opts)
		f.resolve(v, err)
	}()

	return f
}

func run[T any](ctx context.Context, subscribe Subscriber[T], predicate func(T) bool, opts Options[T]) (T, error) {
	var zero T
	logger := opts.Logger.With(zap.String("subscription", opts.Name))
	find := func() (T, bool) { return lookup(ctx, opts.Lookup, predicate, logger) }

	for {
		if v, ok := find(); ok {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ErrCancelled
		}

		sub, err := subscribe(ctx)
		if err != nil {
			logger.Warn("Failed to subscribe, retrying", zap.Error(err))
			if !sleep(ctx, opts.ResubscribeDelay) {
				return zero, ErrCancelled
			}
			continue
		}

		// the item may have landed between the last lookup and the subscription going live
		if v, ok := find(); ok {
			teardown(sub, logger)
			return v, nil
		}

		v, matched, err := consume(ctx, sub, predicate, opts.LookupInterval, find)
		teardown(sub, logger)
		if matched {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ErrCancelled
		}

		logger.Warn("Subscription dropped, resubscribing", zap.Error(err))
		if !sleep(ctx, opts.ResubscribeDelay) {
			return zero, ErrCancelled
		}
	}
}

// consume reads the subscription until an item matches. find runs every interval so an
// item the stream never delivers is still picked up from chain state.
func consume[T any](ctx context.Context, sub Subscription[T], predicate func(T) bool, interval time.Duration, find func() (T, bool)) (T, bool, error) {
	var zero T
	items := sub.Items()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return zero, false, err
		case v, ok := <-items:
			if !ok {
				return zero, false, errors.New("subscription closed")
			}
			if predicate(v) {
				return v, true, nil
			}
		case <-ticker.C:
			if v, ok := find(); ok {
				return v, true, nil
			}
		}
	}
}

func lookup[T any](ctx context.Context, fn Lookup[T], predicate func(T) bool, logger *zap.Logger) (T, bool) {
	var zero T
	if fn == nil {
		return zero, false
	}
	v, ok, err := fn(ctx)
	if err != nil {
		logger.Debug("Lookup failed", zap.Error(err))
		return zero, false
	}
	if !ok || !predicate(v) {
		return zero, false
	}
	return v, true
}

func teardown[T any](sub Subscription[T], logger *zap.Logger) {
	if err := sub.Unsubscribe(); err != nil {
		logger.Warn("Failed to unsubscribe", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

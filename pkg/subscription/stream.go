package subscription

import (
	"context"
	"sync"
)

// Stream is a channel backed Subscription used by the chain clients.
type Stream[T any] struct {
	items chan T
	errs  chan error

	stopOnce sync.Once
	stop     func() error
	stopErr  error
	closed   chan struct{}
}

// NewStream returns a stream whose Unsubscribe runs stop exactly once.
func NewStream[T any](buffer int, stop func() error) *Stream[T] {
	return &Stream[T]{
		items:  make(chan T, buffer),
		errs:   make(chan error, 1),
		stop:   stop,
		closed: make(chan struct{}),
	}
}

func (s *Stream[T]) Items() <-chan T { return s.items }

func (s *Stream[T]) Err() <-chan error { return s.errs }

// Closed is closed once Unsubscribe was called.
func (s *Stream[T]) Closed() <-chan struct{} { return s.closed }

// Send delivers v unless the stream was unsubscribed or ctx is done.
func (s *Stream[T]) Send(ctx context.Context, v T) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.items <- v:
		return true
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// Fail reports a terminal stream error. Only the first error is kept.
func (s *Stream[T]) Fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// Unsubscribe releases the underlying resources.
func (s *Stream[T]) Unsubscribe() error {
	s.stopOnce.Do(func() {
		close(s.closed)
		if s.stop != nil {
			s.stopErr = s.stop()
		}
	})
	return s.stopErr
}

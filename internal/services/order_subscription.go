package services

import (
	"context"
	"errors"
	"iter"
	"sync"
)

var (
	// ErrSubscriptionClosed is returned by Next after Close.
	ErrSubscriptionClosed = errors.New("order subscription: closed")
	// ErrSubscriptionEnded is returned when the store stopped the stream without an error.
	ErrSubscriptionEnded = errors.New("order subscription: stream ended")
)

// OrderSubscription is a live view over ledger snapshots. The underlying stream is opened
// lazily by the first Next and can be dropped with Restart or disposed with Close. Next calls
// are serialised; Restart and Close are safe from any goroutine.
type OrderSubscription struct {
	base context.Context
	open func(context.Context) iter.Seq2[OrderSnapshot, error]

	busy sync.Mutex

	mu     sync.Mutex
	next   func() (OrderSnapshot, error, bool)
	stop   func()
	cancel context.CancelFunc
	stale  bool
	closed bool
}

func newOrderSubscription(ctx context.Context, open func(context.Context) iter.Seq2[OrderSnapshot, error]) *OrderSubscription {
	if ctx == nil {
		ctx = context.Background()
	}
	return &OrderSubscription{base: context.WithoutCancel(ctx), open: open}
}

// Next blocks until the next snapshot. Cancelling ctx drops the stream; a later Next
// re-opens it.
func (s *OrderSubscription) Next(ctx context.Context) (OrderSnapshot, error) {
	s.busy.Lock()
	defer s.busy.Unlock()

	for {
		s.mu.Lock()
		if s.closed {
			s.resetLocked()
			s.mu.Unlock()
			return OrderSnapshot{}, ErrSubscriptionClosed
		}
		if s.stale {
			s.resetLocked()
			s.stale = false
		}
		if s.next == nil {
			streamCtx, cancel := context.WithCancel(s.base)
			s.next, s.stop = iter.Pull2(s.open(streamCtx))
			s.cancel = cancel
		}
		next, cancel := s.next, s.cancel
		s.mu.Unlock()

		release := context.AfterFunc(ctx, cancel)
		snapshot, err, ok := next()
		release()

		if ok && err == nil && ctx.Err() == nil {
			return snapshot, nil
		}

		s.mu.Lock()
		s.resetLocked()
		closed, stale := s.closed, s.stale
		s.stale = false
		s.mu.Unlock()

		switch {
		case closed:
			return OrderSnapshot{}, ErrSubscriptionClosed
		case ctx.Err() != nil:
			return OrderSnapshot{}, ctx.Err()
		case stale:
			continue
		case ok:
			return OrderSnapshot{}, err
		default:
			return OrderSnapshot{}, ErrSubscriptionEnded
		}
	}
}

// Restart drops the current stream. The next Next re-opens it and yields a full snapshot.
func (s *OrderSubscription) Restart() {
	s.mu.Lock()
	if s.closed || s.next == nil {
		s.mu.Unlock()
		return
	}
	s.stale = true
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
}

// Close disposes the subscription. It is idempotent.
func (s *OrderSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// An in-flight Next releases the stream itself.
	if s.busy.TryLock() {
		s.mu.Lock()
		s.resetLocked()
		s.mu.Unlock()
		s.busy.Unlock()
	}
	return nil
}

// All adapts the subscription to a range-over-func sequence. Iteration ends on Close, on ctx
// cancellation, or after yielding a stream error.
func (s *OrderSubscription) All(ctx context.Context) iter.Seq2[OrderSnapshot, error] {
	return func(yield func(OrderSnapshot, error) bool) {
		for {
			snapshot, err := s.Next(ctx)
			if err != nil {
				if errors.Is(err, ErrSubscriptionClosed) || ctx.Err() != nil {
					return
				}
				yield(OrderSnapshot{}, err)
				return
			}
			if !yield(snapshot, nil) {
				return
			}
		}
	}
}

// resetLocked must be called with mu held and without a concurrent pull in progress.
func (s *OrderSubscription) resetLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.next = nil
}

package docstore

import (
	"context"
	"errors"
	"sync"
)

// Subscription is a live view of a query. C receives the complete result set
// after the subscription starts and after every relevant change; deliveries
// are coalesced, so a slow reader sees the latest state rather than every step.
// C is closed once the subscription is released, either by Close, by the
// parent context or by a backend failure (see Err).
type Subscription struct {
	C <-chan []Document

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Close stops deliveries and blocks until the backend listener is released.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed after the subscription has been fully released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the failure that ended the subscription, or nil when it was
// cancelled by the caller.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Feed is what a backend supplies to build a Subscription.
type Feed struct {
	// Load returns the current result set.
	Load func(ctx context.Context) ([]Document, error)
	// Changes signals that the result set may have changed. Closing it ends
	// the subscription with ErrUnavailable.
	Changes <-chan struct{}
	// Release frees backend resources; it runs exactly once, before C closes.
	Release func()
}

// NewSubscription starts the snapshot/reload loop for f. The loop stops when
// ctx is cancelled or Close is called.
func NewSubscription(ctx context.Context, f Feed) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan []Document)
	s := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(out)
		defer func() {
			if f.Release != nil {
				f.Release()
			}
		}()
		defer cancel()

		for {
			docs, err := f.Load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.setErr(err)
				}
				return
			}
			select {
			case out <- docs:
			case <-ctx.Done():
				return
			}
			select {
			case <-ctx.Done():
				return
			case _, ok := <-f.Changes:
				if !ok {
					if ctx.Err() == nil {
						s.setErr(Unavailable(errFeedClosed))
					}
					return
				}
			}
		}
	}()
	return s
}

var errFeedClosed = errors.New("docstore: change feed closed")

// Signal performs a non-blocking send on a 1-buffered change channel.
func Signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

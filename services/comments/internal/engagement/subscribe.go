package engagement

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/logging"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

// Subscription is a live comment feed. C receives the complete, ordered
// comment set once on start and again after every change; intermediate
// states may be skipped when the reader is slower than the writers.
// C is closed after Close, after the parent context ends, or after a
// non-transient failure reported by Err. Transient store outages are
// bridged by reconnecting.
type Subscription struct {
	C <-chan []store.Comment

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Close stops the feed and returns once its store listener is released.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) Done() <-chan struct{} { return s.done }

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

type watchOpener func(ctx context.Context) (*store.Watch, error)

// SubscribeAll streams every comment, newest first.
func (s *Service) SubscribeAll(ctx context.Context) (*Subscription, error) {
	return s.subscribe(ctx, "all", s.store.WatchAll, sortNewestFirst)
}

// SubscribeThread streams one thread, oldest first.
func (s *Service) SubscribeThread(ctx context.Context, target store.Target) (*Subscription, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}
	open := func(ctx context.Context) (*store.Watch, error) {
		return s.store.WatchThread(ctx, target)
	}
	return s.subscribe(ctx, string(target.Type)+":"+target.ID, open, sortOldestFirst)
}

func (s *Service) subscribe(ctx context.Context, scope string, open watchOpener, order func([]store.Comment)) (*Subscription, error) {
	spanCtx, span := s.tracer.Start(ctx, "comments.subscribe", trace.WithAttributes(
		attribute.String("comment.scope", scope),
	))
	defer span.End()

	subCtx, cancel := context.WithCancel(ctx)
	var w *store.Watch
	err := s.retry.do(spanCtx, func(context.Context) error {
		var err error
		w, err = open(subCtx)
		return err
	})
	finish(span, err)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan []store.Comment)
	sub := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}
	go s.pump(subCtx, scope, sub, out, w, open, order)
	return sub, nil
}

// pump forwards watch deliveries to out, reopening the watch with backoff
// when the store drops it with ErrUnavailable.
func (s *Service) pump(ctx context.Context, scope string, sub *Subscription, out chan<- []store.Comment, w *store.Watch, open watchOpener, order func([]store.Comment)) {
	defer close(sub.done)
	defer close(out)
	defer func() {
		if w != nil {
			w.Close()
		}
	}()
	defer sub.cancel()

	log := logging.WithContext(ctx, s.log).With(zap.String("scope", scope))
	for {
		for comments := range w.C {
			order(comments)
			select {
			case out <- comments:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		err := w.Err()
		w.Close()
		w = nil
		if !errors.Is(err, ErrUnavailable) {
			if err != nil {
				log.Error("comment subscription failed", zap.Error(err))
			}
			sub.setErr(err)
			return
		}

		log.Warn("comment subscription lost, reconnecting", zap.Error(err))
		for attempt := 1; w == nil; attempt++ {
			if !sleep(ctx, s.retry.delay(attempt)) {
				return
			}
			w, err = open(ctx)
			if err != nil && !errors.Is(err, ErrUnavailable) {
				log.Error("comment subscription reconnect failed", zap.Error(err))
				sub.setErr(err)
				return
			}
		}
		log.Info("comment subscription restored")
	}
}

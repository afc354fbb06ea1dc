package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/artist-portfolio/internal/platform/docstore"
	"github.com/example/artist-portfolio/internal/platform/docstore/memstore"
	"github.com/example/artist-portfolio/services/comments/internal/publisher"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

var (
	artwork = store.Target{Type: store.TargetArtwork, ID: "art-1"}
	post    = store.Target{Type: store.TargetPost, ID: "post-1"}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

// Now advances one second per call so creation order is visible in CreatedAt.
func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []publisher.Event
}

func (r *recorder) Publish(_ context.Context, evt publisher.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Subject)
	}
	return out
}

func (r *recorder) last() publisher.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	docs  *memstore.Store
	store *store.DocCommentStore
	svc   *Service
	pub   *recorder
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	docs := memstore.New()
	cs := store.NewDocCommentStore(docs)
	f := &fixture{docs: docs, store: cs, pub: &recorder{}}
	o := Options{
		Publisher: f.pub,
		Now:       newClock().Now,
		Retry:     RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond},
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.svc = New(cs, o)
	return f
}

func (f *fixture) submit(t *testing.T, target store.Target, parent *store.Comment, content string) store.Comment {
	t.Helper()
	in := Input{Target: target, Content: content}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	c, err := f.svc.Submit(context.Background(), in, "")
	require.NoError(t, err)
	return c
}

func (f *fixture) all(t *testing.T) []store.Comment {
	t.Helper()
	cs, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	return cs
}

// requireNoOrphans checks every reply's parent exists in the same thread.
func requireNoOrphans(t *testing.T, cs []store.Comment) {
	t.Helper()
	byID := make(map[string]store.Comment, len(cs))
	for _, c := range cs {
		byID[c.ID] = c
	}
	for _, c := range cs {
		if c.ParentID == nil {
			continue
		}
		p, ok := byID[*c.ParentID]
		require.Truef(t, ok, "comment %s is orphaned (parent %s missing)", c.ID, *c.ParentID)
		require.Equal(t, c.Target(), p.Target())
	}
}

var errFlaky = docstore.Unavailable(errors.New("connection reset"))

// faultyStore wraps a CommentStore, failing selected calls and running
// hooks around others.
type faultyStore struct {
	store.CommentStore

	mu            sync.Mutex
	createFails   int
	createCalls   int
	toggleFails   int
	childrenCalls int
	childrenHook  func(call int)
	afterCreate   func(store.Comment)
	afterDeleteID func([]string)
	watchAll      func(ctx context.Context) (*store.Watch, error)
}

func (s *faultyStore) Create(ctx context.Context, c store.Comment) (store.Comment, error) {
	s.mu.Lock()
	s.createCalls++
	fail := s.createFails > 0
	if fail {
		s.createFails--
	}
	hook := s.afterCreate
	s.mu.Unlock()

	if fail {
		return store.Comment{}, errFlaky
	}
	created, err := s.CommentStore.Create(ctx, c)
	if err == nil && hook != nil {
		hook(created)
	}
	return created, err
}

func (s *faultyStore) ToggleLike(ctx context.Context, id, session string, at time.Time) (store.Comment, bool, error) {
	s.mu.Lock()
	fail := s.toggleFails > 0
	if fail {
		s.toggleFails--
	}
	s.mu.Unlock()
	if fail {
		return store.Comment{}, false, errFlaky
	}
	return s.CommentStore.ToggleLike(ctx, id, session, at)
}

func (s *faultyStore) Children(ctx context.Context, parentIDs []string) ([]store.Comment, error) {
	kids, err := s.CommentStore.Children(ctx, parentIDs)
	s.mu.Lock()
	s.childrenCalls++
	call, hook := s.childrenCalls, s.childrenHook
	s.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return kids, err
}

func (s *faultyStore) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	n, err := s.CommentStore.DeleteIDs(ctx, ids)
	if err == nil && s.afterDeleteID != nil {
		s.afterDeleteID(ids)
	}
	return n, err
}

func (s *faultyStore) WatchAll(ctx context.Context) (*store.Watch, error) {
	if s.watchAll != nil {
		return s.watchAll(ctx)
	}
	return s.CommentStore.WatchAll(ctx)
}

func newFaultyFixture(t *testing.T, opts ...func(*Options)) (*fixture, *faultyStore) {
	t.Helper()
	f := newFixture(t, opts...)
	fs := &faultyStore{CommentStore: f.store}
	o := Options{
		Publisher: f.pub,
		Now:       newClock().Now,
		Retry:     RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond},
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.svc = New(fs, o)
	return f, fs
}

// next reads one delivery or fails the test.
func next(t *testing.T, sub *Subscription) []store.Comment {
	t.Helper()
	select {
	case cs, ok := <-sub.C:
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return cs
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

// waitUntil reads deliveries until ok accepts one.
func waitUntil(t *testing.T, sub *Subscription, ok func([]store.Comment) bool) []store.Comment {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cs, open := <-sub.C:
			require.True(t, open, "subscription closed: %v", sub.Err())
			if ok(cs) {
				return cs
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching delivery")
		}
	}
}

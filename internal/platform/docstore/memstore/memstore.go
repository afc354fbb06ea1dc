// Package memstore is an in-process docstore.Store for tests and local
// development. Data does not survive a restart.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

type listener struct {
	collection string
	filter     docstore.Filter
	ch         chan struct{}
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document
	listeners   map[*listener]struct{}
	closed      bool
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
		listeners:   make(map[*listener]struct{}),
	}
}

func (s *Store) Create(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", docstore.Unavailable(errClosed)
	}
	coll := s.collection(collection)
	if _, exists := coll[doc.ID]; exists {
		return "", docstore.ErrConflict
	}
	coll[doc.ID] = doc
	s.notifyLocked(collection, doc)
	return doc.ID, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.Document{}, docstore.Unavailable(errClosed)
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.Unavailable(errClosed)
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	old := doc
	doc = doc.Clone()
	for k, v := range fields {
		doc.Fields[k] = v
	}
	s.collections[collection][id] = doc
	s.notifyLocked(collection, old, doc)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	n, err := s.DeleteMany(ctx, collection, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, docstore.Unavailable(errClosed)
	}
	coll := s.collections[collection]
	var removed []docstore.Document
	for _, id := range ids {
		if doc, ok := coll[id]; ok {
			delete(coll, id)
			removed = append(removed, doc)
		}
	}
	if len(removed) > 0 {
		s.notifyLocked(collection, removed...)
	}
	return len(removed), nil
}

func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, docstore.Unavailable(errClosed)
	}
	out := make([]docstore.Document, 0)
	for _, doc := range s.collections[collection] {
		if filter.Match(doc) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (s *Store) ToggleMember(ctx context.Context, collection, id string, t docstore.Toggle) (docstore.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.Document{}, false, docstore.Unavailable(errClosed)
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, false, docstore.ErrNotFound
	}
	old := doc
	doc = doc.Clone()

	members := doc.Strings(t.SetField)
	added := true
	next := make([]string, 0, len(members)+1)
	for _, m := range members {
		if m == t.Member {
			added = false
			continue
		}
		next = append(next, m)
	}
	if added {
		next = append(next, t.Member)
	}
	doc.Fields[t.SetField] = next
	doc.Fields[t.CountField] = int64(len(next))
	for k, v := range t.Set {
		doc.Fields[k] = v
	}

	s.collections[collection][id] = doc
	s.notifyLocked(collection, old, doc)
	return doc.Clone(), added, nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, filter docstore.Filter) (*docstore.Subscription, error) {
	l := &listener{collection: collection, filter: filter, ch: make(chan struct{}, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.Unavailable(errClosed)
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	return docstore.NewSubscription(ctx, docstore.Feed{
		Load: func(ctx context.Context) ([]docstore.Document, error) {
			return s.Query(ctx, collection, filter)
		},
		Changes: l.ch,
		Release: func() {
			s.mu.Lock()
			delete(s.listeners, l)
			s.mu.Unlock()
		},
	}), nil
}

// Listeners reports how many subscriptions are currently attached.
func (s *Store) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Close ends every subscription with ErrUnavailable and rejects further calls.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for l := range s.listeners {
		close(l.ch)
	}
	s.listeners = make(map[*listener]struct{})
	return nil
}

func (s *Store) collection(name string) map[string]docstore.Document {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]docstore.Document)
		s.collections[name] = coll
	}
	return coll
}

// notifyLocked wakes listeners whose filter matches any of the given
// versions of the changed documents.
func (s *Store) notifyLocked(collection string, versions ...docstore.Document) {
	for l := range s.listeners {
		if l.collection != collection {
			continue
		}
		for _, d := range versions {
			if l.filter.Match(d) {
				docstore.Signal(l.ch)
				break
			}
		}
	}
}

var errClosed = errors.New("memstore: closed")

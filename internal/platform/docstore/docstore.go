// Package docstore is a small document-store abstraction: collections of
// schemaless documents keyed by id, with equality queries, an atomic
// set-membership toggle and live result-set subscriptions.
//
// Backends live in the memstore, mongostore and pgstore subpackages.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("docstore: document not found")
	ErrConflict = errors.New("docstore: document already exists")
	// ErrUnavailable marks transient failures (network, timeouts, contention).
	// Only idempotent operations should be retried on it.
	ErrUnavailable = errors.New("docstore: store unavailable")
)

// Unavailable wraps err so that errors.Is(result, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Toggle describes an atomic set-membership flip on one document.
// If Member is in SetField it is removed, otherwise added; CountField always
// ends equal to the cardinality of SetField. Set holds extra fields written in
// the same atomic step.
type Toggle struct {
	SetField   string
	CountField string
	Member     string
	Set        map[string]any
}

type Store interface {
	// Create stores doc. An empty doc.ID is replaced with a generated one.
	// A duplicate id yields ErrConflict.
	Create(ctx context.Context, collection string, doc Document) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update merges fields into the document (top-level keys only).
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// DeleteMany removes every listed id that exists and reports how many went.
	DeleteMany(ctx context.Context, collection string, ids []string) (int, error)
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// ToggleMember applies t atomically and reports whether Member was added.
	ToggleMember(ctx context.Context, collection, id string, t Toggle) (Document, bool, error)
	// Subscribe delivers the full result set of filter once, then again after
	// every change that may affect it.
	Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error)
	Close(ctx context.Context) error
}

// Indexer is implemented by backends that can index the fields a caller
// filters on. Callers type-assert for it at startup.
type Indexer interface {
	EnsureIndex(ctx context.Context, collection string, fields ...string) error
}

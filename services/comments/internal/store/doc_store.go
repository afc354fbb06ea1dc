package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

// DocCommentStore implements CommentStore on any docstore backend.
type DocCommentStore struct {
	docs docstore.Store
}

var _ CommentStore = (*DocCommentStore)(nil)

func NewDocCommentStore(docs docstore.Store) *DocCommentStore {
	return &DocCommentStore{docs: docs}
}

// EnsureIndexes declares the fields comment queries filter on, when the
// backend supports indexes.
func (s *DocCommentStore) EnsureIndexes(ctx context.Context) error {
	ix, ok := s.docs.(docstore.Indexer)
	if !ok {
		return nil
	}
	return ix.EnsureIndex(ctx, Collection, fieldTargetID, fieldParentID)
}

func (s *DocCommentStore) Create(ctx context.Context, c Comment) (Comment, error) {
	doc := toDocument(c)
	id, err := s.docs.Create(ctx, Collection, doc)
	if err != nil {
		return Comment{}, err
	}
	doc.ID = id
	return fromDocument(doc), nil
}

func (s *DocCommentStore) Get(ctx context.Context, id string) (Comment, error) {
	doc, err := s.docs.Get(ctx, Collection, id)
	if err != nil {
		return Comment{}, err
	}
	return fromDocument(doc), nil
}

func (s *DocCommentStore) ToggleLike(ctx context.Context, commentID, sessionID string, at time.Time) (Comment, bool, error) {
	doc, added, err := s.docs.ToggleMember(ctx, Collection, commentID, docstore.Toggle{
		SetField:   fieldLikedBy,
		CountField: fieldLikes,
		Member:     sessionID,
		Set:        map[string]any{fieldUpdatedAt: at.UTC()},
	})
	if err != nil {
		return Comment{}, false, err
	}
	return fromDocument(doc), added, nil
}

func (s *DocCommentStore) ListThread(ctx context.Context, target Target) ([]Comment, error) {
	docs, err := s.docs.Query(ctx, Collection, threadFilter(target))
	if err != nil {
		return nil, err
	}
	return fromDocuments(docs), nil
}

func (s *DocCommentStore) ListAll(ctx context.Context) ([]Comment, error) {
	docs, err := s.docs.Query(ctx, Collection, nil)
	if err != nil {
		return nil, err
	}
	return fromDocuments(docs), nil
}

func (s *DocCommentStore) Children(ctx context.Context, parentIDs []string) ([]Comment, error) {
	if len(parentIDs) == 0 {
		return []Comment{}, nil
	}
	docs, err := s.docs.Query(ctx, Collection, docstore.Filter{docstore.In(fieldParentID, parentIDs...)})
	if err != nil {
		return nil, err
	}
	return fromDocuments(docs), nil
}

func (s *DocCommentStore) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	return s.docs.DeleteMany(ctx, Collection, ids)
}

func (s *DocCommentStore) Bury(ctx context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		_, err := s.docs.Create(ctx, TombstoneCollection, docstore.Document{
			ID:     id,
			Fields: map[string]any{fieldDeletedAt: at.UTC()},
		})
		if err != nil && !errors.Is(err, docstore.ErrConflict) {
			return err
		}
	}
	return nil
}

func (s *DocCommentStore) Buried(ctx context.Context, id string) (bool, error) {
	_, err := s.docs.Get(ctx, TombstoneCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DocCommentStore) WatchThread(ctx context.Context, target Target) (*Watch, error) {
	sub, err := s.docs.Subscribe(ctx, Collection, threadFilter(target))
	if err != nil {
		return nil, err
	}
	return newWatch(sub), nil
}

func (s *DocCommentStore) WatchAll(ctx context.Context) (*Watch, error) {
	sub, err := s.docs.Subscribe(ctx, Collection, nil)
	if err != nil {
		return nil, err
	}
	return newWatch(sub), nil
}

package store

import (
	"context"
	"time"
)

const (
	// Collection is the docstore collection holding comments.
	Collection = "comments"
	// TombstoneCollection holds one document per deleted comment id.
	TombstoneCollection = "comment_tombstones"
)

type TargetType string

const (
	TargetArtwork TargetType = "artwork"
	TargetPost    TargetType = "post"
)

func (t TargetType) Valid() bool {
	return t == TargetArtwork || t == TargetPost
}

// Target identifies one thread: the artwork or post a comment is attached to.
type Target struct {
	Type TargetType `json:"targetType"`
	ID   string     `json:"targetId"`
}

// Comment is one stored comment. Likes always equals len(LikedBy).
type Comment struct {
	ID         string     `json:"id"`
	TargetID   string     `json:"targetId"`
	TargetType TargetType `json:"targetType"`
	ParentID   *string    `json:"parentId,omitempty"`
	AuthorName string     `json:"authorName"`
	Content    string     `json:"content"`
	Likes      int        `json:"likes"`
	LikedBy    []string   `json:"likedBy"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

func (c Comment) Target() Target {
	return Target{Type: c.TargetType, ID: c.TargetID}
}

// CommentStore is comment persistence. Errors from the document store
// (docstore.ErrNotFound, docstore.ErrUnavailable, docstore.ErrConflict) pass
// through unchanged so callers can classify them.
type CommentStore interface {
	// Create stores c under c.ID.
	Create(ctx context.Context, c Comment) (Comment, error)
	Get(ctx context.Context, id string) (Comment, error)
	// ToggleLike adds sessionID to the comment's likers or removes it, and
	// reports whether it was added.
	ToggleLike(ctx context.Context, commentID, sessionID string, at time.Time) (Comment, bool, error)
	ListThread(ctx context.Context, target Target) ([]Comment, error)
	ListAll(ctx context.Context) ([]Comment, error)
	// Children returns the direct replies of any of parentIDs.
	Children(ctx context.Context, parentIDs []string) ([]Comment, error)
	DeleteIDs(ctx context.Context, ids []string) (int, error)
	// Bury records ids as deleted. Burying an id twice is not an error.
	Bury(ctx context.Context, ids []string, at time.Time) error
	// Buried reports whether id was ever buried.
	Buried(ctx context.Context, id string) (bool, error)
	WatchThread(ctx context.Context, target Target) (*Watch, error)
	WatchAll(ctx context.Context) (*Watch, error)
}

package grpcapi

import (
	"github.com/example/artist-portfolio/services/comments/internal/engagement"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

type SubmitCommentRequest struct {
	TargetType     string  `json:"targetType"`
	TargetID       string  `json:"targetId"`
	ParentID       *string `json:"parentId,omitempty"`
	AuthorName     string  `json:"authorName,omitempty"`
	Content        string  `json:"content"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

type ToggleLikeRequest struct {
	CommentID string `json:"commentId"`
	SessionID string `json:"sessionId"`
}

type DeleteCommentRequest struct {
	TargetID  string `json:"targetId"`
	CommentID string `json:"commentId"`
}

type DeleteCommentResponse struct{}

type ListThreadRequest struct {
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
}

type ListThreadResponse struct {
	Comments []engagement.Node `json:"comments"`
}

type SubscribeAllRequest struct{}

// SubscribeAllResponse is one snapshot of every comment, newest first.
type SubscribeAllResponse struct {
	Comments []store.Comment `json:"comments"`
}

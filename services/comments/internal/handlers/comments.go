package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/api"
	"github.com/example/artist-portfolio/internal/platform/httpserver"
	"github.com/example/artist-portfolio/services/comments/internal/engagement"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

const (
	maxBodyBytes      = 64 << 10
	sessionHeader     = "X-Session-Id"
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 255
)

// CommentService is the subset of the engagement service the HTTP layer uses.
type CommentService interface {
	Submit(ctx context.Context, in engagement.Input, idempotencyKey string) (store.Comment, error)
	ToggleLike(ctx context.Context, in engagement.LikeInput) (store.Comment, error)
	Delete(ctx context.Context, targetID, commentID string) error
	ThreadTree(ctx context.Context, target store.Target) ([]engagement.Node, error)
	All(ctx context.Context) ([]store.Comment, error)
}

type createCommentRequest struct {
	ParentID   *string `json:"parentId,omitempty"`
	AuthorName string  `json:"authorName"`
	Content    string  `json:"content"`
}

type likeRequest struct {
	SessionID string `json:"sessionId"`
}

type threadResponse struct {
	Comments []engagement.Node `json:"comments"`
}

type listResponse struct {
	Comments []store.Comment `json:"comments"`
}

func targetFromPath(r *http.Request) store.Target {
	return store.Target{
		Type: store.TargetType(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "target_type")))),
		ID:   strings.TrimSpace(chi.URLParam(r, "target_id")),
	}
}

// GetThread handles GET /v1/threads/{target_type}/{target_id}/comments
func GetThread(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes, err := svc.ThreadTree(r.Context(), targetFromPath(r))
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, threadResponse{Comments: nodes})
	}
}

// CreateComment handles POST /v1/threads/{target_type}/{target_id}/comments
func CreateComment(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req createCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if len(key) > maxIdempotencyKey {
			api.Validation(w, "invalid Idempotency-Key: is too long", idempotencyHeader, "is too long", rid)
			return
		}

		c, err := svc.Submit(r.Context(), engagement.Input{
			Target:     targetFromPath(r),
			ParentID:   req.ParentID,
			AuthorName: req.AuthorName,
			Content:    req.Content,
		}, key)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, c)
	}
}

// ToggleLike handles POST /v1/comments/{comment_id}/like
// The session comes from X-Session-Id, or from the body when the header is absent.
func ToggleLike(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		session := strings.TrimSpace(r.Header.Get(sessionHeader))
		if session == "" {
			var req likeRequest
			err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
			if err != nil && !errors.Is(err, io.EOF) {
				api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
				return
			}
			session = strings.TrimSpace(req.SessionID)
		}

		c, err := svc.ToggleLike(r.Context(), engagement.LikeInput{
			CommentID: strings.TrimSpace(chi.URLParam(r, "comment_id")),
			SessionID: session,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, c)
	}
}

// ListAll handles GET /v1/admin/comments
func ListAll(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		comments, err := svc.All(r.Context())
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, listResponse{Comments: comments})
	}
}

// DeleteComment handles DELETE /v1/admin/targets/{target_id}/comments/{comment_id}
func DeleteComment(svc CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Delete(r.Context(),
			strings.TrimSpace(chi.URLParam(r, "target_id")),
			strings.TrimSpace(chi.URLParam(r, "comment_id")),
		)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

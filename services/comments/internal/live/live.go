// Package live pushes comment snapshots to websocket clients. Each
// connection owns one engagement subscription; the subscription is released
// as soon as the socket goes away.
package live

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/api"
	"github.com/example/artist-portfolio/internal/platform/httpserver"
	"github.com/example/artist-portfolio/internal/platform/logging"
	"github.com/example/artist-portfolio/services/comments/internal/engagement"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512
)

type Subscriber interface {
	SubscribeAll(ctx context.Context) (*engagement.Subscription, error)
	SubscribeThread(ctx context.Context, target store.Target) (*engagement.Subscription, error)
}

// ThreadFrame is sent on thread streams.
type ThreadFrame struct {
	Type     string            `json:"type"`
	Comments []engagement.Node `json:"comments"`
}

// ListFrame is sent on the moderation stream.
type ListFrame struct {
	Type     string          `json:"type"`
	Comments []store.Comment `json:"comments"`
}

const frameSnapshot = "snapshot"

type Handler struct {
	svc      Subscriber
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New builds the stream handlers. allowedOrigins follows CORS_ALLOWED_ORIGINS:
// "*" accepts any origin.
func New(svc Subscriber, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(a, origin)
		})
	}
}

// Thread handles GET /v1/threads/{target_type}/{target_id}/comments/stream
func (h *Handler) Thread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := store.Target{
			Type: store.TargetType(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "target_type")))),
			ID:   strings.TrimSpace(chi.URLParam(r, "target_id")),
		}
		h.serve(w, r,
			func(ctx context.Context) (*engagement.Subscription, error) {
				return h.svc.SubscribeThread(ctx, target)
			},
			func(cs []store.Comment) any {
				return ThreadFrame{Type: frameSnapshot, Comments: engagement.BuildTree(cs)}
			},
		)
	}
}

// All handles GET /v1/admin/comments/stream
func (h *Handler) All() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, h.svc.SubscribeAll, func(cs []store.Comment) any {
			return ListFrame{Type: frameSnapshot, Comments: cs}
		})
	}
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, subscribe func(context.Context) (*engagement.Subscription, error), frame func([]store.Comment) any) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := logging.WithContext(r.Context(), h.log)
	rid := httpserver.RequestIDFromContext(r.Context())

	sub, err := subscribe(ctx)
	if err != nil {
		var ve *engagement.ValidationError
		switch {
		case errors.As(err, &ve):
			api.Validation(w, ve.Error(), ve.Field, ve.Reason, rid)
		case errors.Is(err, engagement.ErrUnavailable):
			api.ServiceUnavailable(w, "STORE_UNAVAILABLE", "comment store is temporarily unavailable", rid)
		default:
			log.Error("open comment stream", zap.Error(err))
			api.Internal(w, rid)
		}
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	go readPump(conn, cancel)
	if err := writePump(ctx, conn, sub, frame); err != nil {
		log.Debug("comment stream ended", zap.Error(err))
	}
}

// readPump discards client frames and keeps the read deadline fresh. Any
// read error means the peer is gone.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *engagement.Subscription, frame func([]store.Comment) any) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return ctx.Err()
		case comments, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed closed"))
				return sub.Err()
			}
			if err := conn.WriteJSON(frame(comments)); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

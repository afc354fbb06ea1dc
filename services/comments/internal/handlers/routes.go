package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/auth"
)

// Streams holds the websocket endpoints, mounted next to the REST routes.
type Streams struct {
	Thread http.HandlerFunc
	All    http.HandlerFunc
}

type Options struct {
	Verifier auth.JWTVerifier
	Streams  Streams
	// WriteLimit wraps the anonymous write routes (submit, like). Nil disables it.
	WriteLimit func(http.Handler) http.Handler
	Logger     *zap.Logger
}

// Mount registers the public comment routes and the moderator routes.
func Mount(r chi.Router, svc CommentService, opts Options) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	verifier, streams := opts.Verifier, opts.Streams

	r.Get("/v1/threads/{target_type}/{target_id}/comments", GetThread(svc, log))
	r.Group(func(r chi.Router) {
		if opts.WriteLimit != nil {
			r.Use(opts.WriteLimit)
		}
		r.Post("/v1/threads/{target_type}/{target_id}/comments", CreateComment(svc, log))
		r.Post("/v1/comments/{comment_id}/like", ToggleLike(svc, log))
	})
	if streams.Thread != nil {
		r.Get("/v1/threads/{target_type}/{target_id}/comments/stream", streams.Thread)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(auth.RequireAdmin)
		r.Get("/v1/admin/comments", ListAll(svc, log))
		r.Delete("/v1/admin/targets/{target_id}/comments/{comment_id}", DeleteComment(svc, log))
	})

	if streams.All != nil {
		r.Group(func(r chi.Router) {
			r.Use(tokenFromQuery)
			r.Use(auth.RequireUser(verifier))
			r.Use(auth.RequireAdmin)
			r.Get("/v1/admin/comments/stream", streams.All)
		})
	}
}

// tokenFromQuery lets browser websocket clients, which cannot set headers,
// pass the moderator token as ?access_token=.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if tok := strings.TrimSpace(r.URL.Query().Get("access_token")); tok != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		next.ServeHTTP(w, r)
	})
}

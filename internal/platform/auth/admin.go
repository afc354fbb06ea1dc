package auth

import (
	"net/http"
	"strings"

	"github.com/example/artist-portfolio/internal/platform/api"
	"github.com/example/artist-portfolio/internal/platform/httpserver"
)

// RoleAdmin is the role claim carried by moderator tokens.
const RoleAdmin = "admin"

// RequireAdmin allows request only if RequireUser already injected role=admin into context.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		if !strings.EqualFold(strings.TrimSpace(role), RoleAdmin) {
			api.Forbidden(w, "FORBIDDEN", "moderator role required", httpserver.RequestIDFromContext(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

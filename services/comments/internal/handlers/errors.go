package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/api"
	"github.com/example/artist-portfolio/internal/platform/httpserver"
	"github.com/example/artist-portfolio/internal/platform/logging"
	"github.com/example/artist-portfolio/services/comments/internal/engagement"
)

// writeServiceError maps engagement errors onto the API error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())

	var ve *engagement.ValidationError
	switch {
	case errors.As(err, &ve):
		api.Validation(w, ve.Error(), ve.Field, ve.Reason, rid)
	case errors.Is(err, engagement.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "comment not found", rid)
	case errors.Is(err, engagement.ErrUnavailable):
		logging.WithContext(r.Context(), log).Warn("comment store unavailable", zap.Error(err))
		api.ServiceUnavailable(w, "STORE_UNAVAILABLE", "comment store is temporarily unavailable", rid)
	default:
		logging.WithContext(r.Context(), log).Error("comment request failed", zap.Error(err))
		api.Internal(w, rid)
	}
}

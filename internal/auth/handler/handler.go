// Package handler exposes API token self-revocation.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/httputil"
	"certwallet/pkg/requestcontext"
)

type Revoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type Handler struct {
	revoker Revoker
	logger  *slog.Logger
}

func New(revoker Revoker, logger *slog.Logger) *Handler {
	return &Handler{revoker: revoker, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/revoke", h.HandleRevoke)
}

// HandleRevoke handles POST /auth/revoke. The token that authenticated the
// request is rejected from then on until it expires.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := requestcontext.BearerToken(ctx)
	if !ok || token.ID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token has no id to revoke"))
		return
	}
	ttl := token.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.revoker.RevokeToken(ctx, token.ID, ttl); err != nil {
		h.logger.ErrorContext(ctx, "token revocation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token"))
		return
	}
	h.logger.InfoContext(ctx, "api token revoked",
		"event", "token_revoked",
		"log_type", "audit",
		"subject", requestcontext.Subject(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certwallet/internal/auth/revocation"
	"certwallet/pkg/requestcontext"
)

func TestHandleRevoke(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	list := revocation.NewInMemoryList(func() time.Time { return now })
	router := chi.NewRouter()
	New(list, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(router)

	serve := func(token *requestcontext.Token) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/revoke", nil)
		ctx := requestcontext.WithTime(req.Context(), now)
		if token != nil {
			ctx = requestcontext.WithBearerToken(ctx, *token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	t.Run("revokes the calling token", func(t *testing.T) {
		rec := serve(&requestcontext.Token{ID: "jti-1", ExpiresAt: now.Add(time.Hour)})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		revoked, err := list.IsTokenRevoked(t.Context(), "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("expired tokens need nothing", func(t *testing.T) {
		rec := serve(&requestcontext.Token{ID: "jti-2", ExpiresAt: now.Add(-time.Minute)})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		revoked, err := list.IsTokenRevoked(t.Context(), "jti-2")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("tokens without an id", func(t *testing.T) {
		rec := serve(nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

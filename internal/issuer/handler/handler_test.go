package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"certwallet/internal/issuer/handler/mocks"
	"certwallet/internal/issuer/models"
	"certwallet/internal/issuer/service"
	dErrors "certwallet/pkg/domain-errors"
)

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, svc
}

func serve(r chi.Router, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleIntroduce(t *testing.T) {
	t.Run("maps the payload fields", func(t *testing.T) {
		r, svc := newTestRouter(t)
		svc.EXPECT().Introduce(gomock.Any(), service.IntroduceRequest{
			IntroductionURL: "https://acme.example/intro",
			Nonce:           "123456",
			Name:            "Acme",
			PublicKeyID:     "key-1",
		}).Return(&service.IntroduceResult{
			Profile: &models.Profile{ID: "issuer-1", Name: "Acme", PublicKeyID: "key-1", Verified: true},
			Linked:  2,
		}, nil)

		w := serve(r, http.MethodPost, "/issuers/introduce",
			`{"introductionURL":"https://acme.example/intro","nonce":" 123456 ","name":"Acme","publicKey":"key-1"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(2), resp["linked_credentials"])
		assert.Equal(t, true, resp["issuer"].(map[string]any)["verified"])
	})

	t.Run("requires a nonce", func(t *testing.T) {
		r, _ := newTestRouter(t)
		w := serve(r, http.MethodPost, "/issuers/introduce", `{"introductionURL":"https://acme.example/intro"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("handshake rejected", func(t *testing.T) {
		r, svc := newTestRouter(t)
		svc.EXPECT().Introduce(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "issuer rejected the introduction: status 401"))

		w := serve(r, http.MethodPost, "/issuers/introduce", `{"introductionURL":"https://acme.example/intro","nonce":"n"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("issuer unreachable", func(t *testing.T) {
		r, svc := newTestRouter(t)
		svc.EXPECT().Introduce(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "could not reach issuer acme.example"))

		w := serve(r, http.MethodPost, "/issuers/introduce", `{"introductionURL":"https://acme.example/intro","nonce":"n"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestHandleList(t *testing.T) {
	r, svc := newTestRouter(t)
	svc.EXPECT().List(gomock.Any()).Return([]models.Summary{
		{Profile: models.Profile{ID: "issuer-1", Name: "Acme"}, CredentialCount: 3},
	}, nil)

	w := serve(r, http.MethodGet, "/issuers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Issuers, 1)
	assert.Equal(t, 3, resp.Issuers[0].CredentialCount)
	assert.Equal(t, "Acme", resp.Issuers[0].Name)
}

func TestHandleGetAndDelete(t *testing.T) {
	r, svc := newTestRouter(t)
	svc.EXPECT().Get(gomock.Any(), "missing").Return(nil, dErrors.New(dErrors.CodeNotFound, "issuer not found"))
	svc.EXPECT().Delete(gomock.Any(), "issuer-1").Return(nil)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/issuers/missing", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/issuers/issuer-1", "").Code)
}

func TestHandleHolder(t *testing.T) {
	r, svc := newTestRouter(t)
	svc.EXPECT().HolderAddress().Return("0xabc")

	w := serve(r, http.MethodGet, "/holder", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"address":"0xabc"}`, w.Body.String())
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"certwallet/internal/credential/models"
	"certwallet/internal/credential/service"
	"certwallet/internal/verification"
	"certwallet/internal/verification/ledger"
	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/httputil"
	"certwallet/pkg/requestcontext"
)

// Service defines the credential operations exposed over HTTP.
type Service interface {
	Import(ctx context.Context, req service.ImportRequest) (*service.ImportResult, error)
	Get(ctx context.Context, id string) (*models.Credential, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Credential, error)
	Delete(ctx context.Context, id string) error
	Verify(ctx context.Context, id string, progress func(verification.Notification)) (*service.VerifyResult, error)
	Anchor(ctx context.Context, id string) (*ledger.Preview, error)
	Scan(ctx context.Context, payload string) (*service.ScanResult, error)
}

// Handler wires credential endpoints to the credential service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts credential endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials/import", h.HandleImport)
	r.Get("/credentials", h.HandleList)
	r.Get("/credentials/{id}", h.HandleGet)
	r.Delete("/credentials/{id}", h.HandleDelete)
	r.Post("/credentials/{id}/verify", h.HandleVerify)
	r.Get("/credentials/{id}/anchor", h.HandleAnchor)
	r.Post("/scan", h.HandleScan)
}

// HandleImport handles POST /credentials/import.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ImportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Import(ctx, req.toService())
	if err != nil {
		h.logFailure(ctx, "credential import failed", err, "source", req.Source)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "credential imported",
		"request_id", requestID,
		"credential_id", res.Credential.ID,
		"source", res.Credential.Source,
		"issuer_unresolved", res.IssuerUnresolved,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toImportResponse(res))
}

// HandleList handles GET /credentials?issuerId=&q=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := models.Filter{
		IssuerID: strings.TrimSpace(r.URL.Query().Get("issuerId")),
		Query:    r.URL.Query().Get("q"),
	}
	creds, err := h.service.List(ctx, filter)
	if err != nil {
		h.logFailure(ctx, "credential list failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(creds))
}

// HandleGet handles GET /credentials/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}

// HandleDelete handles DELETE /credentials/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(ctx, id); err != nil {
		h.logFailure(ctx, "credential delete failed", err, "credential_id", id)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerify handles POST /credentials/{id}/verify. With ?stream=true the
// step notifications are sent as server-sent events before the verdict.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if r.URL.Query().Get("stream") == "true" {
		h.streamVerify(w, r, id)
		return
	}

	res, err := h.service.Verify(ctx, id, nil)
	if err != nil {
		h.logFailure(ctx, "credential verification failed", err, "credential_id", id)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Credential: toResponse(res.Credential), Result: res.Result})
}

func (h *Handler) streamVerify(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming is not supported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	var mu sync.Mutex
	send := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	res, err := h.service.Verify(ctx, id, func(n verification.Notification) {
		send("step", n)
	})
	if err != nil {
		h.logFailure(ctx, "credential verification failed", err, "credential_id", id)
		send("error", httputil.ErrorBody(err))
		return
	}
	send("result", VerifyResponse{Credential: toResponse(res.Credential), Result: res.Result})
}

// HandleAnchor handles GET /credentials/{id}/anchor.
func (h *Handler) HandleAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	preview, err := h.service.Anchor(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, preview)
}

// HandleScan handles POST /scan.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ScanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Scan(ctx, req.Payload)
	if err != nil {
		h.logFailure(ctx, "scan failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toScanResponse(res))
}

// logFailure logs client errors at info and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.InfoContext(ctx, msg, attrs...)
		return
	}
	h.logger.ErrorContext(ctx, msg, attrs...)
}

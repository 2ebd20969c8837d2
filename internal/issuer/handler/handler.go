package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"certwallet/internal/issuer/models"
	"certwallet/internal/issuer/service"
	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/httputil"
	"certwallet/pkg/requestcontext"
)

// Service defines the trust store operations exposed over HTTP.
type Service interface {
	Introduce(ctx context.Context, req service.IntroduceRequest) (*service.IntroduceResult, error)
	List(ctx context.Context) ([]models.Summary, error)
	Get(ctx context.Context, id string) (*models.Profile, error)
	Delete(ctx context.Context, id string) error
	HolderAddress() string
}

// Handler wires issuer and holder endpoints to the issuer service.
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

func (h *Handler) Register(r chi.Router) {
	r.Post("/issuers/introduce", h.HandleIntroduce)
	r.Get("/issuers", h.HandleList)
	r.Get("/issuers/{id}", h.HandleGet)
	r.Delete("/issuers/{id}", h.HandleDelete)
	r.Get("/holder", h.HandleHolder)
}

// IntroduceRequest is the body of POST /issuers/introduce.
type IntroduceRequest struct {
	IntroductionURL string `json:"introductionURL"`
	Nonce           string `json:"nonce"`
	Name            string `json:"name,omitempty"`
	PublicKey       string `json:"publicKey,omitempty"`
	Email           string `json:"email,omitempty"`
	Image           string `json:"image,omitempty"`
	ProfileURL      string `json:"profileURL,omitempty"`
}

func (r *IntroduceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.IntroductionURL = strings.TrimSpace(r.IntroductionURL)
	r.Nonce = strings.TrimSpace(r.Nonce)
	if r.IntroductionURL == "" {
		return dErrors.New(dErrors.CodeValidation, "introductionURL is required")
	}
	if r.Nonce == "" {
		return dErrors.New(dErrors.CodeValidation, "nonce is required")
	}
	return nil
}

type ListResponse struct {
	Issuers []models.Summary `json:"issuers"`
	Total   int              `json:"total"`
}

type HolderResponse struct {
	Address string `json:"address"`
}

// HandleIntroduce handles POST /issuers/introduce.
func (h *Handler) HandleIntroduce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IntroduceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Introduce(ctx, service.IntroduceRequest{
		IntroductionURL: req.IntroductionURL,
		Nonce:           req.Nonce,
		Name:            req.Name,
		PublicKeyID:     req.PublicKey,
		Email:           req.Email,
		Image:           req.Image,
		ProfileURL:      req.ProfileURL,
	})
	if err != nil {
		h.logger.InfoContext(ctx, "issuer introduction failed",
			"request_id", requestID,
			"introduction_url", req.IntroductionURL,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "issuer introduced",
		"request_id", requestID,
		"issuer_id", res.Profile.ID,
		"linked_credentials", res.Linked,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	issuers, err := h.service.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "issuer list failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Issuers: issuers, Total: len(issuers)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHolder handles GET /holder.
func (h *Handler) HandleHolder(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HolderResponse{Address: h.service.HolderAddress()})
}

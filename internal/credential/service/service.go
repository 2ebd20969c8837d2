// Package service orchestrates credential ingestion, verification and the
// wallet's credential queries.
package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"certwallet/internal/credential/metrics"
	"certwallet/internal/credential/models"
	"certwallet/internal/credential/normalizer"
	"certwallet/internal/credential/resolver"
	"certwallet/internal/verification"
	"certwallet/internal/verification/ledger"
	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/audit"
	"certwallet/pkg/platform/sentinel"
	"certwallet/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, credential *models.Credential) error
	Get(ctx context.Context, id string) (*models.Credential, error)
	Update(ctx context.Context, id string, patch models.Patch) (*models.Credential, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.Filter) ([]*models.Credential, error)
}

type Resolver interface {
	Resolve(ctx context.Context, cred *models.Credential) (resolver.Resolution, error)
	CheckDuplicate(ctx context.Context, cred *models.Credential) error
}

type Verifier interface {
	Verify(ctx context.Context, document []byte, opts ...verification.RunOption) *verification.Result
}

type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type AnchorPreviewer interface {
	Preview(ctx context.Context, txID string) (*ledger.Preview, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the credential use-case layer.
type Service struct {
	store    Store
	resolver Resolver
	verifier Verifier
	fetcher  DocumentFetcher
	anchors  AnchorPreviewer

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	inflight       singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAnchorPreviewer enables Anchor.
func WithAnchorPreviewer(p AnchorPreviewer) Option {
	return func(s *Service) {
		s.anchors = p
	}
}

func New(store Store, r Resolver, verifier Verifier, fetcher DocumentFetcher, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: r,
		verifier: verifier,
		fetcher:  fetcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, id string) (*models.Credential, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "failed to load credential")
	}
	return c, nil
}

// List returns held credentials, newest first, narrowed by issuer and a
// free-text query over title, issuer name and recipient.
func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.Credential, error) {
	creds, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return creds, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return translateStoreError(err, "failed to delete credential")
	}
	s.logAudit(ctx, audit.Event{Subject: id, Action: string(audit.EventCredentialDeleted)})
	return nil
}

// Anchor describes the payload anchored by the credential's ledger
// transaction.
func (s *Service) Anchor(ctx context.Context, id string) (*ledger.Preview, error) {
	if s.anchors == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "anchor preview is not configured")
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	txID, err := verification.DocumentTransactionID(c.Document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "credential has no readable ledger anchor")
	}
	preview, err := s.anchors.Preview(ctx, txID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "anchored transaction not found")
	case err != nil:
		s.logger.InfoContext(ctx, "anchor preview failed", "credential_id", id, "tx_id", txID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not reach the ledger gateway")
	}
	return preview, nil
}

// ScanResult is the outcome of Scan: an issuer introduction to confirm, or
// an imported credential.
type ScanResult struct {
	Kind         normalizer.Kind          `json:"kind"`
	Introduction *normalizer.Introduction `json:"introduction,omitempty"`
	Import       *ImportResult            `json:"import,omitempty"`
}

// Scan classifies a QR payload. Credentials and links are imported right
// away; introductions are returned for the holder to confirm.
func (s *Service) Scan(ctx context.Context, payload string) (*ScanResult, error) {
	c, err := normalizer.ClassifyQR(payload)
	if err != nil {
		return nil, err
	}
	if c.Kind == normalizer.KindIssuerIntroduction {
		return &ScanResult{Kind: c.Kind, Introduction: c.Introduction}, nil
	}
	res, err := s.Import(ctx, ImportRequest{Source: models.SourceQR, Content: payload})
	if err != nil {
		return nil, err
	}
	return &ScanResult{Kind: c.Kind, Import: res}, nil
}

func translateStoreError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "credential already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	attrs := []any{
		"event", event.Action,
		"log_type", "audit",
		"subject", event.Subject,
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if event.Outcome != "" {
		attrs = append(attrs, "outcome", event.Outcome)
	}
	s.logger.InfoContext(ctx, event.Action, attrs...)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

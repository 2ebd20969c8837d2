// Package service manages the trust store: the introduction handshake that
// adds verified issuers, listing with credential counts, and removal.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	credentialModels "certwallet/internal/credential/models"
	"certwallet/internal/issuer/metrics"
	"certwallet/internal/issuer/models"
	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/audit"
	"certwallet/pkg/platform/sentinel"
	"certwallet/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, profile *models.Profile) error
	Get(ctx context.Context, id string) (*models.Profile, error)
	FindByPublicKeyID(ctx context.Context, publicKeyID string) (*models.Profile, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Profile, error)
}

// CredentialStore is the slice of the credential repository the trust store
// needs for counts and for linking credentials to a newly trusted issuer.
type CredentialStore interface {
	CountByIssuer(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, filter credentialModels.Filter) ([]*credentialModels.Credential, error)
	Update(ctx context.Context, id string, patch credentialModels.Patch) (*credentialModels.Credential, error)
}

type Handshaker interface {
	Introduce(ctx context.Context, introductionURL, nonce, identityAddress string) error
}

type ProfileFetcher interface {
	FetchProfile(ctx context.Context, profileURL string) (*models.Metadata, error)
}

type Holder interface {
	Address() string
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Handshake outcomes.
const (
	handshakeAccepted = "accepted"
	handshakeRejected = "rejected"
)

type Service struct {
	store       Store
	credentials CredentialStore
	handshaker  Handshaker
	holder      Holder

	fetcher        ProfileFetcher
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
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

// WithProfileFetcher fills introduction fields the payload left out from
// the issuer's published profile.
func WithProfileFetcher(f ProfileFetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

func New(store Store, credentials CredentialStore, handshaker Handshaker, holder Holder, opts ...Option) *Service {
	s := &Service{
		store:       store,
		credentials: credentials,
		handshaker:  handshaker,
		holder:      holder,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntroduceRequest is the add-issuer flow input, usually the fields of a
// scanned introduction payload plus the one-time code.
type IntroduceRequest struct {
	IntroductionURL string
	Nonce           string
	Name            string
	PublicKeyID     string
	Email           string
	Image           string
	// ProfileURL is fetched for any field above that is empty.
	ProfileURL string
}

// IntroduceResult is the trusted profile and the number of held credentials
// that were linked to it.
type IntroduceResult struct {
	Profile *models.Profile `json:"issuer"`
	Linked  int             `json:"linked_credentials"`
}

// Introduce performs the handshake and, on success, stores the issuer as
// verified. An issuer already known by its key is upgraded in place.
// Credentials held with an unresolved issuer carrying the same key are
// linked to the profile.
func (s *Service) Introduce(ctx context.Context, req IntroduceRequest) (*IntroduceResult, error) {
	req.IntroductionURL = strings.TrimSpace(req.IntroductionURL)
	req.Nonce = strings.TrimSpace(req.Nonce)
	if req.IntroductionURL == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "introductionURL is required")
	}
	if req.Nonce == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "nonce is required")
	}

	if err := s.handshaker.Introduce(ctx, req.IntroductionURL, req.Nonce, s.holder.Address()); err != nil {
		s.incrementHandshake(handshakeRejected)
		s.logAudit(ctx, audit.Event{
			Subject: req.IntroductionURL,
			Action:  string(audit.EventIssuerRejected),
			Reason:  dErrors.MessageOf(err),
		})
		return nil, err
	}
	s.incrementHandshake(handshakeAccepted)

	s.complete(ctx, &req)
	profile, err := s.upsert(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.Event{
		Subject: profile.ID,
		Action:  string(audit.EventIssuerIntroduced),
		Outcome: handshakeAccepted,
		Reason:  req.IntroductionURL,
	})

	linked := s.link(ctx, profile)
	s.refreshTrusted(ctx)
	return &IntroduceResult{Profile: profile, Linked: linked}, nil
}

// complete fills missing request fields from the published profile. Fetch
// failures are logged and ignored.
func (s *Service) complete(ctx context.Context, req *IntroduceRequest) {
	if s.fetcher == nil || req.ProfileURL == "" || (req.Name != "" && req.PublicKeyID != "") {
		return
	}
	meta, err := s.fetcher.FetchProfile(ctx, req.ProfileURL)
	if err != nil {
		s.logger.InfoContext(ctx, "issuer profile unavailable", "profile_url", req.ProfileURL, "error", err)
		return
	}
	req.Name = firstNonEmpty(req.Name, meta.Name)
	req.PublicKeyID = firstNonEmpty(req.PublicKeyID, meta.PublicKeyID)
	req.Email = firstNonEmpty(req.Email, meta.Email)
	req.Image = firstNonEmpty(req.Image, meta.Image)
}

func (s *Service) upsert(ctx context.Context, req IntroduceRequest) (*models.Profile, error) {
	var profile *models.Profile
	if req.PublicKeyID != "" {
		existing, err := s.store.FindByPublicKeyID(ctx, req.PublicKeyID)
		switch {
		case err == nil:
			profile = existing
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up issuer")
		}
	}
	if profile == nil {
		p, err := models.NewProfile(uuid.NewString(), req.Name, req.PublicKeyID, requestcontext.Now(ctx).UTC())
		if err != nil {
			return nil, err
		}
		profile = p
	} else if req.Name != "" {
		profile.Name = req.Name
	}

	profile.IntroductionURL = req.IntroductionURL
	profile.URL = firstNonEmpty(profile.URL, req.ProfileURL)
	profile.Email = firstNonEmpty(req.Email, profile.Email)
	profile.Image = firstNonEmpty(req.Image, profile.Image)
	profile.Verified = true

	if err := s.store.Save(ctx, profile); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save issuer")
	}
	return profile, nil
}

// link attaches credentials imported with an unresolved issuer whose key
// matches the profile. Failures leave those credentials unverified.
func (s *Service) link(ctx context.Context, profile *models.Profile) int {
	creds, err := s.credentials.List(ctx, credentialModels.Filter{})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list credentials for linking", "issuer_id", profile.ID, "error", err)
		return 0
	}
	unverified := false
	linked := 0
	for _, c := range creds {
		if !c.UnverifiedIssuer || !issuedBy(c, profile) {
			continue
		}
		_, err := s.credentials.Update(ctx, c.ID, credentialModels.Patch{
			IssuerID:         &profile.ID,
			UnverifiedIssuer: &unverified,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to link credential", "credential_id", c.ID, "issuer_id", profile.ID, "error", err)
			continue
		}
		linked++
	}
	return linked
}

// issuedBy matches on the inline key, else on the profile URL.
func issuedBy(c *credentialModels.Credential, p *models.Profile) bool {
	if c.Issuer.PublicKey != "" {
		return c.Issuer.PublicKey == p.PublicKeyID
	}
	return p.URL != "" && c.Issuer.ProfileURL() == p.URL
}

// List returns trusted issuers by name with the number of held credentials
// linked to each.
func (s *Service) List(ctx context.Context) ([]models.Summary, error) {
	profiles, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list issuers")
	}
	counts, err := s.credentials.CountByIssuer(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count credentials")
	}

	out := make([]models.Summary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, models.Summary{Profile: *p, CredentialCount: counts[p.ID]})
	}
	slices.SortStableFunc(out, func(a, b models.Summary) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	if s.metrics != nil {
		s.metrics.SetTrusted(len(out))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Profile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "failed to load issuer")
	}
	return p, nil
}

// Delete removes an issuer from the trust store. Credentials linked to it
// are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return translateStoreError(err, "failed to delete issuer")
	}
	s.logAudit(ctx, audit.Event{Subject: id, Action: string(audit.EventIssuerDeleted)})
	s.refreshTrusted(ctx)
	return nil
}

// HolderAddress is the identity presented to issuers.
func (s *Service) HolderAddress() string {
	return s.holder.Address()
}

func (s *Service) refreshTrusted(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	profiles, err := s.store.List(ctx)
	if err != nil {
		return
	}
	s.metrics.SetTrusted(len(profiles))
}

func (s *Service) incrementHandshake(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementHandshake(outcome)
	}
}

func translateStoreError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "issuer not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
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
	s.logger.InfoContext(ctx, event.Action, attrs...)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

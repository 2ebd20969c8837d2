// Package resolver decides whether a normalized credential is new and which
// trusted issuer, if any, it belongs to.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"certwallet/internal/credential/models"
	issuerModels "certwallet/internal/issuer/models"
	"certwallet/internal/policy"
	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/sentinel"
	"certwallet/pkg/requestcontext"
)

type CredentialStore interface {
	Get(ctx context.Context, id string) (*models.Credential, error)
	FindByContentHash(ctx context.Context, hash string) (*models.Credential, error)
}

type TrustStore interface {
	Get(ctx context.Context, id string) (*issuerModels.Profile, error)
	FindByPublicKeyID(ctx context.Context, publicKeyID string) (*issuerModels.Profile, error)
	Save(ctx context.Context, p *issuerModels.Profile) error
	List(ctx context.Context) ([]*issuerModels.Profile, error)
}

type ProfileFetcher interface {
	FetchProfile(ctx context.Context, profileURL string) (*issuerModels.Metadata, error)
}

type ImportPolicy interface {
	AutoRegister(ctx context.Context, in policy.Input) (bool, error)
}

// DuplicateError reports a credential that is already held.
type DuplicateError struct {
	CredentialID string
	IssuerName   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("credential %q already exists in your wallet under the issuer %q", e.CredentialID, e.IssuerName)
}

// Resolution is the outcome of Resolve for a new credential.
type Resolution struct {
	// Issuer is the matched or auto-registered profile; nil when unresolved.
	Issuer *issuerModels.Profile
	// Metadata is the fetched issuer profile document, when the fetch succeeded.
	Metadata       *issuerModels.Metadata
	AutoRegistered bool
	Unresolved     bool
}

// IssuerID returns the resolved profile id, or nil.
func (r Resolution) IssuerID() *string {
	if r.Issuer == nil {
		return nil
	}
	id := r.Issuer.ID
	return &id
}

// Resolver runs the duplicate check and the issuer match.
type Resolver struct {
	credentials CredentialStore
	issuers     TrustStore
	fetcher     ProfileFetcher
	policy      ImportPolicy
	logger      *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New wires a resolver. A nil policy never auto-registers.
func New(credentials CredentialStore, issuers TrustStore, fetcher ProfileFetcher, p ImportPolicy, opts ...Option) *Resolver {
	r := &Resolver{
		credentials: credentials,
		issuers:     issuers,
		fetcher:     fetcher,
		policy:      p,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckDuplicate fails with a CodeConflict error wrapping *DuplicateError when
// a credential with the same id or the same content is already held.
func (r *Resolver) CheckDuplicate(ctx context.Context, cred *models.Credential) error {
	existing, err := r.credentials.Get(ctx, cred.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		existing, err = r.credentials.FindByContentHash(ctx, cred.ContentHash)
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for duplicates")
	}

	dup := &DuplicateError{CredentialID: existing.ID, IssuerName: r.displayName(ctx, existing)}
	return dErrors.Wrap(dup, dErrors.CodeConflict, dup.Error())
}

// displayName is the inline issuer name, else the linked profile's name,
// else "Unknown Issuer".
func (r *Resolver) displayName(ctx context.Context, c *models.Credential) string {
	if name := c.IssuerName(); name != "" {
		return name
	}
	if c.IssuerID != nil {
		if p, err := r.issuers.Get(ctx, *c.IssuerID); err == nil && p.Name != "" {
			return p.Name
		}
	}
	return issuerModels.UnknownName
}

// Resolve checks for duplicates, then matches the credential's issuer against
// the trust store. Issuer metadata that cannot be fetched or parsed leaves the
// issuer unresolved; it is not an error.
func (r *Resolver) Resolve(ctx context.Context, cred *models.Credential) (Resolution, error) {
	if err := r.CheckDuplicate(ctx, cred); err != nil {
		return Resolution{}, err
	}

	var res Resolution
	keyID := cred.Issuer.PublicKey
	if profileURL := cred.Issuer.ProfileURL(); profileURL != "" && r.fetcher != nil {
		meta, err := r.fetcher.FetchProfile(ctx, profileURL)
		if err != nil {
			r.logger.InfoContext(ctx, "issuer metadata unavailable",
				"credential_id", cred.ID,
				"issuer_url", profileURL,
				"error", err,
			)
		} else {
			res.Metadata = meta
			if meta.PublicKeyID != "" {
				keyID = meta.PublicKeyID
			}
		}
	}

	if keyID != "" {
		match, err := r.issuers.FindByPublicKeyID(ctx, keyID)
		switch {
		case err == nil:
			res.Issuer = match
			return res, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return Resolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up issuer")
		}
	} else if profileURL := cred.Issuer.ProfileURL(); profileURL != "" {
		// Keyless issuers are registered under the unknown key, so the
		// profile URL is their only stable identity.
		match, err := r.findByURL(ctx, profileURL)
		if err != nil {
			return Resolution{}, err
		}
		if match != nil {
			res.Issuer = match
			return res, nil
		}
	}

	register, err := r.autoRegister(ctx, cred, res.Metadata != nil)
	if err != nil {
		return Resolution{}, err
	}
	if !register {
		res.Unresolved = true
		return res, nil
	}

	profile, err := r.synthesize(ctx, cred, res.Metadata)
	if err != nil {
		return Resolution{}, err
	}
	if err := r.issuers.Save(ctx, profile); err != nil {
		return Resolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register issuer")
	}
	res.Issuer = profile
	res.AutoRegistered = true
	return res, nil
}

func (r *Resolver) findByURL(ctx context.Context, profileURL string) (*issuerModels.Profile, error) {
	profiles, err := r.issuers.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up issuer")
	}
	match, ok := lo.Find(profiles, func(p *issuerModels.Profile) bool {
		return p.URL == profileURL
	})
	if !ok {
		return nil, nil
	}
	return match, nil
}

func (r *Resolver) autoRegister(ctx context.Context, cred *models.Credential, fetched bool) (bool, error) {
	if r.policy == nil {
		return false, nil
	}
	ok, err := r.policy.AutoRegister(ctx, policy.Input{
		Source:          string(cred.Source),
		IssuerKind:      string(cred.Issuer.Kind),
		IssuerURL:       cred.Issuer.ProfileURL(),
		MetadataFetched: fetched,
	})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate import policy")
	}
	return ok, nil
}

// synthesize builds a profile from fetched metadata, or from the inline issuer
// fields when nothing could be fetched.
func (r *Resolver) synthesize(ctx context.Context, cred *models.Credential, meta *issuerModels.Metadata) (*issuerModels.Profile, error) {
	now := requestcontext.Now(ctx)
	if meta != nil {
		p, err := issuerModels.NewProfile(uuid.NewString(), meta.Name, meta.PublicKeyID, now)
		if err != nil {
			return nil, err
		}
		p.IntroductionURL = meta.IntroductionURL
		p.URL = cred.Issuer.ProfileURL()
		p.Email = meta.Email
		p.Description = meta.Description
		p.Image = meta.Image
		return p, nil
	}
	p, err := issuerModels.NewProfile(uuid.NewString(), cred.Issuer.Name, cred.Issuer.PublicKey, now)
	if err != nil {
		return nil, err
	}
	p.URL = cred.Issuer.ProfileURL()
	p.Email = cred.Issuer.Email
	return p, nil
}

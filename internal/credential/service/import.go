package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"certwallet/internal/credential/models"
	"certwallet/internal/credential/normalizer"
	issuerModels "certwallet/internal/issuer/models"
	"certwallet/internal/verification"
	dErrors "certwallet/pkg/domain-errors"
	"certwallet/pkg/platform/audit"
	"certwallet/pkg/platform/sentinel"
	"certwallet/pkg/requestcontext"
)

// Import outcomes used for metrics and audit.
const (
	outcomeImported   = "imported"
	outcomeUnresolved = "unresolved"
	outcomeDuplicate  = "duplicate"
	outcomeRejected   = "rejected"
)

// ImportRequest is one ingestion through any channel.
type ImportRequest struct {
	Source  models.Source
	Content string
	URL     string
	// FileName is recorded for file imports.
	FileName string
	// RequireTrustedIssuer aborts the import instead of storing the
	// credential with an unresolved issuer.
	RequireTrustedIssuer bool
	// SkipVerification stores the credential as pending.
	SkipVerification bool
}

// ImportResult is a stored credential and how its issuer was resolved.
type ImportResult struct {
	Credential *models.Credential    `json:"credential"`
	Issuer     *issuerModels.Profile `json:"issuer,omitempty"`
	// IssuerUnresolved is the signal that no trusted issuer matched. It is
	// always reported; it only fails the import under RequireTrustedIssuer.
	IssuerUnresolved bool                 `json:"issuer_unresolved"`
	AutoRegistered   bool                 `json:"auto_registered"`
	Verification     *verification.Result `json:"verification,omitempty"`
}

// Import runs the ingestion pipeline: fetch (url), normalize, duplicate
// check and issuer resolution, save, then a first verification run whose
// verdict is persisted. Verification failures do not fail the import.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveImport(start)
	}

	res, err := s.importCredential(ctx, req)
	if err != nil {
		outcome := outcomeRejected
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			outcome = outcomeDuplicate
		}
		s.incrementImport(req.Source, outcome)
		s.logAudit(ctx, audit.Event{
			Action:  string(audit.EventCredentialRejected),
			Source:  string(req.Source),
			Outcome: outcome,
			Reason:  dErrors.MessageOf(err),
		})
		return nil, err
	}

	outcome := outcomeImported
	if res.IssuerUnresolved {
		outcome = outcomeUnresolved
	}
	s.incrementImport(res.Credential.Source, outcome)
	return res, nil
}

func (s *Service) importCredential(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	source, err := models.ParseSource(string(req.Source))
	if err != nil {
		return nil, err
	}
	content, sourceURL, source, err := s.acquire(ctx, source, req)
	if err != nil {
		return nil, err
	}

	cred, err := normalizer.Normalize(content, source)
	if err != nil {
		return nil, err
	}
	cred.SourceURL = sourceURL
	cred.FileName = strings.TrimSpace(req.FileName)

	resolution, err := s.resolver.Resolve(ctx, cred)
	if err != nil {
		return nil, err
	}
	if resolution.Unresolved && req.RequireTrustedIssuer {
		s.logAudit(ctx, audit.Event{
			Subject: cred.ID,
			Action:  string(audit.EventIssuerUnresolved),
			Source:  string(source),
			Reason:  cred.Issuer.ProfileURL(),
		})
		return nil, dErrors.New(dErrors.CodeIssuerUnresolved,
			"The issuer of this credential is not in your trusted issuers. Add the issuer first or import anyway.")
	}

	now := requestcontext.Now(ctx).UTC()
	cred.IssuerID = resolution.IssuerID()
	cred.UnverifiedIssuer = resolution.Unresolved
	cred.AddedAt = now
	cred.UpdatedAt = now

	if err := s.store.Save(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent import of the same credential.
			if dupErr := s.resolver.CheckDuplicate(ctx, cred); dupErr != nil {
				return nil, dupErr
			}
		}
		return nil, translateStoreError(err, "failed to save credential")
	}

	if resolution.AutoRegistered {
		s.logAudit(ctx, audit.Event{
			Subject: resolution.Issuer.ID,
			Action:  string(audit.EventIssuerAutoRegistered),
			Source:  string(source),
			Reason:  "credential " + cred.ID,
		})
	}
	outcome := outcomeImported
	if resolution.Unresolved {
		outcome = outcomeUnresolved
	}
	s.logAudit(ctx, audit.Event{
		Subject: cred.ID,
		Action:  string(audit.EventCredentialImported),
		Source:  string(source),
		Outcome: outcome,
	})

	result := &ImportResult{
		Credential:       cred,
		Issuer:           resolution.Issuer,
		IssuerUnresolved: resolution.Unresolved,
		AutoRegistered:   resolution.AutoRegistered,
	}
	if req.SkipVerification {
		return result, nil
	}

	verified, err := s.Verify(ctx, cred.ID, nil)
	if err != nil {
		// The credential is stored; the verdict stays pending.
		s.logger.WarnContext(ctx, "initial verification could not be persisted",
			"credential_id", cred.ID,
			"error", err,
		)
		return result, nil
	}
	result.Credential = verified.Credential
	result.Verification = verified.Result
	return result, nil
}

// acquire returns the document text for req. URL imports and QR links are
// fetched; a QR payload must classify as a credential or a link.
func (s *Service) acquire(ctx context.Context, source models.Source, req ImportRequest) (string, string, models.Source, error) {
	switch source {
	case models.SourceURL:
		return s.fetch(ctx, req.URL, source)
	case models.SourceQR:
		c, err := normalizer.ClassifyQR(req.Content)
		if err != nil {
			return "", "", source, err
		}
		switch c.Kind {
		case normalizer.KindURL:
			return s.fetch(ctx, c.URL, models.SourceURL)
		case normalizer.KindIssuerIntroduction:
			return "", "", source, dErrors.New(dErrors.CodeValidation,
				"This QR code introduces an issuer. Add the issuer instead of importing it as a credential.")
		}
		return req.Content, "", source, nil
	default:
		return req.Content, "", source, nil
	}
}

func (s *Service) fetch(ctx context.Context, url string, source models.Source) (string, string, models.Source, error) {
	if s.fetcher == nil {
		return "", "", source, dErrors.New(dErrors.CodeUnavailable, "URL import is not configured")
	}
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.InfoContext(ctx, "credential fetch failed", "url", url, "error", err)
		return "", "", source, err
	}
	return body, strings.TrimSpace(url), source, nil
}

func (s *Service) incrementImport(source models.Source, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementImport(string(source), outcome)
	}
}

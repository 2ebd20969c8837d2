package models

import (
	"encoding/json"
	"strings"
	"time"

	dErrors "certwallet/pkg/domain-errors"
)

// Source is the ingestion channel a credential arrived through.
type Source string

const (
	SourceQR   Source = "qr"
	SourceURL  Source = "url"
	SourceFile Source = "file"
)

// ParseSource validates an ingestion channel tag.
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceQR, SourceURL, SourceFile:
		return src, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "source must be one of qr, url, file")
	}
}

// VerificationStatus is the persisted outcome of the latest verification run.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// IssuerKind tags which variant of IssuerRef is populated.
type IssuerKind string

const (
	IssuerInline IssuerKind = "inline"
	IssuerURL    IssuerKind = "url"
)

// IssuerRef is the credential's declared issuer: either an inline profile or a
// bare URL reference to one.
type IssuerRef struct {
	Kind      IssuerKind `json:"kind"`
	ID        string     `json:"id,omitempty"`
	URL       string     `json:"url,omitempty"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	PublicKey string     `json:"public_key,omitempty"`
}

// ProfileURL is where the issuer's published profile lives: the reference
// itself, or the inline profile's id falling back to its url.
func (r IssuerRef) ProfileURL() string {
	if r.Kind == IssuerURL {
		return r.URL
	}
	if r.ID != "" {
		return r.ID
	}
	return r.URL
}

// Step is one persisted entry of a verification run's step log.
type Step struct {
	Code         string    `json:"code"`
	Label        string    `json:"label"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Position     int       `json:"position"`
	Timestamp    time.Time `json:"timestamp"`
}

// Verification is the verification block of a credential. It is replaced
// wholesale by every run.
type Verification struct {
	Status        VerificationStatus `json:"status"`
	Message       string             `json:"message,omitempty"`
	LastCheckedAt *time.Time         `json:"last_checked_at,omitempty"`
	Steps         []Step             `json:"steps,omitempty"`
}

// Credential is a held credential document plus wallet-side metadata.
//
// Invariants:
//   - ID is unique within the repository
//   - Document is the verbatim signed payload and is never rewritten
//   - IssuerID is nil only when the holder imported from an unresolved issuer,
//     in which case UnverifiedIssuer is true
type Credential struct {
	ID               string          `json:"id"`
	ContentHash      string          `json:"content_hash"`
	Issuer           IssuerRef       `json:"issuer"`
	IssuerID         *string         `json:"issuer_id"`
	UnverifiedIssuer bool            `json:"unverified_issuer"`
	Document         json.RawMessage `json:"document"`
	RawJSON          string          `json:"raw_json,omitempty"`
	Source           Source          `json:"source"`
	SourceURL        string          `json:"source_url,omitempty"`
	FileName         string          `json:"file_name,omitempty"`
	FileSize         int64           `json:"file_size,omitempty"`
	Title            string          `json:"title,omitempty"`
	RecipientName    string          `json:"recipient_name,omitempty"`
	Types            []string        `json:"types,omitempty"`
	IssuedOn         *time.Time      `json:"issued_on,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	Verification     Verification    `json:"verification"`
	AddedAt          time.Time       `json:"added_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IssuerName is the inline issuer display name, if the document carried one.
func (c *Credential) IssuerName() string {
	return c.Issuer.Name
}

// Matches reports whether the credential matches a free-text search on its
// title, issuer name or recipient name.
func (c *Credential) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{c.Title, c.Issuer.Name, c.RecipientName} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Patch is a shallow update. Nil fields are left untouched; Verification
// replaces the whole block when set.
type Patch struct {
	Title            *string
	IssuerID         *string
	UnverifiedIssuer *bool
	Verification     *Verification
}

// Apply merges the patch into c.
func (p Patch) Apply(c *Credential, now time.Time) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.IssuerID != nil {
		id := *p.IssuerID
		c.IssuerID = &id
	}
	if p.UnverifiedIssuer != nil {
		c.UnverifiedIssuer = *p.UnverifiedIssuer
	}
	if p.Verification != nil {
		v := *p.Verification
		v.Steps = append([]Step(nil), p.Verification.Steps...)
		c.Verification = v
	}
	c.UpdatedAt = now
}

// Filter narrows List results.
type Filter struct {
	IssuerID string
	Query    string
}

// Keep reports whether c passes the filter.
func (f Filter) Keep(c *Credential) bool {
	if f.IssuerID != "" && (c.IssuerID == nil || *c.IssuerID != f.IssuerID) {
		return false
	}
	return c.Matches(f.Query)
}

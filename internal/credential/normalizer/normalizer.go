// Package normalizer turns raw ingested text into a Credential and classifies
// scanned QR payloads. It performs no I/O.
package normalizer

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"certwallet/internal/canonical"
	"certwallet/internal/credential/models"
	dErrors "certwallet/pkg/domain-errors"
)

// Normalize parses raw as a credential document. The id is the declared "id",
// or the content hash of the canonical document when none is declared, so
// identical input always yields the identical id.
//
// Errors are CodeInvalidInput (FormatError) with a user-facing message.
func Normalize(raw string, source models.Source) (*models.Credential, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, formatError("credential content is empty")
	}
	decoded, err := canonical.Decode([]byte(trimmed))
	if err != nil {
		return nil, formatError("credential is not valid JSON")
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return nil, formatError("credential must be a JSON object")
	}
	if p, ok := doc["proof"]; !ok || p == nil {
		return nil, formatError("credential has no proof")
	}

	body := []byte(trimmed)
	hash, err := canonical.ContentHash(body)
	if err != nil {
		return nil, formatError("credential could not be serialized")
	}

	id := strings.TrimSpace(gjson.GetBytes(body, "id").String())
	if id == "" {
		id = hash
	}

	return &models.Credential{
		ID:            id,
		ContentHash:   hash,
		Issuer:        ParseIssuer(gjson.GetBytes(body, "issuer")),
		Document:      json.RawMessage(trimmed),
		RawJSON:       raw,
		Source:        source,
		FileSize:      int64(len(raw)),
		Title:         firstString(body, "name", "certificatename", "badge.name", "title"),
		RecipientName: firstString(body, "recipientname", "credentialSubject.name", "recipient.name", "recipientProfile.name"),
		Types:         types(body),
		IssuedOn:      firstTime(body, "issuanceDate", "validFrom", "issuedOn"),
		ExpiresAt:     firstTime(body, "expirationDate", "validUntil", "expires"),
		Verification:  models.Verification{Status: models.VerificationPending},
	}, nil
}

// ParseIssuer resolves the duck-typed issuer field into the tagged union: a
// bare string is a URL reference, an object is an inline profile.
func ParseIssuer(v gjson.Result) models.IssuerRef {
	switch {
	case v.Type == gjson.String:
		return models.IssuerRef{Kind: models.IssuerURL, URL: strings.TrimSpace(v.String())}
	case v.IsObject():
		return models.IssuerRef{
			Kind:      models.IssuerInline,
			ID:        strings.TrimSpace(v.Get("id").String()),
			URL:       strings.TrimSpace(v.Get("url").String()),
			Name:      strings.TrimSpace(v.Get("name").String()),
			Email:     strings.TrimSpace(v.Get("email").String()),
			PublicKey: PublicKeyID(v.Get("publicKey")),
		}
	default:
		return models.IssuerRef{Kind: models.IssuerInline}
	}
}

// PublicKeyID extracts the canonical key identifier from a published
// "publicKey" value: the first entry's id for arrays (the entry's JSON when it
// has no id), the value itself for strings.
func PublicKeyID(v gjson.Result) string {
	switch {
	case v.IsArray():
		first := v.Get("0")
		if !first.Exists() {
			return ""
		}
		if id := first.Get("id"); id.Exists() && id.String() != "" {
			return id.String()
		}
		return first.Raw
	case v.Type == gjson.String:
		return v.String()
	default:
		return ""
	}
}

func types(body []byte) []string {
	values := lo.Map(gjson.GetBytes(body, "type").Array(), func(v gjson.Result, _ int) string {
		return strings.TrimSpace(v.String())
	})
	return lo.Uniq(lo.Filter(values, func(v string, _ int) bool { return v != "" }))
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func firstTime(body []byte, paths ...string) *time.Time {
	s := firstString(body, paths...)
	if s == "" {
		return nil
	}
	return ParseTime(s)
}

// ParseTime accepts the RFC 3339 variants and plain dates credentials use.
func ParseTime(s string) *time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func formatError(msg string) error {
	return dErrors.New(dErrors.CodeInvalidInput, msg)
}

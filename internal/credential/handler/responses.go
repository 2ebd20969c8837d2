package handler

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"certwallet/internal/credential/models"
	"certwallet/internal/credential/normalizer"
	"certwallet/internal/credential/service"
	issuerModels "certwallet/internal/issuer/models"
	"certwallet/internal/verification"
)

// CredentialSummary is a list entry. It omits the document.
type CredentialSummary struct {
	ID               string                    `json:"id"`
	Title            string                    `json:"title,omitempty"`
	IssuerName       string                    `json:"issuer_name"`
	IssuerID         *string                   `json:"issuer_id"`
	UnverifiedIssuer bool                      `json:"unverified_issuer"`
	RecipientName    string                    `json:"recipient_name,omitempty"`
	Source           models.Source             `json:"source"`
	IssuedOn         *time.Time                `json:"issued_on,omitempty"`
	ExpiresAt        *time.Time                `json:"expires_at,omitempty"`
	Status           models.VerificationStatus `json:"verification_status"`
	AddedAt          time.Time                 `json:"added_at"`
}

// CredentialResponse is a held credential with its document and latest
// verification block.
type CredentialResponse struct {
	CredentialSummary
	ContentHash  string              `json:"content_hash"`
	Types        []string            `json:"types,omitempty"`
	SourceURL    string              `json:"source_url,omitempty"`
	FileName     string              `json:"file_name,omitempty"`
	Document     json.RawMessage     `json:"document"`
	Verification models.Verification `json:"verification"`
}

type ListResponse struct {
	Credentials []CredentialSummary `json:"credentials"`
	Total       int                 `json:"total"`
}

type ImportResponse struct {
	Credential       CredentialResponse    `json:"credential"`
	Issuer           *issuerModels.Profile `json:"issuer,omitempty"`
	IssuerUnresolved bool                  `json:"issuer_unresolved"`
	AutoRegistered   bool                  `json:"auto_registered"`
	Verification     *verification.Result  `json:"verification,omitempty"`
}

type VerifyResponse struct {
	Credential CredentialResponse   `json:"credential"`
	Result     *verification.Result `json:"result"`
}

type ScanResponse struct {
	Kind         string                   `json:"kind"`
	Introduction *normalizer.Introduction `json:"introduction,omitempty"`
	Import       *ImportResponse          `json:"import,omitempty"`
}

func toSummary(c *models.Credential) CredentialSummary {
	name := c.IssuerName()
	if name == "" {
		name = issuerModels.UnknownName
	}
	return CredentialSummary{
		ID:               c.ID,
		Title:            c.Title,
		IssuerName:       name,
		IssuerID:         c.IssuerID,
		UnverifiedIssuer: c.UnverifiedIssuer,
		RecipientName:    c.RecipientName,
		Source:           c.Source,
		IssuedOn:         c.IssuedOn,
		ExpiresAt:        c.ExpiresAt,
		Status:           c.Verification.Status,
		AddedAt:          c.AddedAt,
	}
}

func toResponse(c *models.Credential) CredentialResponse {
	return CredentialResponse{
		CredentialSummary: toSummary(c),
		ContentHash:       c.ContentHash,
		Types:             c.Types,
		SourceURL:         c.SourceURL,
		FileName:          c.FileName,
		Document:          c.Document,
		Verification:      c.Verification,
	}
}

func toListResponse(creds []*models.Credential) ListResponse {
	return ListResponse{
		Credentials: lo.Map(creds, func(c *models.Credential, _ int) CredentialSummary { return toSummary(c) }),
		Total:       len(creds),
	}
}

func toImportResponse(res *service.ImportResult) *ImportResponse {
	return &ImportResponse{
		Credential:       toResponse(res.Credential),
		Issuer:           res.Issuer,
		IssuerUnresolved: res.IssuerUnresolved,
		AutoRegistered:   res.AutoRegistered,
		Verification:     res.Verification,
	}
}

func toScanResponse(res *service.ScanResult) ScanResponse {
	out := ScanResponse{Kind: string(res.Kind), Introduction: res.Introduction}
	if res.Import != nil {
		out.Import = toImportResponse(res.Import)
	}
	return out
}

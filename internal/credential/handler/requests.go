package handler

import (
	"strings"

	"certwallet/internal/credential/models"
	"certwallet/internal/credential/service"
	dErrors "certwallet/pkg/domain-errors"
)

// ImportRequest is the body of POST /credentials/import.
type ImportRequest struct {
	Source               string `json:"source"`
	Content              string `json:"content,omitempty"`
	URL                  string `json:"url,omitempty"`
	FileName             string `json:"fileName,omitempty"`
	RequireTrustedIssuer bool   `json:"requireTrustedIssuer,omitempty"`

	source models.Source
}

// Validate implements httputil.Validatable.
func (r *ImportRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	source, err := models.ParseSource(strings.TrimSpace(r.Source))
	if err != nil {
		return err
	}
	r.source = source

	r.URL = strings.TrimSpace(r.URL)
	switch source {
	case models.SourceURL:
		if r.URL == "" {
			return dErrors.New(dErrors.CodeValidation, "url is required")
		}
	default:
		if strings.TrimSpace(r.Content) == "" {
			return dErrors.New(dErrors.CodeValidation, "content is required")
		}
	}
	return nil
}

func (r *ImportRequest) toService() service.ImportRequest {
	return service.ImportRequest{
		Source:               r.source,
		Content:              r.Content,
		URL:                  r.URL,
		FileName:             r.FileName,
		RequireTrustedIssuer: r.RequireTrustedIssuer,
	}
}

// ScanRequest is the body of POST /scan.
type ScanRequest struct {
	Payload string `json:"payload"`
}

func (r *ScanRequest) Validate() error {
	if r == nil || strings.TrimSpace(r.Payload) == "" {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

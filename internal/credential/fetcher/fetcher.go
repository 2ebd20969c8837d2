// Package fetcher downloads credential documents for URL ingestion.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "certwallet/pkg/domain-errors"
)

const (
	DefaultTimeout = 10 * time.Second
	UserAgent      = "BlockcertsWallet/1.0"

	acceptHeader = "application/json, text/plain, */*"
	maxBodyBytes = 8 << 20
)

// Fetcher GETs documents with a fixed overall timeout.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// New builds a fetcher. A zero timeout selects DefaultTimeout.
func New(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{client: client, timeout: timeout}
}

// Fetch returns the body at rawURL. Every failure maps to one user-facing
// message; the transport error is kept as the cause for logging.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", dErrors.New(dErrors.CodeValidation, "Invalid URL format. Please check the URL and try again.")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "Invalid URL format. Please check the URL and try again.")
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "Request timed out. Please check your internet connection and try again.")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "Network error. Please check your internet connection and try again.")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("Server error: HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "Request timed out. Please check your internet connection and try again.")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "Network error. Please check your internet connection and try again.")
	}
	if len(body) > maxBodyBytes {
		return "", dErrors.New(dErrors.CodeInvalidInput, "The credential is too large. Documents over 8 MiB are not supported.")
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "The URL returned empty content. Please verify the URL is correct.")
	}
	return string(body), nil
}

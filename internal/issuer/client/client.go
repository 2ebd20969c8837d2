// Package client talks to issuer endpoints: the published profile document and
// the one-time introduction handshake.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"certwallet/internal/credential/normalizer"
	"certwallet/internal/issuer/models"
	dErrors "certwallet/pkg/domain-errors"
)

const maxProfileBytes = 1 << 20

// Client fetches issuer profiles and performs introductions.
type Client struct {
	httpDo    func(*http.Request) (*http.Response, error)
	userAgent string
}

// New builds a client. A nil httpClient uses one with a 10 second timeout.
func New(httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpDo: httpClient.Do, userAgent: userAgent}
}

// FetchProfile GETs the issuer profile at profileURL and parses its name,
// contact fields and key list.
func (c *Client) FetchProfile(ctx context.Context, profileURL string) (*models.Metadata, error) {
	if !isAbsolute(profileURL) {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer profile URL is not valid")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "issuer profile URL is not valid")
	}
	req.Header.Set("Accept", "application/json, application/ld+json")
	c.setUserAgent(req)

	resp, err := c.httpDo(req)
	if err != nil {
		return nil, transportError(ctx, err, "could not reach issuer "+req.URL.Host)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, transportError(ctx, err, "could not read issuer profile")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("issuer profile request failed with status %d", resp.StatusCode))
	}
	return ParseProfile(body)
}

// ParseProfile reads a published issuer profile document.
func ParseProfile(body []byte) (*models.Metadata, error) {
	if !gjson.ValidBytes(body) {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer profile is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer profile must be a JSON object")
	}
	meta := &models.Metadata{
		ID:              doc.Get("id").String(),
		Name:            strings.TrimSpace(doc.Get("name").String()),
		PublicKeyID:     normalizer.PublicKeyID(doc.Get("publicKey")),
		IntroductionURL: doc.Get("introductionURL").String(),
		Email:           doc.Get("email").String(),
		Description:     doc.Get("description").String(),
		Image:           doc.Get("image").String(),
		RevocationList:  doc.Get("revocationList").String(),
	}
	meta.Keys = append(parseKeys(doc.Get("publicKey")), parseKeys(doc.Get("verificationMethod"))...)
	if meta.PublicKeyID == "" && len(meta.Keys) > 0 {
		meta.PublicKeyID = meta.Keys[0].ID
	}
	return meta, nil
}

func parseKeys(v gjson.Result) []models.Key {
	if v.Type == gjson.String {
		return []models.Key{{ID: v.String()}}
	}
	var keys []models.Key
	v.ForEach(func(_, entry gjson.Result) bool {
		id := entry.Get("id").String()
		if id == "" {
			return true
		}
		keys = append(keys, models.Key{
			ID:      id,
			Account: accountAddress(entry.Get("blockchainAccountId").String()),
			Created: normalizer.ParseTime(entry.Get("created").String()),
			Expires: normalizer.ParseTime(entry.Get("expires").String()),
			Revoked: normalizer.ParseTime(entry.Get("revoked").String()),
		})
		return true
	})
	return keys
}

// accountAddress strips a CAIP-10 "namespace:reference:" prefix.
func accountAddress(account string) string {
	if i := strings.LastIndex(account, ":"); i >= 0 {
		return account[i+1:]
	}
	return account
}

type introduction struct {
	Nonce           string `json:"nonce"`
	IdentityAddress string `json:"identityAddress"`
}

// Introduce performs the handshake: it POSTs the one-time code and the
// holder's address to introductionURL. Any non-2xx answer is a failure.
func (c *Client) Introduce(ctx context.Context, introductionURL, nonce, identityAddress string) error {
	if !isAbsolute(introductionURL) {
		return dErrors.New(dErrors.CodeValidation, "introduction URL is not valid")
	}
	payload, err := json.Marshal(introduction{Nonce: nonce, IdentityAddress: identityAddress})
	if err != nil {
		return fmt.Errorf("encode introduction: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introductionURL, bytes.NewReader(payload))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "introduction URL is not valid")
	}
	req.Header.Set("Content-Type", "application/json")
	c.setUserAgent(req)

	resp, err := c.httpDo(req)
	if err != nil {
		return transportError(ctx, err, "could not reach issuer "+req.URL.Host)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("issuer rejected the introduction: status %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) setUserAgent(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func isAbsolute(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func transportError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}

// FetchRevocationList GETs a revocation list and returns the revoked
// credential ids. Both "revokedAssertions" entries and a bare id array are
// understood.
func (c *Client) FetchRevocationList(ctx context.Context, listURL string) ([]string, error) {
	if !isAbsolute(listURL) {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation list URL is not valid")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "revocation list URL is not valid")
	}
	req.Header.Set("Accept", "application/json")
	c.setUserAgent(req)

	resp, err := c.httpDo(req)
	if err != nil {
		return nil, transportError(ctx, err, "could not reach host "+req.URL.Host)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, transportError(ctx, err, "could not read revocation list")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("revocation list request failed with status %d", resp.StatusCode))
	}
	if !gjson.ValidBytes(body) {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation list is not valid JSON")
	}

	doc := gjson.ParseBytes(body)
	entries := doc.Get("revokedAssertions")
	if doc.IsArray() {
		entries = doc
	}
	var revoked []string
	entries.ForEach(func(_, e gjson.Result) bool {
		if id := e.Get("id").String(); id != "" {
			revoked = append(revoked, id)
		} else if e.Type == gjson.String {
			revoked = append(revoked, e.String())
		}
		return true
	})
	return revoked, nil
}

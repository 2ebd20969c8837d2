// Package ledger reads anchor transactions from a content-addressing gateway.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const maxRecordBytes = 1 << 20

// ErrNotFound is returned when the gateway has no such transaction.
var ErrNotFound = errors.New("transaction not found on ledger")

// Record is the anchored data of one ledger transaction.
type Record struct {
	TxID           string `json:"tx_id"`
	MerkleRoot     string `json:"merkle_root"`
	IssuingAddress string `json:"issuing_address"`
}

// Preview describes the anchored payload itself.
type Preview struct {
	TxID        string `json:"tx_id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Displayable bool   `json:"displayable"`
}

// Client talks to one gateway.
type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
}

// New builds a client for gatewayURL, e.g. https://arweave.net.
func New(gatewayURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(gatewayURL))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("ledger gateway url %q is invalid", gatewayURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(u.String(), "/"), httpDo: httpClient.Do}, nil
}

// FetchRecord GETs /tx/{id} and extracts the anchored Merkle root and the
// address that signed the transaction.
func (c *Client) FetchRecord(ctx context.Context, txID string) (*Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tx/"+url.PathEscape(txID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach host %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, txID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger host %s answered with status %d", req.URL.Host, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordBytes))
	if err != nil {
		return nil, fmt.Errorf("read ledger record from host %s: %w", req.URL.Host, err)
	}
	return ParseRecord(txID, body)
}

// ParseRecord reads a gateway transaction document. The root is taken from a
// merkle_root field or a Merkle-Root tag (names and values may be base64url
// encoded); the address from an explicit field or derived from the owner key.
func ParseRecord(txID string, body []byte) (*Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("ledger record is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	rec := &Record{
		TxID:           txID,
		MerkleRoot:     firstOf(doc, "merkle_root", "merkleRoot"),
		IssuingAddress: firstOf(doc, "issuing_address", "owner_address"),
	}
	if rec.MerkleRoot == "" {
		doc.Get("tags").ForEach(func(_, tag gjson.Result) bool {
			if strings.EqualFold(decodeTag(tag.Get("name").String()), "Merkle-Root") {
				rec.MerkleRoot = decodeTag(tag.Get("value").String())
				return false
			}
			return true
		})
	}
	if rec.IssuingAddress == "" {
		if owner := doc.Get("owner").String(); owner != "" {
			rec.IssuingAddress = ownerAddress(owner)
		}
	}
	if rec.MerkleRoot == "" {
		return nil, errors.New("ledger record carries no Merkle root")
	}
	rec.MerkleRoot = strings.ToLower(rec.MerkleRoot)
	return rec, nil
}

// Preview reports what the anchored payload is without downloading it.
func (c *Client) Preview(ctx context.Context, txID string) (*Preview, error) {
	target := c.baseURL + "/" + url.PathEscape(txID)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpDo(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach host %s: %w", req.URL.Host, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, txID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger host %s answered with status %d", req.URL.Host, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	return &Preview{
		TxID:        txID,
		URL:         target,
		ContentType: contentType,
		Displayable: strings.HasPrefix(mediaType, "image/") || mediaType == "application/pdf",
	}, nil
}

func firstOf(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func decodeTag(s string) string {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil && isPrintable(b) {
		return string(b)
	}
	return s
}

func isPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// ownerAddress is the gateway wallet address: base64url(sha256(owner key)).
func ownerAddress(owner string) string {
	key, err := base64.RawURLEncoding.DecodeString(owner)
	if err != nil {
		return owner
	}
	sum := sha256.Sum256(key)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

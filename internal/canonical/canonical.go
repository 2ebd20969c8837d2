// Package canonical turns credential documents into stable byte forms for
// hashing: sorted-key compact JSON, or URDNA2015 N-Quads for JSON-LD.
package canonical

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/piprate/json-gold/ld"
)

// Canonicalizer produces the byte form a document's content hash is taken over.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, doc map[string]any) ([]byte, error)
}

// Decode parses JSON keeping numbers as json.Number so re-encoding does not
// change their textual form.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return v, nil
}

// Marshal encodes v as compact JSON with object keys sorted and no HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Hash returns the lowercase hex SHA-256 of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ContentHash hashes the canonical JSON form of raw. Whitespace and key order
// in raw do not affect the result.
func ContentHash(raw []byte) (string, error) {
	v, err := Decode(raw)
	if err != nil {
		return "", err
	}
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

// SortedJSON canonicalizes by re-encoding with sorted keys.
type SortedJSON struct{}

func (SortedJSON) Canonicalize(_ context.Context, doc map[string]any) ([]byte, error) {
	return Marshal(doc)
}

// JSONLD canonicalizes with the URDNA2015 algorithm. Remote @context documents
// are fetched through client and cached for the process lifetime. It is safe
// for concurrent use.
type JSONLD struct {
	proc *ld.JsonLdProcessor
	opts *ld.JsonLdOptions
}

// NewJSONLD builds a JSON-LD canonicalizer.
func NewJSONLD(client *http.Client) *JSONLD {
	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"
	opts.Algorithm = ld.AlgorithmURDNA2015
	opts.ProcessingMode = ld.JsonLd_1_1
	opts.DocumentLoader = &syncLoader{loader: ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(client))}
	return &JSONLD{proc: ld.NewJsonLdProcessor(), opts: opts}
}

// syncLoader serializes loads; the caching loader's map has no lock of its own.
type syncLoader struct {
	mu     sync.Mutex
	loader ld.DocumentLoader
}

func (l *syncLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loader.LoadDocument(u)
}

func (c *JSONLD) Canonicalize(_ context.Context, doc map[string]any) ([]byte, error) {
	// json-gold walks plain float64 numbers, not json.Number.
	plain, err := toPlain(doc)
	if err != nil {
		return nil, err
	}
	out, err := c.proc.Normalize(plain, c.opts)
	if err != nil {
		return nil, fmt.Errorf("jsonld normalize: %w", err)
	}
	nquads, ok := out.(string)
	if !ok {
		return nil, fmt.Errorf("jsonld normalize: unexpected output %T", out)
	}
	return []byte(nquads), nil
}

func toPlain(doc map[string]any) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, err
	}
	return plain, nil
}

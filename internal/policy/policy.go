// Package policy decides, via a Rego module, what happens to credentials whose
// issuer is not in the trust store.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

const autoRegisterQuery = "data.certwallet.ingest.auto_register"

//go:embed import.rego
var defaultModule string

// Input is the document the import policy is evaluated against.
type Input struct {
	Source          string
	IssuerKind      string
	IssuerURL       string
	MetadataFetched bool
}

func (in Input) toMap() map[string]any {
	return map[string]any{
		"source":           in.Source,
		"issuer_kind":      in.IssuerKind,
		"issuer_url":       in.IssuerURL,
		"metadata_fetched": in.MetadataFetched,
	}
}

// ImportPolicy is a prepared Rego query.
type ImportPolicy struct {
	query rego.PreparedEvalQuery
}

// NewImportPolicy compiles module. An empty module selects the built-in
// policy, which auto-registers issuers of QR imports only.
func NewImportPolicy(ctx context.Context, module string) (*ImportPolicy, error) {
	if module == "" {
		module = defaultModule
	}
	prepared, err := rego.New(
		rego.Query(autoRegisterQuery),
		rego.Module("import.rego", module),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare import policy: %w", err)
	}
	return &ImportPolicy{query: prepared}, nil
}

// LoadImportPolicy reads a Rego module from path; an empty path selects the
// built-in policy.
func LoadImportPolicy(ctx context.Context, path string) (*ImportPolicy, error) {
	if path == "" {
		return NewImportPolicy(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import policy: %w", err)
	}
	return NewImportPolicy(ctx, string(b))
}

// AutoRegister reports whether an unmatched issuer should be added to the
// trust store. An undefined result counts as false.
func (p *ImportPolicy) AutoRegister(ctx context.Context, in Input) (bool, error) {
	results, err := p.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return false, fmt.Errorf("evaluate import policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("import policy: auto_register must be boolean, got %T", results[0].Expressions[0].Value)
	}
	return allowed, nil
}

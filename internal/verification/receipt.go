package verification

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/mr-tron/base58"
)

// Receipt is a Merkle inclusion proof binding a document hash to an anchored
// root.
type Receipt struct {
	Type       string
	TargetHash string
	MerkleRoot string
	Path       []PathNode
	Anchors    []Anchor
}

// PathNode is one sibling on the path from the leaf to the root.
type PathNode struct {
	Left  string `mapstructure:"left"`
	Right string `mapstructure:"right"`
}

// Anchor references the ledger transaction carrying the Merkle root.
type Anchor struct {
	SourceID string `mapstructure:"sourceId"`
	Type     string `mapstructure:"type"`
	Chain    string `mapstructure:"chain"`
}

type rawReceipt struct {
	TargetHash string     `mapstructure:"targetHash"`
	MerkleRoot string     `mapstructure:"merkleRoot"`
	Path       []PathNode `mapstructure:"path"`
	// MerkleProof2017 names the path "proof".
	Proof   []PathNode `mapstructure:"proof"`
	Anchors []any      `mapstructure:"anchors"`
}

var cborDecoder = func() cbor.DecMode {
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// DecodeReceipt reads the receipt out of a proof object. MerkleProof2019
// carries it as a multibase base58btc CBOR map in proofValue; MerkleProof2017
// carries the fields inline.
func DecodeReceipt(proof map[string]any) (*Receipt, error) {
	proofType, _ := proof["type"].(string)
	var fields map[string]any
	if pv, ok := proof["proofValue"].(string); ok && pv != "" {
		decoded, err := decodeProofValue(pv)
		if err != nil {
			return nil, err
		}
		fields = decoded
	} else {
		fields = proof
	}

	var raw rawReceipt
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       bytesToHex,
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(fields); err != nil {
		return nil, fmt.Errorf("malformed receipt: %w", err)
	}
	if raw.TargetHash == "" || raw.MerkleRoot == "" {
		return nil, errors.New("receipt is missing targetHash or merkleRoot")
	}

	r := &Receipt{
		Type:       proofType,
		TargetHash: strings.ToLower(raw.TargetHash),
		MerkleRoot: strings.ToLower(raw.MerkleRoot),
		Path:       raw.Path,
	}
	if len(r.Path) == 0 {
		r.Path = raw.Proof
	}
	for _, a := range raw.Anchors {
		anchor, err := parseAnchor(a)
		if err != nil {
			return nil, err
		}
		r.Anchors = append(r.Anchors, anchor)
	}
	return r, nil
}

func decodeProofValue(pv string) (map[string]any, error) {
	if !strings.HasPrefix(pv, "z") {
		return nil, fmt.Errorf("unsupported proofValue encoding %q", pv[:1])
	}
	b, err := base58.Decode(pv[1:])
	if err != nil {
		return nil, fmt.Errorf("proofValue is not base58btc: %w", err)
	}
	var fields map[string]any
	if err := cborDecoder.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("proofValue is not a CBOR map: %w", err)
	}
	return fields, nil
}

// bytesToHex renders CBOR byte strings as lowercase hex.
func bytesToHex(from, to reflect.Type, data any) (any, error) {
	if b, ok := data.([]byte); ok && to.Kind() == reflect.String {
		return hex.EncodeToString(b), nil
	}
	return data, nil
}

// parseAnchor accepts a blink URI ("blink:<chain>:<network>:<txid>"), a bare
// transaction id, or a {sourceId,type,chain} object.
func parseAnchor(v any) (Anchor, error) {
	switch a := v.(type) {
	case string:
		if !strings.HasPrefix(a, "blink:") {
			return Anchor{SourceID: a}, nil
		}
		parts := strings.Split(a, ":")
		if len(parts) < 3 || parts[len(parts)-1] == "" {
			return Anchor{}, fmt.Errorf("malformed anchor %q", a)
		}
		return Anchor{SourceID: parts[len(parts)-1], Type: "blink", Chain: parts[1]}, nil
	case map[string]any:
		var anchor Anchor
		if err := mapstructure.Decode(a, &anchor); err != nil {
			return Anchor{}, fmt.Errorf("malformed anchor: %w", err)
		}
		return anchor, nil
	default:
		return Anchor{}, fmt.Errorf("unsupported anchor of type %T", v)
	}
}

// TransactionID is the first anchor's ledger transaction id.
func (r *Receipt) TransactionID() (string, error) {
	if len(r.Anchors) == 0 || r.Anchors[0].SourceID == "" {
		return "", errors.New("receipt has no anchor")
	}
	return r.Anchors[0].SourceID, nil
}

// ComputeRoot hashes the target up the path: sha256(left || node) or
// sha256(node || right) at each level.
func (r *Receipt) ComputeRoot() (string, error) {
	node, err := hex.DecodeString(r.TargetHash)
	if err != nil {
		return "", fmt.Errorf("targetHash is not hex: %w", err)
	}
	for i, p := range r.Path {
		var buf bytes.Buffer
		switch {
		case p.Left != "":
			sibling, err := hex.DecodeString(p.Left)
			if err != nil {
				return "", fmt.Errorf("path[%d] is not hex: %w", i, err)
			}
			buf.Write(sibling)
			buf.Write(node)
		case p.Right != "":
			sibling, err := hex.DecodeString(p.Right)
			if err != nil {
				return "", fmt.Errorf("path[%d] is not hex: %w", i, err)
			}
			buf.Write(node)
			buf.Write(sibling)
		default:
			return "", fmt.Errorf("path[%d] has neither left nor right", i)
		}
		sum := sha256.Sum256(buf.Bytes())
		node = sum[:]
	}
	return hex.EncodeToString(node), nil
}

// DocumentTransactionID decodes the receipt of a credential document and
// returns its anchoring transaction id.
func DocumentTransactionID(document []byte) (string, error) {
	var doc struct {
		Proof map[string]any `json:"proof"`
	}
	if err := json.Unmarshal(document, &doc); err != nil {
		return "", fmt.Errorf("credential is not valid JSON: %w", err)
	}
	if doc.Proof == nil {
		return "", errors.New("credential has no proof")
	}
	receipt, err := DecodeReceipt(doc.Proof)
	if err != nil {
		return "", err
	}
	return receipt.TransactionID()
}

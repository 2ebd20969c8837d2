package verification

import (
	"encoding/hex"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReceiptByteStrings(t *testing.T) {
	target := sum([]byte("leaf"))
	right := sum([]byte("right"))
	root := sum(target, right)
	enc, err := cbor.Marshal(map[string]any{
		"targetHash": target,
		"merkleRoot": root,
		"path":       []any{map[string]any{"right": right}},
		"anchors":    []any{"blink:btc:testnet:82162c3e4a2ff9b9e8df3f1a0e0a1a9b"},
	})
	require.NoError(t, err)

	r, err := DecodeReceipt(map[string]any{"type": "MerkleProof2019", "proofValue": "z" + base58.Encode(enc)})
	require.NoError(t, err)

	assert.Equal(t, hex.EncodeToString(target), r.TargetHash)
	txID, err := r.TransactionID()
	require.NoError(t, err)
	assert.Equal(t, "82162c3e4a2ff9b9e8df3f1a0e0a1a9b", txID)
	assert.Equal(t, "btc", r.Anchors[0].Chain)

	computed, err := r.ComputeRoot()
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(root), computed)
}

func TestDecodeReceiptRejects(t *testing.T) {
	cases := map[string]map[string]any{
		"not multibase":      {"proofValue": "u1234"},
		"not base58":         {"proofValue": "z0OIl"},
		"not cbor map":       {"proofValue": "z" + base58.Encode([]byte{0x01})},
		"missing root":       {"targetHash": "aa", "anchors": []any{"tx"}},
		"unsupported anchor": {"targetHash": "aa", "merkleRoot": "bb", "anchors": []any{42}},
	}
	for name, proof := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeReceipt(proof)
			require.Error(t, err)
		})
	}
}

func TestReceiptWithoutAnchor(t *testing.T) {
	r, err := DecodeReceipt(map[string]any{"targetHash": "aa", "merkleRoot": "bb"})
	require.NoError(t, err)
	_, err = r.TransactionID()
	require.Error(t, err)
}

func TestDocumentTransactionID(t *testing.T) {
	doc := []byte(`{"proof":{"type":"MerkleProof2017","targetHash":"aa","merkleRoot":"aa","anchors":[{"sourceId":"tx-9","type":"ETHData","chain":"ethereumMainnet"}]}}`)
	txID, err := DocumentTransactionID(doc)
	require.NoError(t, err)
	assert.Equal(t, "tx-9", txID)

	_, err = DocumentTransactionID([]byte(`{"id":"no-proof"}`))
	require.Error(t, err)
}

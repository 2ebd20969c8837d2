// Package holder derives the wallet holder's public address, the identity
// presented to issuers during the introduction handshake.
package holder

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"

	"certwallet/internal/platform/config"
	dErrors "certwallet/pkg/domain-errors"
)

// Identity is the holder's address. It is never empty.
type Identity struct {
	address string
}

// New derives the identity from a hex secp256k1 private key, or takes the
// configured address verbatim when no key is set.
func New(cfg config.HolderConfig) (*Identity, error) {
	if key := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"); key != "" {
		address, err := AddressFromPrivateKey(key)
		if err != nil {
			return nil, err
		}
		return &Identity{address: address}, nil
	}
	if address := strings.TrimSpace(cfg.Address); address != "" {
		return &Identity{address: address}, nil
	}
	return nil, dErrors.New(dErrors.CodeInvalidRequest, "holder address is not configured")
}

// Address returns the holder address.
func (i *Identity) Address() string {
	return i.address
}

// AddressFromPrivateKey returns the Ethereum-style address of a secp256k1
// key: 0x followed by the last 20 bytes of Keccak-256 over the uncompressed
// public key without its 0x04 prefix.
func AddressFromPrivateKey(hexKey string) (string, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return "", dErrors.New(dErrors.CodeInvalidRequest, "holder private key must be 32 hex-encoded bytes")
	}
	_, pub := btcec.PrivKeyFromBytes(raw)
	uncompressed := pub.SerializeUncompressed()

	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	digest := h.Sum(nil)
	return "0x" + hex.EncodeToString(digest[len(digest)-20:]), nil
}

package models

import (
	"strings"
	"time"

	dErrors "certwallet/pkg/domain-errors"
)

const (
	// UnknownName labels issuers whose metadata carried no name.
	UnknownName = "Unknown Issuer"
	// UnknownPublicKey is stored when an issuer is registered from inline
	// credential fields that carry no key reference.
	UnknownPublicKey = "unknown"
)

// Profile is a locally trusted issuer.
//
// Invariants:
//   - ID and Name are non-empty
//   - PublicKeyID is the join key against a credential's issuer key (exact match)
//   - Verified is true only for profiles added through the introduction handshake
type Profile struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	PublicKeyID     string    `json:"public_key_id"`
	IntroductionURL string    `json:"introduction_url,omitempty"`
	URL             string    `json:"url,omitempty"`
	Email           string    `json:"email,omitempty"`
	Description     string    `json:"description,omitempty"`
	Image           string    `json:"image,omitempty"`
	Verified        bool      `json:"verified"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewProfile builds a profile, defaulting a missing name.
func NewProfile(id, name, publicKeyID string, now time.Time) (*Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer id cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = UnknownName
	}
	if publicKeyID == "" {
		publicKeyID = UnknownPublicKey
	}
	return &Profile{
		ID:          id,
		Name:        name,
		PublicKeyID: publicKeyID,
		CreatedAt:   now,
	}, nil
}

// Metadata is the issuer's published profile document as fetched from its URL.
type Metadata struct {
	ID              string
	Name            string
	PublicKeyID     string
	IntroductionURL string
	Email           string
	Description     string
	Image           string
	RevocationList  string
	Keys            []Key
}

// Key is one entry of an issuer's published key list.
type Key struct {
	ID string
	// Account is the ledger address of a verificationMethod entry, when given.
	Account string
	Created *time.Time
	Expires *time.Time
	Revoked *time.Time
}

// KoblitzKeyPrefix marks secp256k1 key ids that embed a ledger address.
const KoblitzKeyPrefix = "ecdsa-koblitz-pubkey:"

// Address returns the ledger address a key id refers to.
func (k Key) Address() string {
	if k.Account != "" {
		return k.Account
	}
	return strings.TrimPrefix(k.ID, KoblitzKeyPrefix)
}

// ValidAt reports whether the key was usable at t.
func (k Key) ValidAt(t time.Time) bool {
	if k.Created != nil && t.Before(*k.Created) {
		return false
	}
	if k.Revoked != nil && !t.Before(*k.Revoked) {
		return false
	}
	if k.Expires != nil && !t.Before(*k.Expires) {
		return false
	}
	return true
}

// Summary is a profile plus the number of credentials it issued.
type Summary struct {
	Profile
	CredentialCount int `json:"credential_count"`
}

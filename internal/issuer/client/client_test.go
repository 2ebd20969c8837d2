package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certwallet/pkg/domain-errors"
)

const acmeProfile = `{
  "id": "https://issuer.example/profile.json",
  "name": "Acme",
  "email": "registrar@issuer.example",
  "introductionURL": "https://issuer.example/intro",
  "revocationList": "https://issuer.example/revocations.json",
  "publicKey": [
    {"id": "ecdsa-koblitz-pubkey:mtr98kany9G1XYNU74pRnfBQmaCg2FZLmc", "created": "2017-06-29T14:48:03.814+00:00", "revoked": "2020-01-01T00:00:00Z"},
    {"id": "ecdsa-koblitz-pubkey:1AwdUWQzJgfDDjeKtpPzMfYMHejFBrxZfo", "created": "2020-01-01T00:00:00Z"}
  ]
}`

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "BlockcertsWallet/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(acmeProfile))
	}))
	defer srv.Close()

	meta, err := New(srv.Client(), "BlockcertsWallet/1.0").FetchProfile(context.Background(), srv.URL+"/profile.json")
	require.NoError(t, err)

	assert.Equal(t, "Acme", meta.Name)
	assert.Equal(t, "ecdsa-koblitz-pubkey:mtr98kany9G1XYNU74pRnfBQmaCg2FZLmc", meta.PublicKeyID)
	assert.Equal(t, "https://issuer.example/intro", meta.IntroductionURL)
	assert.Equal(t, "https://issuer.example/revocations.json", meta.RevocationList)
	require.Len(t, meta.Keys, 2)
	assert.Equal(t, "mtr98kany9G1XYNU74pRnfBQmaCg2FZLmc", meta.Keys[0].Address())
	require.NotNil(t, meta.Keys[0].Revoked)
	assert.False(t, meta.Keys[0].ValidAt(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, meta.Keys[1].ValidAt(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseProfile(t *testing.T) {
	t.Run("string key and verification methods", func(t *testing.T) {
		meta, err := ParseProfile([]byte(`{
			"name": "Acme",
			"publicKey": "key-1",
			"verificationMethod": [{"id": "did:example:acme#key-2", "blockchainAccountId": "bip122:000000000019d6689c085ae165831e93:1AwdUWQz"}]
		}`))
		require.NoError(t, err)
		assert.Equal(t, "key-1", meta.PublicKeyID)
		require.Len(t, meta.Keys, 2)
		assert.Equal(t, "key-1", meta.Keys[0].Address())
		assert.Equal(t, "1AwdUWQz", meta.Keys[1].Address())
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := ParseProfile([]byte(`[1,2]`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = ParseProfile([]byte(`<html>`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestFetchProfileFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.Client(), "")
	_, err := c.FetchProfile(context.Background(), srv.URL)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = c.FetchProfile(context.Background(), "not a url")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestIntroduce(t *testing.T) {
	var got introduction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Nonce != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.Client(), "")
	require.NoError(t, c.Introduce(context.Background(), srv.URL+"/intro?v=1", "123456", "0xabc"))
	assert.Equal(t, "0xabc", got.IdentityAddress)

	err := c.Introduce(context.Background(), srv.URL+"/intro", "000000", "0xabc")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestFetchRevocationList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/revocations.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"https://issuer.example/revocations.json","revokedAssertions":[
			{"id":"urn:uuid:revoked-1","revocationReason":"issued in error"},
			{"id":"urn:uuid:revoked-2"}]}`))
	})
	mux.HandleFunc("/plain.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["cred-9"]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.Client(), "")
	ids, err := c.FetchRevocationList(context.Background(), srv.URL+"/revocations.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:uuid:revoked-1", "urn:uuid:revoked-2"}, ids)

	ids, err = c.FetchRevocationList(context.Background(), srv.URL+"/plain.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"cred-9"}, ids)
}

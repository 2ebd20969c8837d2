package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certwallet/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience")

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken("holder", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "holder", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken(t *testing.T) {
	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := jwtService.ValidateToken("invalid-token-string")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Equal(t, "invalid token", dErrors.MessageOf(err))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken("holder", -time.Hour)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token)
		require.Error(t, err)
		assert.Equal(t, "token has expired", dErrors.MessageOf(err))
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewJWTService("test-signing-key", "test-issuer", "other-audience")
		token, err := other.GenerateAccessToken("holder", time.Hour)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewJWTService("another-key", "test-issuer", "test-audience")
		token, err := other.GenerateAccessToken("holder", time.Hour)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken("", time.Hour)
		require.NoError(t, err)

		_, err = jwtService.ValidateToken(token)
		assert.Equal(t, "token has no subject", dErrors.MessageOf(err))
	})
}

package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")
	id := uuid.New()

	token, err := GenerateJWT(id, "vendor@example.com", "vendor", 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.UserID)
	assert.Equal(t, "vendor", claims.Role)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	SetJWTSecret("test-secret")
	id := uuid.New()

	refresh, err := GenerateRefreshToken(id, 1)
	require.NoError(t, err)

	subject, err := ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, id.String(), subject)

	access, err := GenerateJWT(id, "a@b.co", "shopper", 1)
	require.NoError(t, err)
	_, err = ValidateRefreshToken(access)
	assert.Error(t, err)
}

func TestAccessValidationRejectsRefreshToken(t *testing.T) {
	SetJWTSecret("test-secret")

	refresh, err := GenerateRefreshToken(uuid.New(), 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(refresh)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestExpiredAndForeignTokens(t *testing.T) {
	SetJWTSecret("test-secret")
	expired, err := GenerateJWT(uuid.New(), "a@b.co", "shopper", -1)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)

	SetJWTSecret("other-secret")
	token, err := GenerateJWT(uuid.New(), "a@b.co", "shopper", 1)
	require.NoError(t, err)
	SetJWTSecret("test-secret")
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

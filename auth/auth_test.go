package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken(42, time.Hour)
	require.NoError(t, err)

	userID, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)
}

func TestParseTokenRejects(t *testing.T) {
	SetSecret("test-secret")
	expired, err := GenerateToken(42, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	SetSecret("other-secret")
	forged, err := GenerateToken(42, time.Hour)
	require.NoError(t, err)
	SetSecret("test-secret")
	_, err = ParseToken(forged)
	assert.Error(t, err)

	_, err = ParseToken("not-a-token")
	assert.Error(t, err)

	anonymous, err := GenerateToken(0, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(anonymous)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

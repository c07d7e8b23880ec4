package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func TestAccessToken_RoundTrip(t *testing.T) {
	now := time.Now()
	tok, exp, err := NewAccessToken("admin-1", "manager", "admin", testSecret, now, 24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(24*time.Hour), exp, time.Second)

	claims, err := Parse(tok, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.AdminID)
	assert.Equal(t, "manager", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestAccessToken_UniquePerIssue(t *testing.T) {
	now := time.Now()
	a, _, err := NewAccessToken("admin-1", "manager", "admin", testSecret, now, time.Hour)
	require.NoError(t, err)
	b, _, err := NewAccessToken("admin-1", "manager", "admin", testSecret, now, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParse_RejectsWrongSecretAndExpired(t *testing.T) {
	tok, _, err := NewAccessToken("admin-1", "manager", "admin", testSecret, time.Now(), time.Hour)
	require.NoError(t, err)
	_, err = Parse(tok, "other-secret", time.Now())
	assert.Error(t, err)

	expired, _, err := NewAccessToken("admin-1", "manager", "admin", testSecret, time.Now().Add(-48*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	_, err = Parse(expired, testSecret, time.Now())
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	// The verification clock is the caller's, not the wall clock.
	_, err = Parse(expired, testSecret, time.Now().Add(-36*time.Hour))
	assert.NoError(t, err)
}

func TestPassword_Argon2idAndBcrypt(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)

	ok, err := VerifyPassword(hash, "Str0ng!Pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong-password")
	require.NoError(t, err)
	assert.False(t, ok)

	legacy, err := bcrypt.GenerateFromPassword([]byte("Legacy!Pass1"), bcrypt.MinCost)
	require.NoError(t, err)
	ok, err = VerifyPassword(string(legacy), "Legacy!Pass1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = VerifyPassword(string(legacy), "nope-nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("plaintext", "plaintext")
	assert.Error(t, err)
}

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestUserID_Valid(t *testing.T) {
	v := NewVerifier(testSecret, "")
	token, err := v.Sign("user-123", time.Hour)
	require.NoError(t, err)

	id, err := v.UserID("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", id)

	id, err = v.UserID("bearer  " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", id)
}

func TestUserID_Rejects(t *testing.T) {
	v := NewVerifier(testSecret, "")
	expired, err := v.Sign("user-123", -time.Hour)
	require.NoError(t, err)
	otherKey, err := NewVerifier("another-secret-another-secret-0000", "").Sign("user-123", time.Hour)
	require.NoError(t, err)
	noSub, err := v.Sign("", time.Hour)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"no scheme":    expired,
		"basic":        "Basic dXNlcjpwYXNz",
		"bearer only":  "Bearer ",
		"garbage":      "Bearer not.a.jwt",
		"expired":      "Bearer " + expired,
		"wrong key":    "Bearer " + otherKey,
		"no subject":   "Bearer " + noSub,
		"no expiry":    "Bearer " + noExp,
		"wrong method": "Bearer " + hs384,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.UserID(header)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestUserID_Issuer(t *testing.T) {
	v := NewVerifier(testSecret, "https://project.supabase.co/auth/v1")
	token, err := v.Sign("user-1", time.Hour)
	require.NoError(t, err)

	_, err = v.UserID("Bearer " + token)
	require.NoError(t, err)

	other, err := NewVerifier(testSecret, "someone-else").Sign("user-1", time.Hour)
	require.NoError(t, err)
	_, err = v.UserID("Bearer " + other)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUserID_NoSecret(t *testing.T) {
	_, err := NewVerifier("", "").UserID("Bearer x.y.z")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

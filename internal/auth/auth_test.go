package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
	assert.False(t, CheckPassword("not-a-hash", "secret1"))
}

func TestIssueVerify(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	iss, err := NewIssuer("s3cret", 0)
	require.NoError(t, err)
	iss.WithClock(func() time.Time { return now })

	tok, exp, err := iss.Issue(42, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTTL), exp)

	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)

	now = now.Add(DefaultTTL)
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	iss, err := NewIssuer("one", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("two", time.Hour)
	require.NoError(t, err)

	tok, _, err := other.Issue(1, "a@b.c")
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerNeedsSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestTokenFromHeader(t *testing.T) {
	for in, want := range map[string]string{
		"Bearer abc.def":   "abc.def",
		"bearer   abc.def": "abc.def",
		"abc.def":          "abc.def",
		"":                 "",
		"Basic dXNlcg==":   "",
	} {
		assert.Equal(t, want, TokenFromHeader(in), in)
	}
}

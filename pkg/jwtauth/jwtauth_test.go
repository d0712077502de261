package jwtauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func claimsAt(now time.Time, ttl time.Duration, typ string) *Claims {
	return &Claims{
		UserID: "u-1",
		Email:  "a@x.io",
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    DefaultIssuer,
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestSignAndParse(t *testing.T) {
	now := time.Now()
	signed, err := Sign(claimsAt(now, time.Minute, TypeAccess), []byte(secret))
	require.NoError(t, err)

	got, err := NewVerifier(secret, DefaultIssuer, TypeAccess).Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "a@x.io", got.Email)
	assert.Equal(t, "jti-1", got.ID)
	assert.Equal(t, now.Add(time.Minute).Unix(), got.ExpiresAt.Unix())
}

func TestParse_Rejects(t *testing.T) {
	now := time.Now()
	good := func(c *Claims) string {
		s, err := Sign(c, []byte(secret))
		require.NoError(t, err)
		return s
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsAt(now, time.Minute, TypeAccess)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp := claimsAt(now, time.Minute, TypeAccess)
	noExp.ExpiresAt = nil

	tests := map[string]string{
		"garbage":       "not-a-jwt",
		"wrong secret":  mustSign(t, claimsAt(now, time.Minute, TypeAccess), "another-secret-another-secret-xx"),
		"expired":       good(claimsAt(now.Add(-time.Hour), time.Minute, TypeAccess)),
		"wrong type":    good(claimsAt(now, time.Minute, TypeRefresh)),
		"alg none":      none,
		"missing exp":   good(noExp),
		"tampered body": good(claimsAt(now, time.Minute, TypeAccess)) + "x",
	}
	v := NewVerifier(secret, DefaultIssuer, TypeAccess)
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Parse(tok)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParse_WrongIssuer(t *testing.T) {
	c := claimsAt(time.Now(), time.Minute, TypeAccess)
	c.Issuer = "someone-else"
	_, err := NewVerifier(secret, DefaultIssuer, TypeAccess).Parse(mustSign(t, c, secret))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	tok := mustSign(t, claimsAt(now, time.Minute, TypeAccess), secret)
	v := NewVerifier(secret, DefaultIssuer, TypeAccess).WithClock(func() time.Time { return now.Add(2 * time.Minute) })

	_, err := v.Parse(tok)
	require.Error(t, err)
	assert.True(t, IsExpired(err))

	_, err = v.Parse("junk")
	assert.False(t, IsExpired(err))
}

func mustSign(t *testing.T, c *Claims, key string) string {
	t.Helper()
	s, err := Sign(c, []byte(key))
	require.NoError(t, err)
	return s
}

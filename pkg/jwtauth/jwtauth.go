// Package jwtauth holds the HS256 token format shared by the auth service,
// which signs tokens, and the user service, which may verify access tokens
// locally with the same secret.
package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim written by the auth service.
const DefaultIssuer = "auth-service"

// Token types carried in the typ claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalidToken wraps every parse or verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT body. The public payload is userId, email, iat and exp;
// sub, jti, iss and typ are bookkeeping.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Sign serializes claims as an HS256 JWT.
func Sign(claims *Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}

// Verifier checks tokens of one type against one secret.
type Verifier struct {
	secret    []byte
	issuer    string
	tokenType string
	now       func() time.Time
}

// NewVerifier returns a Verifier for tokens of tokenType signed with secret.
// An empty issuer disables the iss check.
func NewVerifier(secret, issuer, tokenType string) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		issuer:    issuer,
		tokenType: tokenType,
		now:       time.Now,
	}
}

// WithClock replaces the time source used for exp checks.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Parse verifies the signature, algorithm, expiry, issuer and token type.
func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if claims.Type != v.tokenType {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, v.tokenType, claims.Type)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired reports whether err came from an expired but otherwise valid token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

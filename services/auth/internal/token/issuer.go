package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/accounts/pkg/jwtauth"
	"github.com/utafrali/accounts/services/auth/internal/domain"
)

// Config holds the signing parameters. Access and refresh tokens use
// different secrets so one can never be replayed as the other.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Issuer mints and verifies access/refresh token pairs.
type Issuer struct {
	cfg     Config
	access  *jwtauth.Verifier
	refresh *jwtauth.Verifier
	now     func() time.Time
}

func NewIssuer(cfg Config) *Issuer {
	if cfg.Issuer == "" {
		cfg.Issuer = jwtauth.DefaultIssuer
	}
	return &Issuer{
		cfg:     cfg,
		access:  jwtauth.NewVerifier(cfg.AccessSecret, cfg.Issuer, jwtauth.TypeAccess),
		refresh: jwtauth.NewVerifier(cfg.RefreshSecret, cfg.Issuer, jwtauth.TypeRefresh),
		now:     time.Now,
	}
}

// WithClock replaces the time source for both issuing and verifying.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	i.access.WithClock(now)
	i.refresh.WithClock(now)
	return i
}

// Issue signs a new pair for the user. The returned time is the refresh
// token's exp claim, which is what the caller must persist as expires_at.
func (i *Issuer) Issue(userID, email string) (domain.TokenPair, time.Time, error) {
	now := i.now().UTC().Truncate(time.Second)

	access, err := jwtauth.Sign(i.claims(userID, email, jwtauth.TypeAccess, now, i.cfg.AccessTTL), []byte(i.cfg.AccessSecret))
	if err != nil {
		return domain.TokenPair{}, time.Time{}, err
	}

	refreshExp := now.Add(i.cfg.RefreshTTL)
	refresh, err := jwtauth.Sign(i.claims(userID, email, jwtauth.TypeRefresh, now, i.cfg.RefreshTTL), []byte(i.cfg.RefreshSecret))
	if err != nil {
		return domain.TokenPair{}, time.Time{}, err
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, refreshExp, nil
}

func (i *Issuer) claims(userID, email, typ string, now time.Time, ttl time.Duration) *jwtauth.Claims {
	return &jwtauth.Claims{
		UserID: userID,
		Email:  email,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// ParseAccess verifies an access token.
func (i *Issuer) ParseAccess(s string) (*jwtauth.Claims, error) { return i.access.Parse(s) }

// ParseRefresh verifies a refresh token.
func (i *Issuer) ParseRefresh(s string) (*jwtauth.Claims, error) { return i.refresh.Parse(s) }

// PayloadOf converts verified claims into the public token payload.
func PayloadOf(c *jwtauth.Claims) domain.Payload {
	p := domain.Payload{UserID: c.UserID, Email: c.Email}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Unix()
	}
	return p
}

// Package authclient resolves bearer tokens for the user service, either by
// verifying them with the shared access secret or by asking the auth service.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/pkg/httpclient"
	"github.com/utafrali/accounts/pkg/jwtauth"
	"github.com/utafrali/accounts/pkg/logger"
	"github.com/utafrali/accounts/pkg/middleware"
)

const (
	msgInvalidToken = "Invalid or expired token"
	serviceName     = "auth-service"
)

// Local verifies access tokens in-process. It does not check that the account
// still exists.
func Local(secret string) middleware.TokenValidator {
	return local(jwtauth.NewVerifier(secret, jwtauth.DefaultIssuer, jwtauth.TypeAccess))
}

func local(v *jwtauth.Verifier) middleware.TokenValidator {
	return func(_ context.Context, token string) (*middleware.Identity, error) {
		claims, err := v.Parse(token)
		if err != nil {
			return nil, apperrors.Unauthorized(msgInvalidToken)
		}

		id := &middleware.Identity{UserID: claims.UserID, Email: claims.Email}
		if claims.IssuedAt != nil {
			id.IssuedAt = claims.IssuedAt.Time
		}
		if claims.ExpiresAt != nil {
			id.ExpiresAt = claims.ExpiresAt.Time
		}
		return id, nil
	}
}

// Remote validates tokens through POST /auth/validate.
type Remote struct {
	baseURL string
	client  *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

func NewRemote(baseURL string, client *httpclient.CircuitBreakerClient, logger *slog.Logger) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type validateEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		UserID    string `json:"userId"`
		Email     string `json:"email"`
		IssuedAt  int64  `json:"iat"`
		ExpiresAt int64  `json:"exp"`
	} `json:"data"`
}

// Validator adapts Remote to the Auth middleware.
func (r *Remote) Validator() middleware.TokenValidator {
	return r.Validate
}

// Validate resolves token via the auth service. A rejected token or a
// deleted account is Unauthorized; an unreachable auth service is
// ServiceUnavailable.
func (r *Remote) Validate(ctx context.Context, token string) (*middleware.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/auth/validate", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		logger.WithContext(ctx, r.logger).Warn("token validation call failed", slog.String("error", err.Error()))
		return nil, apperrors.ServiceUnavailable("authentication service unavailable", err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := httpclient.ParseResponseError(resp, serviceName)
		if errors.Is(perr, apperrors.ErrUnauthorized) || errors.Is(perr, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgInvalidToken)
		}
		return nil, fmt.Errorf("validate token: %w", perr)
	}
	defer func() { _ = resp.Body.Close() }()

	var env validateEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode validate response: %w", err)
	}
	if !env.Success || env.Data.UserID == "" {
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}

	return &middleware.Identity{
		UserID:    env.Data.UserID,
		Email:     env.Data.Email,
		IssuedAt:  time.Unix(env.Data.IssuedAt, 0),
		ExpiresAt: time.Unix(env.Data.ExpiresAt, 0),
	}, nil
}

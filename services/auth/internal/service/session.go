package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/pkg/jwtauth"
	"github.com/utafrali/accounts/services/auth/internal/domain"
	"github.com/utafrali/accounts/services/auth/internal/event"
	"github.com/utafrali/accounts/services/auth/internal/repository"
	"github.com/utafrali/accounts/services/auth/internal/token"
)

const (
	msgInvalidRefresh = "Invalid or expired refresh token"
	msgInvalidToken   = "Invalid or expired token"
)

// SessionService owns the token lifecycle: minting pairs on register and
// login, single-use rotation on refresh, and revocation on logout and
// account deletion.
type SessionService struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	issuer     *token.Issuer
	verifier   *CredentialVerifier
	events     event.Publisher
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	issuer *token.Issuer,
	events event.Publisher,
	bcryptCost int,
	logger *slog.Logger,
) *SessionService {
	if events == nil {
		events = event.NoopPublisher{}
	}
	return &SessionService{
		users:      users,
		tokens:     tokens,
		issuer:     issuer,
		verifier:   NewCredentialVerifier(users, bcryptCost),
		events:     events,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates an account and returns its first token pair.
func (s *SessionService) Register(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.InvalidInput("email and password are required")
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperrors.Conflict("User already exists")
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.InvalidInput("password must be at most 72 bytes")
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A concurrent register for the same email surfaces here as Conflict.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issue(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return pair, nil
}

// Login verifies credentials and returns a fresh token pair.
func (s *SessionService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	identity, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	pair, err := s.issue(ctx, identity.UserID, identity.Email)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", identity.UserID))
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed atomically, so replaying it or racing a second refresh with it
// fails.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(msgInvalidRefresh)
	}

	stored, err := s.tokens.Consume(ctx, domain.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "refresh token not recognized",
				slog.String("user_id", claims.UserID),
			)
			return nil, apperrors.Unauthorized(msgInvalidRefresh)
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	if stored.Expired(s.now()) || stored.UserID != claims.UserID {
		return nil, apperrors.Unauthorized(msgInvalidRefresh)
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgInvalidRefresh)
		}
		return nil, fmt.Errorf("get user for refresh: %w", err)
	}

	pair, err := s.issue(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	return pair, nil
}

// Logout revokes the refresh token. Unknown or already revoked tokens are
// not an error.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.DeleteByHash(ctx, domain.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// ValidateToken verifies an access token and confirms its user still exists.
func (s *SessionService) ValidateToken(ctx context.Context, accessToken string) (*domain.Payload, error) {
	claims, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		if !errors.Is(err, jwtauth.ErrInvalidToken) {
			return nil, apperrors.Internal(err)
		}
		return nil, apperrors.Unauthorized(msgInvalidToken)
	}

	if _, err := s.users.GetByID(ctx, claims.UserID); err != nil {
		return nil, fmt.Errorf("get token user: %w", err)
	}

	payload := token.PayloadOf(claims)
	return &payload, nil
}

// GetProfile returns the account for userID.
func (s *SessionService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return user, nil
}

// DeleteAccount removes the account and every refresh token it holds.
func (s *SessionService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if err := s.tokens.DeleteByUserID(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after account deletion",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.events.PublishUserDeleted(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account deleted", slog.String("user_id", userID))
	return nil
}

// issue mints a pair and stores the refresh token digest with the same
// expiry as its exp claim.
func (s *SessionService) issue(ctx context.Context, userID, email string) (*domain.TokenPair, error) {
	pair, expiresAt, err := s.issuer.Issue(userID, email)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	rt := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: domain.HashToken(pair.RefreshToken),
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	if err := s.tokens.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &pair, nil
}

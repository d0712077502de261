package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/services/auth/internal/domain"
	"github.com/utafrali/accounts/services/auth/internal/repository"
)

const msgInvalidCredentials = "Invalid email or password"

// CredentialVerifier checks an email/password pair against the credential
// store. Unknown emails and wrong passwords fail identically.
type CredentialVerifier struct {
	users     repository.UserRepository
	dummyHash []byte
}

// NewCredentialVerifier precomputes a hash at the given cost so lookups of
// unknown emails still spend one bcrypt comparison.
func NewCredentialVerifier(users repository.UserRepository, cost int) *CredentialVerifier {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	}
	return &CredentialVerifier{users: users, dummyHash: dummy}
}

// Verify returns the identity for email when password matches its stored hash.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*domain.Identity, error) {
	user, err := v.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
			return nil, apperrors.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("look up credentials: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("compare password hash: %w", err)
	}

	return &domain.Identity{UserID: user.ID, Email: user.Email}, nil
}

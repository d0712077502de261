package repository

import (
	"context"

	"github.com/utafrali/accounts/services/auth/internal/domain"
)

// UserRepository persists accounts. Lookups of a missing user return an
// error matching apperrors.ErrNotFound.
type UserRepository interface {
	// Create inserts user. A duplicate email yields an apperrors.ErrConflict.
	Create(ctx context.Context, user *domain.User) error

	GetByID(ctx context.Context, id string) (*domain.User, error)

	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Delete removes the user, or returns NotFound if there was none.
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository persists refresh token digests.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error

	// Consume atomically removes and returns the token with the given hash.
	// Of two concurrent calls for one hash, at most one sees the token; the
	// other gets NotFound.
	Consume(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// DeleteByHash removes the token if present. Absent is not an error.
	DeleteByHash(ctx context.Context, tokenHash string) error

	DeleteByUserID(ctx context.Context, userID string) error
}

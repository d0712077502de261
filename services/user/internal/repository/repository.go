package repository

import (
	"context"
	"time"

	"github.com/utafrali/accounts/services/user/internal/domain"
)

// ProfileRepository persists user profiles, at most one per user.
type ProfileRepository interface {
	// GetByUserID returns NotFound when the user has no profile.
	GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error)

	// Upsert applies patch to the user's profile, creating it with id when
	// none exists. Concurrent calls for one user never produce two rows.
	Upsert(ctx context.Context, id, userID string, patch domain.ProfilePatch, at time.Time) (*domain.UserProfile, error)

	// Provision creates an empty profile if the user has none.
	Provision(ctx context.Context, id, userID string, at time.Time) error

	// DeleteByUserID returns NotFound when there was no profile.
	DeleteByUserID(ctx context.Context, userID string) error
}

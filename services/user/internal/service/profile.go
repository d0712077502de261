package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/pkg/logger"
	"github.com/utafrali/accounts/services/user/internal/domain"
	"github.com/utafrali/accounts/services/user/internal/repository"
)

// ProfileService implements profile reads and writes for the HTTP layer and
// the account event handlers.
type ProfileService struct {
	repo   repository.ProfileRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewProfileService creates a new profile service.
func NewProfileService(repo repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	return s.repo.GetByUserID(ctx, userID)
}

// Upsert applies patch, creating the profile on first write.
func (s *ProfileService) Upsert(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.UserProfile, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	profile, err := s.repo.Upsert(ctx, uuid.New().String(), userID, patch, s.now().UTC())
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.logger).Info("profile updated", slog.String("profile_id", profile.ID))
	return profile, nil
}

func (s *ProfileService) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return err
	}

	logger.WithContext(ctx, s.logger).Info("profile deleted", slog.String("user_id", userID))
	return nil
}

// Provision creates an empty profile for a newly registered user. It is a
// no-op when the profile already exists.
func (s *ProfileService) Provision(ctx context.Context, userID string) error {
	if err := s.repo.Provision(ctx, uuid.New().String(), userID, s.now().UTC()); err != nil {
		return fmt.Errorf("provision profile for %s: %w", userID, err)
	}
	return nil
}

// Remove deletes the profile of a deleted account. A missing profile is not
// an error.
func (s *ProfileService) Remove(ctx context.Context, userID string) error {
	err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("remove profile for %s: %w", userID, err)
	}
	return nil
}

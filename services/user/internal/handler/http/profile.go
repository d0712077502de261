package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/accounts/pkg/httputil"
	"github.com/utafrali/accounts/pkg/middleware"
	"github.com/utafrali/accounts/services/user/internal/domain"
)

// Profiles is the part of service.ProfileService the handlers call.
type Profiles interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	Upsert(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.UserProfile, error)
	Delete(ctx context.Context, userID string) error
}

// ProfileHandler handles HTTP requests for /users endpoints.
type ProfileHandler struct {
	profiles Profiles
	logger   *slog.Logger
}

// NewProfileHandler creates a new profile HTTP handler.
func NewProfileHandler(profiles Profiles, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// UpdateProfileRequest is the body of PUT /users/profile. Omitted fields are
// left unchanged and an empty string clears a field.
type UpdateProfileRequest struct {
	FirstName   *string        `json:"firstName" validate:"omitempty,max=100"`
	LastName    *string        `json:"lastName" validate:"omitempty,max=100"`
	Bio         *string        `json:"bio" validate:"omitempty,max=1000"`
	AvatarURL   *string        `json:"avatarUrl" validate:"omitempty,max=2048,url_or_empty"`
	Preferences map[string]any `json:"preferences"`
}

func (req UpdateProfileRequest) patch() domain.ProfilePatch {
	return domain.ProfilePatch{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		Preferences: req.Preferences,
	}
}

// GetProfile handles GET /users/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "User profile retrieved successfully", profile)
}

// UpdateProfile handles PUT /users/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	profile, err := h.profiles.Upsert(r.Context(), middleware.UserIDFromContext(r.Context()), req.patch())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "User profile updated successfully", profile)
}

// DeleteProfile handles DELETE /users/profile
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.Delete(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "User profile deleted successfully", nil)
}

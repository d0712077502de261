package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/accounts/pkg/database"
	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/services/user/internal/domain"
)

const profileColumns = `id, user_id, first_name, last_name, bio, avatar_url, preferences, created_at, updated_at`

// ProfileRepository implements repository.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	db database.DBTX
}

func NewProfileRepository(db database.DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (_ *domain.UserProfile, err error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "SELECT user_profiles", query)
	defer func() { end(err) }()

	p, err := scanProfile(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user profile")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Upsert resolves the create-or-update race inside a single statement. Each
// column takes the incoming value only when its flag is set; an empty string
// is stored as NULL.
func (r *ProfileRepository) Upsert(ctx context.Context, id, userID string, patch domain.ProfilePatch, at time.Time) (_ *domain.UserProfile, err error) {
	query := `
		INSERT INTO user_profiles (id, user_id, first_name, last_name, bio, avatar_url, preferences, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($5, ''), NULLIF($7, ''), NULLIF($9, ''), COALESCE($11::jsonb, '{}'::jsonb), $12, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name  = CASE WHEN $4  THEN EXCLUDED.first_name  ELSE user_profiles.first_name  END,
			last_name   = CASE WHEN $6  THEN EXCLUDED.last_name   ELSE user_profiles.last_name   END,
			bio         = CASE WHEN $8  THEN EXCLUDED.bio         ELSE user_profiles.bio         END,
			avatar_url  = CASE WHEN $10 THEN EXCLUDED.avatar_url  ELSE user_profiles.avatar_url  END,
			preferences = CASE WHEN $11::jsonb IS NOT NULL THEN EXCLUDED.preferences ELSE user_profiles.preferences END,
			updated_at  = EXCLUDED.updated_at
		RETURNING ` + profileColumns

	var prefs []byte
	if patch.Preferences != nil {
		if prefs, err = json.Marshal(patch.Preferences); err != nil {
			return nil, apperrors.InvalidInput("preferences must be a JSON object")
		}
	}

	firstName, setFirst := textArg(patch.FirstName)
	lastName, setLast := textArg(patch.LastName)
	bio, setBio := textArg(patch.Bio)
	avatar, setAvatar := textArg(patch.AvatarURL)

	ctx, end := database.TraceQuery(ctx, "UPSERT user_profiles", query)
	defer func() { end(err) }()

	p, err := scanProfile(r.db.QueryRow(ctx, query,
		id, userID,
		firstName, setFirst,
		lastName, setLast,
		bio, setBio,
		avatar, setAvatar,
		prefs, at,
	))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) Provision(ctx context.Context, id, userID string, at time.Time) (err error) {
	const query = `
		INSERT INTO user_profiles (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "INSERT user_profiles", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, id, userID, at); err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("user")
		}
		return fmt.Errorf("provision profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) DeleteByUserID(ctx context.Context, userID string) (err error) {
	const query = `DELETE FROM user_profiles WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "DELETE user_profiles", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user profile")
	}
	return nil
}

func textArg(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	return *v, true
}

func scanProfile(row pgx.Row) (*domain.UserProfile, error) {
	var (
		p     domain.UserProfile
		prefs []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Bio, &p.AvatarURL, &prefs, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Preferences = map[string]any{}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &p, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/accounts/pkg/database"
	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/services/auth/internal/domain"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	const query = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	ctx, end := database.TraceQuery(ctx, "INSERT refresh_tokens", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("user")
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Consume deletes the row and returns it in one statement, so only one of
// several concurrent callers gets it back.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (_ *domain.RefreshToken, err error) {
	const query = `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING id, user_id, token_hash, expires_at, created_at`

	ctx, end := database.TraceQuery(ctx, "DELETE refresh_tokens RETURNING", query)
	defer func() { end(err) }()

	var t domain.RefreshToken
	err = r.db.QueryRow(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("refresh token")
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (err error) {
	const query = `DELETE FROM refresh_tokens WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "DELETE refresh_tokens by hash", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (err error) {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "DELETE refresh_tokens by user", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("delete refresh tokens for user: %w", err)
	}
	return nil
}

// DeleteExpired purges rows past their expiry and returns how many went.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (_ int64, err error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`

	ctx, end := database.TraceQuery(ctx, "DELETE refresh_tokens expired", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

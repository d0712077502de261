package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/accounts/pkg/database"
	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/services/auth/internal/domain"
)

const (
	tokenKeyPrefix = "auth:refresh:"
	userKeyPrefix  = "auth:user-refresh:"
)

func tokenKey(hash string) string { return tokenKeyPrefix + hash }
func userKey(userID string) string { return userKeyPrefix + userID }

// RefreshTokenRepository keeps each token under its own key with a TTL that
// ends at the token's expiry, plus a per-user set of hashes so an account's
// tokens can be dropped together.
type RefreshTokenRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRefreshTokenRepository(client redis.UniversalClient) *RefreshTokenRepository {
	return &RefreshTokenRepository{client: client, now: time.Now}
}

type record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	ctx, end := database.TraceRedis(ctx, "refresh_token.create", "SET")
	defer func() { end(err) }()

	ttl := t.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("store refresh token: already expired at %s", t.ExpiresAt.Format(time.RFC3339))
	}

	raw, err := json.Marshal(record{ID: t.ID, UserID: t.UserID, ExpiresAt: t.ExpiresAt, CreatedAt: t.CreatedAt})
	if err != nil {
		return fmt.Errorf("encode refresh token: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, tokenKey(t.TokenHash), raw, ttl)
		p.SAdd(ctx, userKey(t.UserID), t.TokenHash)
		p.Expire(ctx, userKey(t.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Consume uses GETDEL, which is atomic on the server.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (_ *domain.RefreshToken, err error) {
	ctx, end := database.TraceRedis(ctx, "refresh_token.consume", "GETDEL")
	defer func() { end(err) }()

	t, err := r.take(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperrors.NotFound("refresh token")
	}
	return t, nil
}

func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (err error) {
	ctx, end := database.TraceRedis(ctx, "refresh_token.delete", "GETDEL")
	defer func() { end(err) }()

	_, err = r.take(ctx, tokenHash)
	return err
}

func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (err error) {
	ctx, end := database.TraceRedis(ctx, "refresh_token.delete_user", "SMEMBERS")
	defer func() { end(err) }()

	hashes, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list refresh tokens for user: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, tokenKey(h))
	}
	keys = append(keys, userKey(userID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete refresh tokens for user: %w", err)
	}
	return nil
}

// take removes the token and its index entry. A missing key yields (nil, nil).
func (r *RefreshTokenRepository) take(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	raw, err := r.client.GetDel(ctx, tokenKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("take refresh token: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}

	// The index entry is advisory; a stale member is harmless.
	_ = r.client.SRem(ctx, userKey(rec.UserID), tokenHash).Err()

	return &domain.RefreshToken{
		ID:        rec.ID,
		UserID:    rec.UserID,
		TokenHash: tokenHash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/services/auth/internal/domain"
	"github.com/utafrali/accounts/services/auth/internal/token"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockPublisher) PublishUserDeleted(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIssuer() *token.Issuer {
	return token.NewIssuer(token.Config{
		AccessSecret:  "test-access-secret-test-access-secret",
		RefreshSecret: "test-refresh-secret-test-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
}

type fixture struct {
	users  *mockUserRepository
	tokens *mockRefreshTokenRepository
	events *mockPublisher
	issuer *token.Issuer
	svc    *SessionService
}

func newFixture() *fixture {
	f := &fixture{
		users:  new(mockUserRepository),
		tokens: new(mockRefreshTokenRepository),
		events: new(mockPublisher),
		issuer: newTestIssuer(),
	}
	f.svc = NewSessionService(f.users, f.tokens, f.issuer, f.events, bcrypt.MinCost, newTestLogger())
	return f
}

// hashForTest creates a bcrypt hash with the minimum cost for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func existingUser() *domain.User {
	return &domain.User{ID: "user-1", Email: "a@x.com", PasswordHash: hashForTest("pw1")}
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.users.On("GetByEmail", ctx, "a@x.com").Return(nil, apperrors.NotFound("user"))
	f.users.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	f.tokens.On("Create", ctx, mock.AnythingOfType("*domain.RefreshToken")).Return(nil)
	f.events.On("PublishUserRegistered", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	pair, err := f.svc.Register(ctx, "  A@X.com ", "pw1")
	require.NoError(t, err)

	created := f.users.Calls[1].Arguments.Get(1).(*domain.User)
	assert.Equal(t, "a@x.com", created.Email)
	assert.NotEqual(t, "pw1", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("pw1")))

	claims, err := f.issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.UserID)

	stored := f.tokens.Calls[0].Arguments.Get(1).(*domain.RefreshToken)
	assert.Equal(t, domain.HashToken(pair.RefreshToken), stored.TokenHash)
	refreshClaims, err := f.issuer.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(refreshClaims.ExpiresAt.Time))

	f.events.AssertExpectations(t)
}

func TestRegister_ExistingEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(existingUser(), nil)

	_, err := f.svc.Register(ctx, "a@x.com", "pw1")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_ConcurrentInsertIsConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(nil, apperrors.NotFound("user"))
	f.users.On("Create", ctx, mock.Anything).Return(apperrors.Conflict("User already exists"))

	_, err := f.svc.Register(ctx, "a@x.com", "pw1")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestRegister_LookupFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(nil, errors.New("connection refused"))

	_, err := f.svc.Register(ctx, "a@x.com", "pw1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrConflict)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(nil, apperrors.NotFound("user"))
	f.users.On("Create", ctx, mock.Anything).Return(nil)
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)
	f.events.On("PublishUserRegistered", ctx, mock.Anything).Return(errors.New("broker down"))

	pair, err := f.svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestRegister_PasswordTooLong(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(nil, apperrors.NotFound("user"))

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}
	_, err := f.svc.Register(ctx, "a@x.com", string(long))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(existingUser(), nil)
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)

	pair, err := f.svc.Login(ctx, "A@x.com", "pw1")
	require.NoError(t, err)

	claims, err := f.issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestLogin_GenericFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(existingUser(), nil)
	f.users.On("GetByEmail", ctx, "nobody@x.com").Return(nil, apperrors.NotFound("user"))

	_, wrongPw := f.svc.Login(ctx, "a@x.com", "wrong")
	_, unknown := f.svc.Login(ctx, "nobody@x.com", "pw1")

	var a, b *apperrors.AppError
	require.ErrorAs(t, wrongPw, &a)
	require.ErrorAs(t, unknown, &b)
	assert.Equal(t, "UNAUTHORIZED", a.Code)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, a.Status, b.Status)
	f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLogin_StoreFailureIsNotUnauthorized(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "a@x.com").Return(nil, errors.New("timeout"))

	_, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- Refresh ---

func issuedRefresh(t *testing.T, f *fixture) (string, *domain.RefreshToken) {
	t.Helper()
	pair, exp, err := f.issuer.Issue("user-1", "a@x.com")
	require.NoError(t, err)
	return pair.RefreshToken, &domain.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		TokenHash: domain.HashToken(pair.RefreshToken),
		ExpiresAt: exp,
	}
}

func TestRefresh_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	raw, stored := issuedRefresh(t, f)

	f.tokens.On("Consume", ctx, stored.TokenHash).Return(stored, nil)
	f.users.On("GetByID", ctx, "user-1").Return(existingUser(), nil)
	f.tokens.On("Create", ctx, mock.Anything).Return(nil)

	pair, err := f.svc.Refresh(ctx, raw)
	require.NoError(t, err)
	assert.NotEqual(t, raw, pair.RefreshToken)
	f.tokens.AssertNumberOfCalls(t, "Create", 1)
}

func TestRefresh_BadSignature(t *testing.T) {
	f := newFixture()
	pair, _, err := f.issuer.Issue("user-1", "a@x.com")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), pair.AccessToken)

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	f.tokens.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestRefresh_AlreadyConsumed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	raw, stored := issuedRefresh(t, f)
	f.tokens.On("Consume", ctx, stored.TokenHash).Return(nil, apperrors.NotFound("refresh token"))

	_, err := f.svc.Refresh(ctx, raw)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_StoredRowExpired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	raw, stored := issuedRefresh(t, f)
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	f.tokens.On("Consume", ctx, stored.TokenHash).Return(stored, nil)

	_, err := f.svc.Refresh(ctx, raw)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRefresh_StoreFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	raw, stored := issuedRefresh(t, f)
	f.tokens.On("Consume", ctx, stored.TokenHash).Return(nil, errors.New("db down"))

	_, err := f.svc.Refresh(ctx, raw)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- Logout ---

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.tokens.On("DeleteByHash", ctx, domain.HashToken("whatever")).Return(nil)

	assert.NoError(t, f.svc.Logout(ctx, "whatever"))
	assert.NoError(t, f.svc.Logout(ctx, "whatever"))
	f.tokens.AssertNumberOfCalls(t, "DeleteByHash", 2)
}

// --- ValidateToken ---

func TestValidateToken_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pair, _, err := f.issuer.Issue("user-1", "a@x.com")
	require.NoError(t, err)
	f.users.On("GetByID", ctx, "user-1").Return(existingUser(), nil)

	payload, err := f.svc.ValidateToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, "a@x.com", payload.Email)
	assert.Greater(t, payload.ExpiresAt, payload.IssuedAt)
}

func TestValidateToken_DeletedUserIsNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pair, _, err := f.issuer.Issue("user-1", "a@x.com")
	require.NoError(t, err)
	f.users.On("GetByID", ctx, "user-1").Return(nil, apperrors.NotFound("user"))

	_, err = f.svc.ValidateToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestValidateToken_Malformed(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ValidateToken(context.Background(), "abc.def.ghi")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- Profile / DeleteAccount ---

func TestGetProfile_NotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("GetByID", ctx, "ghost").Return(nil, apperrors.NotFound("user"))

	_, err := f.svc.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteAccount_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("Delete", ctx, "user-1").Return(nil)
	f.tokens.On("DeleteByUserID", ctx, "user-1").Return(nil)
	f.events.On("PublishUserDeleted", ctx, "user-1").Return(nil)

	require.NoError(t, f.svc.DeleteAccount(ctx, "user-1"))

	f.users.AssertExpectations(t)
	f.tokens.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.users.On("Delete", ctx, "ghost").Return(apperrors.NotFound("user"))

	err := f.svc.DeleteAccount(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.tokens.AssertNotCalled(t, "DeleteByUserID", mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "PublishUserDeleted", mock.Anything, mock.Anything)
}

// --- CredentialVerifier ---

func TestCredentialVerifier_UnknownEmailStillHashes(t *testing.T) {
	users := new(mockUserRepository)
	users.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, apperrors.NotFound("user"))
	v := NewCredentialVerifier(users, bcrypt.MinCost)

	cost, err := bcrypt.Cost(v.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	_, err = v.Verify(context.Background(), "nobody@x.com", "pw")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestCredentialVerifier_CorruptHash(t *testing.T) {
	users := new(mockUserRepository)
	users.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{ID: "u", Email: "a@x.com", PasswordHash: "plain"}, nil)

	_, err := NewCredentialVerifier(users, bcrypt.MinCost).Verify(context.Background(), "a@x.com", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
}

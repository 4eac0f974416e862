package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"catalog-backend/internal/domain"
	"catalog-backend/internal/store"
)

// stubUserStore serves a fixed set of users keyed by id and email.
type stubUserStore struct {
	users []*domain.User
}

func (s *stubUserStore) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *stubUserStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func newTestService(t *testing.T, users ...*domain.User) *Service {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	issuer := NewTokenIssuer("test-secret", time.Hour)
	return NewService(&stubUserStore{users: users}, issuer, NewRevocationList(rdb))
}

func testUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{
		ID:           1,
		Name:         "Admin",
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		IsAdmin:      true,
	}
}

func TestService_LoginAndVerifyRoundtrip(t *testing.T) {
	user := testUser(t, "secret123")
	service := newTestService(t, user)

	token, loggedIn, err := service.Login(context.Background(), "admin@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, loggedIn.ID)

	verified, claims, err := service.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
	assert.True(t, verified.IsAdmin)
	assert.NotEmpty(t, claims.ID, "Every token needs a jti for revocation")
}

func TestService_LoginRejectsWrongPassword(t *testing.T) {
	service := newTestService(t, testUser(t, "secret123"))

	_, _, err := service.Login(context.Background(), "admin@example.com", "wrong")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestService_LoginRejectsUnknownEmail(t *testing.T) {
	service := newTestService(t)

	_, _, err := service.Login(context.Background(), "nobody@example.com", "secret123")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials), "Unknown accounts must look like bad passwords")
}

func TestService_LogoutRevokesToken(t *testing.T) {
	service := newTestService(t, testUser(t, "secret123"))

	token, _, err := service.Login(context.Background(), "admin@example.com", "secret123")
	require.NoError(t, err)

	_, claims, err := service.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	require.NoError(t, service.Logout(context.Background(), claims))

	_, _, err = service.VerifyToken(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestService_VerifyRejectsDeletedAccounts(t *testing.T) {
	user := testUser(t, "secret123")
	service := newTestService(t, user)

	token, _, err := service.Login(context.Background(), "admin@example.com", "secret123")
	require.NoError(t, err)

	// Drop the account; the still-valid token must stop working.
	service.users = &stubUserStore{}

	_, _, err = service.VerifyToken(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestService_VerifyRejectsForeignSignature(t *testing.T) {
	user := testUser(t, "secret123")
	service := newTestService(t, user)

	foreign := NewTokenIssuer("another-secret", time.Hour)
	token, _, err := foreign.Issue(user)
	require.NoError(t, err)

	_, _, err = service.VerifyToken(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestTokenIssuer_ParseRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)
	token, _, err := issuer.Issue(&domain.User{ID: 1})
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestRevocationList_SkipsExpiredTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	list := NewRevocationList(rdb)

	// Revoking an already-expired token writes nothing.
	require.NoError(t, list.Revoke(context.Background(), "stale", time.Now().Add(-time.Minute)))
	revoked, err := list.IsRevoked(context.Background(), "stale")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(context.Background(), "fresh", time.Now().Add(time.Hour)))
	revoked, err = list.IsRevoked(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, revoked)
}

package auth

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"catalog-backend/internal/domain"
	"catalog-backend/internal/store"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Service wraps credential checks and the token lifecycle.
type Service struct {
	users   store.UserStorer
	issuer  *TokenIssuer
	revoked *RevocationList
}

func NewService(users store.UserStorer, issuer *TokenIssuer, revoked *RevocationList) *Service {
	return &Service{users: users, issuer: issuer, revoked: revoked}
}

// Login validates the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, _, err := s.issuer.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout revokes the token until its natural expiry.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// VerifyToken parses the bearer token, rejects revoked ones, and re-loads the
// principal so deleted accounts and stale admin flags are caught.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (*domain.User, *Claims, error) {
	claims, err := s.issuer.Parse(tokenString)
	if err != nil {
		return nil, nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	return user, claims, nil
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"catalog-backend/internal/auth"
	"catalog-backend/internal/domain"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	claimsKey    contextKey = "claims"
)

// RequireAuth authenticates the bearer token, re-loads the principal and
// attaches it to the request context. Unauthenticated requests never reach
// the wrapped handler.
func (h *HTTPHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || tokenString == authHeader {
			h.respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		user, claims, err := h.authService.VerifyToken(r.Context(), tokenString)
		if err != nil {
			if err != auth.ErrInvalidToken {
				h.logger.Error("token verification failed", slog.Any("error", err))
			}
			h.respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, user)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principalFrom returns the authenticated user attached by RequireAuth.
func principalFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(principalKey).(*domain.User)
	return user
}

// claimsFrom returns the verified token claims attached by RequireAuth.
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// requireAdmin enforces the admin gate. It runs strictly before input
// validation on every mutating endpoint; a non-admin caller gets a uniform
// forbidden response and no side effect occurs.
func (h *HTTPHandler) requireAdmin(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user := principalFrom(r.Context())
	if user == nil || !user.IsAdmin {
		h.respondError(w, http.StatusForbidden, "Unauthorized")
		return nil, false
	}
	return user, true
}

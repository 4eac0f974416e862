package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"catalog-backend/internal/auth"
	"catalog-backend/internal/domain"
)

// LoginInput defines the expected credentials payload.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginData struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondValidationErrors(w, validationErrorMap(err))
		return
	}

	token, user, err := h.authService.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    loginData{Token: token, User: user},
		Message: "Login successful",
	})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		h.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err := h.authService.Logout(r.Context(), claims); err != nil {
		h.logger.Error("logout failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	h.respondJSON(w, http.StatusOK, Response{Success: true, Message: "Logged out successfully"})
}

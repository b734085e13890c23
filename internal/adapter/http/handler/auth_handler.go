package handler

import (
	"net/http"

	"github.com/iho/erpledger/internal/domain"
)

// AuthHandler handles authentication endpoints. Tokens are issued out of
// band with the CLI.
type AuthHandler struct{}

// NewAuthHandler creates a new auth handler
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// UserInfo represents user information
type UserInfo struct {
	ID         string      `json:"id"`
	Email      string      `json:"email,omitempty"`
	Role       domain.Role `json:"role"`
	CanPost    bool        `json:"can_post"`
	CanReverse bool        `json:"can_reverse"`
}

// GetCurrentUser returns the current authenticated user
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := domain.UserFromContext(r.Context())
	if !ok {
		writeDomainError(w, "unauthorized", domain.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, UserInfo{
		ID:         user.ID,
		Email:      user.Email,
		Role:       user.Role,
		CanPost:    user.Role.CanPost(),
		CanReverse: user.Role.CanReverse(),
	})
}

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/iho/erpledger/internal/domain"
)

// Issuer and audience stamped on every token and required on verification.
const (
	Issuer   = "erpledger"
	Audience = "erpledger-api"
)

// Claims is the token payload. The user id travels as the subject.
type Claims struct {
	Role  domain.Role `json:"role"`
	Email string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// User rebuilds the caller carried by the token.
func (c *Claims) User() *domain.User {
	return &domain.User{
		ID:     c.Subject,
		Email:  c.Email,
		Role:   c.Role,
		Active: true,
	}
}

// JWTManager signs and verifies HS256 tokens for ledger operators. There is
// no user store: whoever holds the secret issues tokens.
type JWTManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJWTManager creates a JWTManager whose tokens live for ttl.
func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	return &JWTManager{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate issues a token for user. Anonymous users and unknown roles are
// refused.
func (m *JWTManager) Generate(user *domain.User) (string, error) {
	if user.ID == "" {
		return "", domain.NewValidationError("user_id", "is required")
	}
	if !user.Role.IsValid() {
		return "", domain.NewValidationError("role", "must be one of viewer, operator, admin")
	}

	issued := m.now()
	claims := &Claims{
		Role:  user.Role,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    Issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(m.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

// Verify checks signature, issuer, audience and expiry and returns the
// claims. Expired tokens yield ErrExpiredToken, anything else wrong
// ErrInvalidToken.
func (m *JWTManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrExpiredToken
	case err != nil:
		return nil, domain.ErrInvalidToken
	case claims.Subject == "" || !claims.Role.IsValid():
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/infrastructure/auth"
)

func sign(t *testing.T, method jwt.SigningMethod, claims auth.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func validClaims(subject string, role domain.Role) auth.Claims {
	return auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{auth.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
}

func TestJWTManager_RoundTrip(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager("super-secret", time.Minute)
	user := &domain.User{ID: "clerk-7", Email: "clerk@example.com", Role: domain.RoleOperator}

	first, err := manager.Generate(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	second, err := manager.Generate(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := manager.Verify(first)
	if err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}
	if claims.Subject != "clerk-7" || claims.Email != user.Email || claims.Role != domain.RoleOperator {
		t.Fatalf("claims do not match user: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
	if other, _ := manager.Verify(second); other == nil || other.ID == claims.ID {
		t.Fatal("expected every token to carry its own id")
	}

	got := claims.User()
	if got.ID != "clerk-7" || !got.Active || !got.Role.CanPost() || got.Role.CanReverse() {
		t.Fatalf("unexpected user from claims: %+v", got)
	}
}

func TestJWTManager_GenerateRejects(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager("secret", time.Minute)

	tests := []struct {
		name  string
		user  *domain.User
		field string
	}{
		{"anonymous", &domain.User{Role: domain.RoleViewer}, "user_id"},
		{"unknown role", &domain.User{ID: "u", Role: domain.Role("auditor")}, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Generate(tt.user)
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) || vErr.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestJWTManager_VerifyRejects(t *testing.T) {
	t.Parallel()

	manager := auth.NewJWTManager("secret", time.Minute)

	expired := validClaims("u1", domain.RoleViewer)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	foreignIssuer := validClaims("u1", domain.RoleAdmin)
	foreignIssuer.Issuer = "someone-else"

	otherAudience := validClaims("u1", domain.RoleAdmin)
	otherAudience.Audience = jwt.ClaimStrings{"billing"}

	noExpiry := validClaims("u1", domain.RoleAdmin)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name    string
		manager *auth.JWTManager
		token   string
		want    error
	}{
		{"expired", manager, sign(t, jwt.SigningMethodHS256, expired, "secret"), domain.ErrExpiredToken},
		{"wrong secret", auth.NewJWTManager("other-secret", time.Minute), sign(t, jwt.SigningMethodHS256, validClaims("u1", domain.RoleViewer), "secret"), domain.ErrInvalidToken},
		{"other hmac size", manager, sign(t, jwt.SigningMethodHS512, validClaims("u1", domain.RoleViewer), "secret"), domain.ErrInvalidToken},
		{"foreign issuer", manager, sign(t, jwt.SigningMethodHS256, foreignIssuer, "secret"), domain.ErrInvalidToken},
		{"other audience", manager, sign(t, jwt.SigningMethodHS256, otherAudience, "secret"), domain.ErrInvalidToken},
		{"no expiry", manager, sign(t, jwt.SigningMethodHS256, noExpiry, "secret"), domain.ErrInvalidToken},
		{"no subject", manager, sign(t, jwt.SigningMethodHS256, validClaims("", domain.RoleViewer), "secret"), domain.ErrInvalidToken},
		{"unknown role", manager, sign(t, jwt.SigningMethodHS256, validClaims("u1", domain.Role("root")), "secret"), domain.ErrInvalidToken},
		{"malformed", manager, "not-a-token", domain.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.manager.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

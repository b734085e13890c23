package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/infrastructure/auth"
)

// Authenticator verifies bearer tokens and attaches the caller to the request.
type Authenticator struct {
	jwtManager *auth.JWTManager
	failures   *prometheus.CounterVec
}

// NewAuthenticator creates an Authenticator. failures may be nil.
func NewAuthenticator(jwtManager *auth.JWTManager, failures *prometheus.CounterVec) *Authenticator {
	return &Authenticator{jwtManager: jwtManager, failures: failures}
}

// Require rejects requests without a valid token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			a.fail(w, "missing_token", "missing or malformed authorization header")
			return
		}

		claims, err := a.jwtManager.Verify(tokenString)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, domain.ErrExpiredToken) {
				reason = "expired_token"
			}
			a.fail(w, reason, err.Error())
			return
		}

		ctx := domain.WithUser(r.Context(), claims.User())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the caller when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString, ok := bearerToken(r); ok {
			if claims, err := a.jwtManager.Verify(tokenString); err == nil {
				r = r.WithContext(domain.WithUser(r.Context(), claims.User()))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) fail(w http.ResponseWriter, reason, message string) {
	if a.failures != nil {
		a.failures.WithLabelValues(reason).Inc()
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireRole rejects callers whose role is below minRole. Without an
// authenticated user the request is unauthorized.
func RequireRole(minRole domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := domain.UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}
			if !user.Role.Satisfies(minRole) {
				writeError(w, http.StatusForbidden, "forbidden", domain.ErrInsufficientRole.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

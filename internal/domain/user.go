package domain

import (
	"context"
	"errors"
	"time"
)

// User represents a system user
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
	Active    bool
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin has full access, including journal reversals
	RoleAdmin Role = "admin"

	// RoleOperator can submit events and move stock
	RoleOperator Role = "operator"

	// RoleViewer can only read ledgers and reports
	RoleViewer Role = "viewer"
)

// Valid roles
var validRoles = map[Role]bool{
	RoleAdmin:    true,
	RoleOperator: true,
	RoleViewer:   true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanPost checks if the role can submit events and stock movements
func (r Role) CanPost() bool {
	return r == RoleAdmin || r == RoleOperator
}

// CanReverse checks if the role can reverse journal entries
func (r Role) CanReverse() bool {
	return r == RoleAdmin
}

// Satisfies reports whether r grants at least the access of min.
func (r Role) Satisfies(min Role) bool {
	switch min {
	case RoleAdmin:
		return r.CanReverse()
	case RoleOperator:
		return r.CanPost()
	default:
		return r.IsValid()
	}
}

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)

// SystemActor is recorded when no authenticated user is attached to a request.
const SystemActor = "system"

// RequestMeta carries caller details recorded on journal entries and audit logs.
type RequestMeta struct {
	UserID    string
	RequestID string
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

type userKey struct{}

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey{}).(*User)
	return user, ok && user != nil
}

// WithRequestMeta attaches request metadata to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns request metadata with UserID resolved to the
// authenticated user or SystemActor.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	if user, ok := UserFromContext(ctx); ok {
		meta.UserID = user.ID
	}
	if meta.UserID == "" {
		meta.UserID = SystemActor
	}
	return meta
}

package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// SystemUserID identifies requests authenticated with the API key
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000000")

// UserContext holds authenticated user information
type UserContext struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
	Roles       []string
	// AdminRole is the role value that grants pipeline overrides
	AdminRole string
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok
}

// MustFromContext extracts user context or panics
func MustFromContext(ctx context.Context) *UserContext {
	user, ok := FromContext(ctx)
	if !ok {
		panic("user context not found in context")
	}
	return user
}

// HasRole checks if user has a specific role, ignoring case
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the admin role.
// An empty AdminRole falls back to "admin".
func (u *UserContext) IsAdmin() bool {
	role := u.AdminRole
	if role == "" {
		role = "admin"
	}
	return u.HasRole(role)
}

// IsSystem reports whether the request was authenticated with the API key
func (u *UserContext) IsSystem() bool {
	return u.UserID == SystemUserID
}

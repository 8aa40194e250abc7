package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/domain"
	"go.uber.org/zap"
)

// UserProvisioner records authenticated users so they can be resolved by id
type UserProvisioner interface {
	Upsert(ctx context.Context, user *domain.User) error
}

// Middleware handles authentication for HTTP requests
type Middleware struct {
	validator *TokenValidator
	users     UserProvisioner
	apiKey    string
	adminRole string
	logger    *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(cfg *config.Config, users UserProvisioner, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: NewTokenValidator(&cfg.Auth),
		users:     users,
		apiKey:    cfg.ApiKey.Value,
		adminRole: cfg.Auth.AdminRole,
		logger:    logger,
	}
}

// Authenticate accepts an x-api-key header or a Bearer token
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if apiKey := r.Header.Get("x-api-key"); apiKey != "" {
			if !m.validateAPIKey(apiKey) {
				m.logger.Warn("invalid API key attempt",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userCtx := &UserContext{
				UserID:      SystemUserID,
				DisplayName: "System",
				Email:       "system@straye.io",
				Roles:       []string{m.adminRole},
				AdminRole:   m.adminRole,
			}
			m.serve(w, r, next, userCtx, "api_key", start)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "Unauthorized: invalid authorization header format", http.StatusUnauthorized)
			return
		}

		userCtx, err := m.validator.ValidateToken(parts[1])
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}

		m.serve(w, r, next, userCtx, "jwt", start)
	})
}

func (m *Middleware) serve(w http.ResponseWriter, r *http.Request, next http.Handler, userCtx *UserContext, authType string, start time.Time) {
	if m.users != nil {
		err := m.users.Upsert(r.Context(), &domain.User{
			ID:          userCtx.UserID,
			Email:       userCtx.Email,
			DisplayName: userCtx.DisplayName,
		})
		if err != nil {
			m.logger.Error("failed to provision user",
				zap.String("user_id", userCtx.UserID.String()),
				zap.Error(err),
			)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	m.logger.Debug("request authenticated",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("auth_type", authType),
		zap.String("user_id", userCtx.UserID.String()),
		zap.Strings("roles", userCtx.Roles),
		zap.Duration("auth_duration", time.Since(start)),
	)

	next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
}

// RequireAdmin rejects requests from users without the admin role
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCtx, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "Forbidden: no user context", http.StatusForbidden)
			return
		}
		if !userCtx.IsAdmin() {
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) validateAPIKey(key string) bool {
	if m.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}

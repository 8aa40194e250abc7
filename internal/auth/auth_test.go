package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-signing-secret"

func createTestConfig(apiKey string) *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			Issuer:        "https://id.straye.io",
			Audience:      "pipeline-api",
			SigningSecret: testSecret,
			AdminRole:     "admin",
		},
		ApiKey: config.ApiKeyConfig{Value: apiKey},
	}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func validClaims(sub uuid.UUID) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub.String(),
		"name":  "Test User",
		"email": "Test@Example.com",
		"roles": []string{"Admin"},
		"iss":   "https://id.straye.io",
		"aud":   "pipeline-api",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

type recordingProvisioner struct {
	users []domain.User
	err   error
}

func (p *recordingProvisioner) Upsert(_ context.Context, user *domain.User) error {
	p.users = append(p.users, *user)
	return p.err
}

func TestTokenValidator_ValidToken(t *testing.T) {
	cfg := createTestConfig("")
	v := auth.NewTokenValidator(&cfg.Auth)
	sub := uuid.New()

	userCtx, err := v.ValidateToken(signToken(t, validClaims(sub)))
	require.NoError(t, err)
	assert.Equal(t, sub, userCtx.UserID)
	assert.Equal(t, "test@example.com", userCtx.Email)
	assert.Equal(t, "Test User", userCtx.DisplayName)
	assert.True(t, userCtx.IsAdmin())
}

func TestTokenValidator_Rejects(t *testing.T) {
	cfg := createTestConfig("")
	v := auth.NewTokenValidator(&cfg.Auth)

	t.Run("expired", func(t *testing.T) {
		claims := validClaims(uuid.New())
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		_, err := v.ValidateToken(signToken(t, claims))
		assert.ErrorIs(t, err, auth.ErrExpiredToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := validClaims(uuid.New())
		claims["aud"] = "someone-else"
		_, err := v.ValidateToken(signToken(t, claims))
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(uuid.New()))
		s, err := token.SignedString([]byte("other"))
		require.NoError(t, err)
		_, err = v.ValidateToken(s)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
}

func TestMiddleware_Authenticate_WithAPIKey(t *testing.T) {
	apiKey := "test-api-key-12345"
	m := auth.NewMiddleware(createTestConfig(apiKey), nil, zap.NewNop())

	var captured *auth.UserContext
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil)
	req.Header.Set("x-api-key", apiKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, captured)
	assert.True(t, captured.IsSystem())
	assert.True(t, captured.IsAdmin())
}

func TestMiddleware_Authenticate_Failures(t *testing.T) {
	m := auth.NewMiddleware(createTestConfig("correct-key"), nil, zap.NewNop())
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be called")
	}))

	cases := map[string]func(r *http.Request){
		"invalid api key": func(r *http.Request) { r.Header.Set("x-api-key", "wrong") },
		"missing header":  func(r *http.Request) {},
		"bad scheme":      func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
		"bad token":       func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil)
			prepare(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddleware_Authenticate_ProvisionsUser(t *testing.T) {
	users := &recordingProvisioner{}
	m := auth.NewMiddleware(createTestConfig(""), users, zap.NewNop())
	sub := uuid.New()

	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(sub)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, users.users, 1)
	assert.Equal(t, sub, users.users[0].ID)

	users.err = errors.New("db down")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMiddleware_RequireAdmin(t *testing.T) {
	m := auth.NewMiddleware(createTestConfig(""), nil, zap.NewNop())
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(auth.WithUserContext(req.Context(), &auth.UserContext{UserID: uuid.New(), Roles: []string{"sales"}}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = req.WithContext(auth.WithUserContext(req.Context(), &auth.UserContext{UserID: uuid.New(), Roles: []string{"ADMIN"}}))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

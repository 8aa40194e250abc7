package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rl := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1}, zap.NewNop())
		h := rl.LimitByIP(ok)
		for i := 0; i < 20; i++ {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			assert.Equal(t, http.StatusOK, serve(h, req).Code)
		}
	})

	t.Run("whitelisted path prefix", func(t *testing.T) {
		rl := middleware.NewRateLimiter(&config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 1,
			WhitelistPaths:    []string{"/health/*"},
		}, zap.NewNop())
		h := rl.LimitByIP(ok)
		for _, path := range []string{"/health/db", "/health/db", "/health"} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "192.168.1.1:1234"
			assert.Equal(t, http.StatusOK, serve(h, req).Code, path)
		}
	})

	t.Run("whitelisted forwarded ip", func(t *testing.T) {
		rl := middleware.NewRateLimiter(&config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 1,
			WhitelistIPs:      []string{"10.0.0.1"},
		}, zap.NewNop())
		h := rl.LimitByIP(ok)
		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = "192.168.1.1:1234"
			req.Header.Set("X-Forwarded-For", "10.0.0.1, 172.16.0.1")
			assert.Equal(t, http.StatusOK, serve(h, req).Code)
		}
	})

	t.Run("limit exceeded returns problem body", func(t *testing.T) {
		rl := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}, zap.NewNop())
		h := rl.LimitByIP(ok)

		var last *httptest.ResponseRecorder
		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = "192.168.1.100:1234"
			last = serve(h, req)
		}
		require.Equal(t, http.StatusTooManyRequests, last.Code)
		assert.Equal(t, "60", last.Header().Get("Retry-After"))

		var body domain.APIError
		require.NoError(t, json.NewDecoder(last.Body).Decode(&body))
		assert.Equal(t, http.StatusTooManyRequests, body.Status)
	})

	t.Run("authenticated users are keyed by id", func(t *testing.T) {
		rl := middleware.NewRateLimiter(&config.RateLimitConfig{
			Enabled:               true,
			RequestsPerMinute:     1,
			RequestsPerMinuteAuth: 1,
		}, zap.NewNop())
		h := rl.Limit(ok)

		for _, id := range []uuid.UUID{uuid.New(), uuid.New()} {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = "192.168.1.7:1234"
			req = req.WithContext(auth.WithUserContext(req.Context(), &auth.UserContext{UserID: id}))
			assert.Equal(t, http.StatusOK, serve(h, req).Code)
		}
	})
}

func TestCORS(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}

	preflight := func(h http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/customers", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "GET")
		return serve(h, req)
	}

	t.Run("development allows any origin", func(t *testing.T) {
		h := middleware.CORS(cfg, "development", zap.NewNop())(ok)
		assert.Equal(t, "http://localhost:3000", preflight(h, "http://localhost:3000").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("production without origins denies", func(t *testing.T) {
		h := middleware.CORS(cfg, "production", zap.NewNop())(ok)
		assert.Empty(t, preflight(h, "https://evil.example.com").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("explicit origins", func(t *testing.T) {
		explicit := *cfg
		explicit.AllowedOrigins = []string{"https://app.example.com"}
		h := middleware.CORS(&explicit, "production", zap.NewNop())(ok)
		assert.Equal(t, "https://app.example.com", preflight(h, "https://app.example.com").Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, preflight(h, "https://other.example.com").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("request id is exposed", func(t *testing.T) {
		h := middleware.CORS(cfg, "development", zap.NewNop())(ok)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		exposed := serve(h, req).Header().Get("Access-Control-Expose-Headers")
		assert.Contains(t, strings.ToLower(exposed), strings.ToLower(middleware.RequestIDHeader))
	})
}

func TestSecurityHeaders(t *testing.T) {
	cfg := &config.SecurityConfig{
		EnableHSTS:            true,
		HSTSMaxAge:            3600,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentTypeNosniff:    true,
	}
	h := middleware.SecurityHeaders(cfg)(ok)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil))
	assert.Equal(t, "max-age=3600; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))

	w = serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func TestLoggingAndRecovery(t *testing.T) {
	t.Run("request id is kept and echoed", func(t *testing.T) {
		h := middleware.Logging(zap.NewNop())(ok)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(middleware.RequestIDHeader, "abc")
		assert.Equal(t, "abc", serve(h, req).Header().Get(middleware.RequestIDHeader))

		w := serve(h, httptest.NewRequest(http.MethodGet, "/x", nil))
		_, err := uuid.Parse(w.Header().Get(middleware.RequestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("panic becomes 500", func(t *testing.T) {
		h := middleware.Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		w := serve(h, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)

		var body domain.APIError
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, domain.ErrorTypeInternal, body.Type)
	})
}

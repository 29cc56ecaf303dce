package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/loreline/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func authConfig(mode, token string) *config.Config {
	cfg := &config.Config{}
	cfg.Security.SecurityMode = mode
	cfg.Security.APIToken = token
	return cfg
}

func TestRequireAuthDevelopmentSkips(t *testing.T) {
	handler := RequireAuth(okHandler(), authConfig("development", ""))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/variables", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthProduction(t *testing.T) {
	handler := RequireAuth(okHandler(), authConfig("production", "secret-token"))

	// No token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/variables", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/variables", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct token
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/variables", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthProductionWithoutConfiguredToken(t *testing.T) {
	// Production with no token configured locks the API rather than
	// opening it.
	handler := RequireAuth(okHandler(), authConfig("production", ""))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/variables", nil)
	req.Header.Set("Authorization", "Bearer anything")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := RateLimitMiddleware(okHandler(), rl)

	// Burst of 2 passes, the third is limited.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "github.com/tempusgeo/TempusGeo-Server/internal/errors"
	"github.com/tempusgeo/TempusGeo-Server/internal/middleware"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func testErrorHandler() *apierrors.Handler {
	return apierrors.NewHandler(zap.NewNop())
}

func protectedHandler(t *testing.T, wantTenant string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantTenant, middleware.TenantID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestTenantAuthValidToken(t *testing.T) {
	token, err := middleware.NewTenantToken(testSecret, "1001", time.Hour)
	require.NoError(t, err)

	handler := middleware.TenantAuth(testSecret, testErrorHandler(), zap.NewNop())(protectedHandler(t, "1001"))

	req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantAuthRejections(t *testing.T) {
	expired, err := middleware.NewTenantToken(testSecret, "1001", -time.Hour)
	require.NoError(t, err)
	wrongKey, err := middleware.NewTenantToken("another-secret", "1001", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic foo"},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expired},
		{"wrong signing key", "Bearer " + wrongKey},
	}

	handler := middleware.TenantAuth(testSecret, testErrorHandler(), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestAdminAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("correct key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
		req.Header.Set("X-Admin-Key", "sekrit")
		rec := httptest.NewRecorder()
		middleware.AdminAuth("sekrit", testErrorHandler())(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
		req.Header.Set("X-Admin-Key", "guess")
		rec := httptest.NewRecorder()
		middleware.AdminAuth("sekrit", testErrorHandler())(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "FORBIDDEN")
	})

	t.Run("empty configured key disables surface", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
		req.Header.Set("X-Admin-Key", "")
		rec := httptest.NewRecorder()
		middleware.AdminAuth("", testErrorHandler())(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limiter := middleware.NewRateLimiter(1, 2, testErrorHandler(), zap.NewNop())
	handler := limiter.Limit(next)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/config", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

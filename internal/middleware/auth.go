package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apierrors "github.com/tempusgeo/TempusGeo-Server/internal/errors"
	"go.uber.org/zap"
)

// TenantClaims are the JWT claims carried by a tenant session token.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// NewTenantToken issues a signed session token for a tenant.
func NewTenantToken(secret, tenantID string, ttl time.Duration) (string, error) {
	claims := TenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TenantAuth verifies the Bearer token and puts the tenant ID on the
// request context. Requests without a valid token never reach the handler.
func TenantAuth(secret string, errorHandler *apierrors.Handler, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")

			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				errorHandler.WriteUnauthorized(w, "invalid or missing token", requestID)
				return
			}

			claims := &TenantClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid || claims.TenantID == "" {
				logger.Debug("rejected token",
					zap.String("request_id", requestID),
					zap.Error(err))
				errorHandler.WriteUnauthorized(w, "invalid or missing token", requestID)
				return
			}

			ctx := context.WithValue(r.Context(), TenantIDKey, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantID extracts the authenticated tenant ID from the request context.
func TenantID(ctx context.Context) string {
	id, _ := ctx.Value(TenantIDKey).(string)
	return id
}

// AdminAuth guards admin routes with a shared key header. An empty
// configured key disables the admin surface entirely.
func AdminAuth(adminKey string, errorHandler *apierrors.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" || r.Header.Get("X-Admin-Key") != adminKey {
				errorHandler.WriteForbidden(w, "admin access denied", r.Header.Get("X-Request-ID"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

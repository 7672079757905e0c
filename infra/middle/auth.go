package middle

import (
	"context"
	"net/http"
	"strings"

	"github.com/mekvam/paygate/infra/config"
	"github.com/mekvam/paygate/infra/crypto"
	"github.com/mekvam/paygate/infra/response"
)

type contextKey string

// TenantIDKey is the request context key holding the authenticated tenant id
const TenantIDKey contextKey = "tenant_id"

// GetTenantID returns the tenant id stored in the request context, or ""
func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}

// AuthMiddleware validates the Bearer API key and resolves the caller's
// tenant from the X-Tenant-ID header. Every /v1 route runs behind it;
// webhook ingress does not, webhooks authenticate per provider instead.
func AuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedAPIKey := config.GetAppConfig().APIKey
			if expectedAPIKey == "" {
				response.Error(w, http.StatusInternalServerError, "API key not configured", nil)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			apiKey, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || apiKey == "" {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <api_key>", nil)
				return
			}

			if !crypto.SecretEqual(apiKey, expectedAPIKey) {
				response.Error(w, http.StatusUnauthorized, "Invalid API key", nil)
				return
			}

			tenantID := r.Header.Get("X-Tenant-ID")
			if tenantID == "" {
				response.Error(w, http.StatusBadRequest, "X-Tenant-ID header required", nil)
				return
			}

			ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

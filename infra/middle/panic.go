package middle

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/mekvam/paygate/infra/logger"
	"github.com/mekvam/paygate/infra/response"
)

// PanicRecoveryMiddleware converts panics into HTTP 500 responses so one bad
// request cannot take the process down.
func PanicRecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered", fmt.Errorf("%v", err), logger.LogContext{
						TenantID: GetTenantID(r.Context()),
						Fields: map[string]any{
							"method": r.Method,
							"url":    r.URL.String(),
							"stack":  string(debug.Stack()),
						},
					})

					w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
					response.Error(w, http.StatusInternalServerError, "Internal server error", nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

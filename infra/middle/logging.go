package middle

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mekvam/paygate/infra/opensearch"
)

// responseWriter wraps http.ResponseWriter to capture the response body and
// status code for the log entry.
type responseWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	startTime  time.Time
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
		startTime:      time.Now(),
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// PaymentLoggingMiddleware mirrors payment and webhook traffic to the search
// index. Bodies are sanitized before indexing and the write happens off the
// request path; a sink outage never fails a payment.
func PaymentLoggingMiddleware(osLogger *opensearch.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if osLogger == nil || !isPaymentEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
				r.Header.Set("X-Request-ID", requestID)
			}

			var requestBody []byte
			if r.Body != nil {
				requestBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(requestBody))
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			entry := opensearch.PaymentLog{
				Timestamp: rw.startTime,
				TenantID:  GetTenantID(r.Context()),
				Provider:  extractProviderFromPath(r.URL.Path),
				Method:    r.Method,
				Endpoint:  r.URL.Path,
				RequestID: requestID,
				Request: opensearch.RequestLog{
					Body: opensearch.SanitizeForLog(string(requestBody)),
				},
				Response: opensearch.ResponseLog{
					StatusCode:       rw.statusCode,
					Body:             opensearch.SanitizeForLog(rw.body.String()),
					ProcessingTimeMs: time.Since(rw.startTime).Milliseconds(),
				},
			}

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = osLogger.LogPaymentRequest(ctx, entry)
			}()
		})
	}
}

func isPaymentEndpoint(path string) bool {
	return strings.Contains(path, "/payments/") ||
		strings.Contains(path, "/subscriptions") ||
		strings.Contains(path, "/webhooks/")
}

// extractProviderFromPath pulls the provider segment out of payment and
// webhook paths, e.g. /v1/payments/vipps/checkout or /webhooks/stripe.
func extractProviderFromPath(path string) string {
	for _, prefix := range []string{"/v1/payments/", "/webhooks/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			if idx := strings.Index(rest, "/"); idx != -1 {
				rest = rest[:idx]
			}
			switch rest {
			case "vipps", "stripe", "card":
				return rest
			}
		}
	}
	if strings.Contains(path, "/subscriptions") {
		return "stripe"
	}
	return "unknown"
}

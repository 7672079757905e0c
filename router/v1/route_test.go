package v1

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mekvam/paygate/handler"
	"github.com/mekvam/paygate/infra/config"
	"github.com/mekvam/paygate/infra/crypto"
	"github.com/mekvam/paygate/infra/store"
	"github.com/mekvam/paygate/provider"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	payments, err := store.NewPaymentStore(s.DB())
	require.NoError(t, err)

	configs, err := config.NewPaymentConfigStore(s.DB(), crypto.NewVault("test-master-key"))
	require.NoError(t, err)

	gateways := provider.NewGatewayService(configs, provider.NewRegistry(), "http://localhost")
	validate := validator.New()

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		Routes(r, Handlers{
			Payment:      handler.NewPaymentHandler(gateways, payments, validate),
			Config:       handler.NewConfigHandler(configs, validate),
			Subscription: handler.NewSubscriptionHandler(gateways, payments, validate),
		})
	})
	return r
}

func TestRoutesDispatch(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/v1/payments/config"},
		{"POST", "/v1/payments/config"},
		{"DELETE", "/v1/payments/config/vipps"},
		{"PUT", "/v1/payments/config/vipps/toggle"},
		{"POST", "/v1/payments/config/vipps/toggle"},
		{"POST", "/v1/payments/config/vipps/test"},
		{"GET", "/v1/payments/available"},
		{"POST", "/v1/payments/vipps/checkout"},
		{"GET", "/v1/payments/vipps/pay-1"},
		{"POST", "/v1/payments/vipps/pay-1/capture"},
		{"POST", "/v1/payments/vipps/pay-1/cancel"},
		{"POST", "/v1/subscriptions"},
		{"PUT", "/v1/subscriptions/sub-1"},
		{"DELETE", "/v1/subscriptions/sub-1"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			assert.True(t, router.Match(rctx, tt.method, tt.path), "route should be registered")
		})
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/v1/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

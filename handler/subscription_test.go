package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mekvam/paygate/infra/config"
	"github.com/mekvam/paygate/infra/crypto"
	"github.com/mekvam/paygate/infra/store"
	"github.com/mekvam/paygate/provider"
)

// stubSubscriptionGateway extends the payment stub with recurring billing
type stubSubscriptionGateway struct {
	stubGateway
	lastRequest provider.SubscriptionRequest
	cancelled   string
}

func (g *stubSubscriptionGateway) CreateSubscription(ctx context.Context, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	g.lastRequest = req
	return &provider.SubscriptionResult{
		ExternalID: "sub_1",
		CustomerID: "cus_1",
		RawStatus:  "active",
		Status:     provider.SubActive,
	}, nil
}

func (g *stubSubscriptionGateway) UpdateSubscription(ctx context.Context, externalID string, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	g.lastRequest = req
	return &provider.SubscriptionResult{ExternalID: externalID, Status: provider.SubActive}, nil
}

func (g *stubSubscriptionGateway) CancelSubscription(ctx context.Context, externalID string) (*provider.SubscriptionResult, error) {
	g.cancelled = externalID
	return &provider.SubscriptionResult{ExternalID: externalID, Status: provider.SubCancelled}, nil
}

func newSubscriptionFixture(t *testing.T, gateway provider.PaymentGateway) *SubscriptionHandler {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	payments, err := store.NewPaymentStore(s.DB())
	require.NoError(t, err)

	configs, err := config.NewPaymentConfigStore(s.DB(), crypto.NewVault("test-master-key"))
	require.NoError(t, err)

	_, err = configs.Upsert(config.UpsertParams{
		TenantID:       "tenant-1",
		Provider:       provider.NameStripe,
		Enabled:        true,
		RawCredentials: []byte(`{"secretKey":"sk_test_123"}`),
	})
	require.NoError(t, err)

	registry := provider.NewRegistry()
	registry.Register(provider.NameStripe, func(cfg provider.GatewayConfig) (provider.PaymentGateway, error) {
		return gateway, nil
	})

	gateways := provider.NewGatewayService(configs, registry, "https://pay.example.com")
	return NewSubscriptionHandler(gateways, payments, validator.New())
}

func TestCreateSubscription(t *testing.T) {
	gateway := &stubSubscriptionGateway{}
	h := newSubscriptionFixture(t, gateway)

	body := `{"customerEmail":"payer@example.com","priceId":"price_1","trialDays":14}`
	w := httptest.NewRecorder()
	h.CreateSubscription(w, tenantRequest("POST", "/v1/subscriptions", "tenant-1", body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "tenant-1", gateway.lastRequest.TenantID)
	assert.Equal(t, "price_1", gateway.lastRequest.PriceID)
	assert.Equal(t, int64(14), gateway.lastRequest.TrialDays)
	assert.Contains(t, w.Body.String(), "sub_1")
}

func TestCreateSubscription_Validation(t *testing.T) {
	h := newSubscriptionFixture(t, &stubSubscriptionGateway{})

	tests := []struct {
		name string
		body string
	}{
		{"missing price", `{"customerEmail":"payer@example.com"}`},
		{"bad email", `{"customerEmail":"not-an-email","priceId":"price_1"}`},
		{"negative trial", `{"priceId":"price_1","trialDays":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.CreateSubscription(w, tenantRequest("POST", "/v1/subscriptions", "tenant-1", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateSubscription_ProviderWithoutSubscriptions(t *testing.T) {
	// A gateway without the recurring-billing extension is rejected up front
	h := newSubscriptionFixture(t, &stubGateway{})

	w := httptest.NewRecorder()
	h.CreateSubscription(w, tenantRequest("POST", "/v1/subscriptions", "tenant-1", `{"priceId":"price_1"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSubscription_StripeNotConfigured(t *testing.T) {
	h := newSubscriptionFixture(t, &stubSubscriptionGateway{})

	w := httptest.NewRecorder()
	h.CreateSubscription(w, tenantRequest("POST", "/v1/subscriptions", "tenant-2", `{"priceId":"price_1"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelSubscription(t *testing.T) {
	gateway := &stubSubscriptionGateway{}
	h := newSubscriptionFixture(t, gateway)

	req := tenantRequest("DELETE", "/v1/subscriptions/sub_1", "tenant-1", "")
	req = withURLParam(req, "subscriptionID", "sub_1")
	w := httptest.NewRecorder()
	h.CancelSubscription(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sub_1", gateway.cancelled)
}

func TestUpdateSubscription_MissingID(t *testing.T) {
	h := newSubscriptionFixture(t, &stubSubscriptionGateway{})

	w := httptest.NewRecorder()
	h.UpdateSubscription(w, tenantRequest("PUT", "/v1/subscriptions/", "tenant-1", `{"priceId":"price_2"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

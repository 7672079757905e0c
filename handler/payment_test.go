package handler

import (
	"context"
	"encoding/json"
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

// stubGateway stands in for a live provider so handler flows can run without
// network access.
type stubGateway struct {
	initiateErr error
	captureErr  error
	cancelErr   error
	lastAmount  float64
}

func (g *stubGateway) InitiatePayment(ctx context.Context, req provider.InitiateRequest) (*provider.InitiateResponse, error) {
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	g.lastAmount = req.Amount
	return &provider.InitiateResponse{
		ExternalID:  "stub-order-1",
		RedirectURL: "https://provider.example/pay/stub-order-1",
		RawResponse: `{"orderId":"stub-order-1"}`,
	}, nil
}

func (g *stubGateway) GetPaymentDetails(ctx context.Context, externalID string) (*provider.PaymentDetails, error) {
	return &provider.PaymentDetails{
		ExternalID: externalID,
		RawStatus:  "RESERVE",
		Status:     provider.StatusCompleted,
	}, nil
}

func (g *stubGateway) CapturePayment(ctx context.Context, externalID string, amount float64, description string) (*provider.ProviderResult, error) {
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	g.lastAmount = amount
	return &provider.ProviderResult{ExternalID: externalID, Message: "captured"}, nil
}

func (g *stubGateway) CancelPayment(ctx context.Context, externalID string, description string) (*provider.ProviderResult, error) {
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	return &provider.ProviderResult{ExternalID: externalID, Message: "refunded"}, nil
}

func (g *stubGateway) TestConnection(ctx context.Context) error { return nil }

type paymentFixture struct {
	handler  *PaymentHandler
	payments *store.PaymentStore
	gateway  *stubGateway
}

func newPaymentFixture(t *testing.T) *paymentFixture {
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
		Provider:       "vipps",
		Enabled:        true,
		TestMode:       true,
		RawCredentials: []byte(`{"clientId":"id","clientSecret":"secret","subscriptionKey":"key","merchantSerialNumber":"123456"}`),
	})
	require.NoError(t, err)

	gateway := &stubGateway{}
	registry := provider.NewRegistry()
	registry.Register("vipps", func(cfg provider.GatewayConfig) (provider.PaymentGateway, error) {
		return gateway, nil
	})

	gateways := provider.NewGatewayService(configs, registry, "https://pay.example.com")

	return &paymentFixture{
		handler:  NewPaymentHandler(gateways, payments, validator.New()),
		payments: payments,
		gateway:  gateway,
	}
}

func (f *paymentFixture) checkout(t *testing.T, tenantID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := tenantRequest("POST", "/v1/payments/vipps/checkout", tenantID, body)
	w := httptest.NewRecorder()
	f.handler.Checkout(w, withURLParam(req, "provider", "vipps"))
	return w
}

func TestCheckout(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.checkout(t, "tenant-1", `{"amount":99.50,"currency":"nok","description":"Order 42"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			PaymentID   string `json:"paymentId"`
			ExternalID  string `json:"externalId"`
			RedirectURL string `json:"redirectUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.PaymentID)
	assert.Equal(t, "stub-order-1", resp.Data.ExternalID)
	assert.NotEmpty(t, resp.Data.RedirectURL)

	payment, err := f.payments.GetPaymentByExternalID("vipps", "stub-order-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", payment.TenantID)
	assert.Equal(t, provider.StatusPending, payment.Status)
	assert.Equal(t, "NOK", payment.Currency, "currency is normalized before persisting")
	assert.Equal(t, provider.TypeOrder, payment.Type, "payment type defaults to order")
}

func TestCheckout_Validation(t *testing.T) {
	f := newPaymentFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"zero amount", `{"amount":0,"currency":"NOK"}`},
		{"negative amount", `{"amount":-5,"currency":"NOK"}`},
		{"missing currency", `{"amount":10}`},
		{"bad currency length", `{"amount":10,"currency":"NORWAY"}`},
		{"malformed body", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.checkout(t, "tenant-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCheckout_ProviderNotConfigured(t *testing.T) {
	f := newPaymentFixture(t)

	// tenant-2 has no vipps configuration
	w := f.checkout(t, "tenant-2", `{"amount":10,"currency":"NOK"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_NotSupportedOperation(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.initiateErr = provider.ErrNotSupported

	w := f.checkout(t, "tenant-1", `{"amount":10,"currency":"NOK"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_ProviderFailure(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.initiateErr = assert.AnError

	w := f.checkout(t, "tenant-1", `{"amount":10,"currency":"NOK"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetPayment(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.checkout(t, "tenant-1", `{"amount":99.50,"currency":"NOK"}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := tenantRequest("GET", "/v1/payments/vipps/stub-order-1", "tenant-1", "")
	req = withURLParam(req, "provider", "vipps")
	req = withURLParam(req, "paymentID", "stub-order-1")
	w = httptest.NewRecorder()
	f.handler.GetPayment(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"providerStatus"`)
}

func TestGetPayment_TenantIsolation(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.checkout(t, "tenant-1", `{"amount":99.50,"currency":"NOK"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Another tenant asking for the same payment gets a plain not-found
	req := tenantRequest("GET", "/v1/payments/vipps/stub-order-1", "tenant-2", "")
	req = withURLParam(req, "provider", "vipps")
	req = withURLParam(req, "paymentID", "stub-order-1")
	w = httptest.NewRecorder()
	f.handler.GetPayment(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCapture(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.checkout(t, "tenant-1", `{"amount":99.50,"currency":"NOK"}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := tenantRequest("POST", "/v1/payments/vipps/stub-order-1/capture", "tenant-1", `{}`)
	req = withURLParam(req, "provider", "vipps")
	req = withURLParam(req, "paymentID", "stub-order-1")
	w = httptest.NewRecorder()
	f.handler.Capture(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 99.50, f.gateway.lastAmount, "an empty capture takes the full amount")

	payment, err := f.payments.GetPaymentByExternalID("vipps", "stub-order-1")
	require.NoError(t, err)
	assert.Equal(t, provider.StatusCompleted, payment.Status)
	assert.NotNil(t, payment.PaidAt)
}

func TestCancel_AfterCapture(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.checkout(t, "tenant-1", `{"amount":99.50,"currency":"NOK"}`)
	require.Equal(t, http.StatusOK, w.Code)

	captureReq := tenantRequest("POST", "/v1/payments/vipps/stub-order-1/capture", "tenant-1", `{}`)
	captureReq = withURLParam(captureReq, "provider", "vipps")
	captureReq = withURLParam(captureReq, "paymentID", "stub-order-1")
	w = httptest.NewRecorder()
	f.handler.Capture(w, captureReq)
	require.Equal(t, http.StatusOK, w.Code)

	cancelReq := tenantRequest("POST", "/v1/payments/vipps/stub-order-1/cancel", "tenant-1", `{"description":"customer return"}`)
	cancelReq = withURLParam(cancelReq, "provider", "vipps")
	cancelReq = withURLParam(cancelReq, "paymentID", "stub-order-1")
	w = httptest.NewRecorder()
	f.handler.Cancel(w, cancelReq)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payment, err := f.payments.GetPaymentByExternalID("vipps", "stub-order-1")
	require.NoError(t, err)
	assert.Equal(t, provider.StatusRefunded, payment.Status)
}

func TestCapture_UnknownPayment(t *testing.T) {
	f := newPaymentFixture(t)

	req := tenantRequest("POST", "/v1/payments/vipps/missing/capture", "tenant-1", `{}`)
	req = withURLParam(req, "provider", "vipps")
	req = withURLParam(req, "paymentID", "missing")
	w := httptest.NewRecorder()
	f.handler.Capture(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

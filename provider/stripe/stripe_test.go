package stripe

import (
	"encoding/json"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"github.com/mekvam/paygate/provider"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		expectError bool
	}{
		{"valid", `{"secretKey":"sk_test_123","publishableKey":"pk_test_123"}`, false},
		{"secret key only", `{"secretKey":"sk_test_123"}`, false},
		{"missing secret key", `{"publishableKey":"pk_test_123"}`, true},
		{"malformed json", `{not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway, err := New(provider.GatewayConfig{Credentials: json.RawMessage(tt.raw)})
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if gateway == nil {
				t.Fatal("New() returned nil gateway")
			}
		})
	}
}

func TestNew_ImplementsSubscriptionGateway(t *testing.T) {
	gateway, err := New(provider.GatewayConfig{
		Credentials: json.RawMessage(`{"secretKey":"sk_test_123"}`),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := gateway.(provider.SubscriptionGateway); !ok {
		t.Fatal("gateway does not implement SubscriptionGateway")
	}
}

func TestMapIntentStatus(t *testing.T) {
	tests := []struct {
		status   stripe.PaymentIntentStatus
		expected provider.PaymentStatus
	}{
		{stripe.PaymentIntentStatusSucceeded, provider.StatusCompleted},
		{stripe.PaymentIntentStatusCanceled, provider.StatusFailed},
		{stripe.PaymentIntentStatusRequiresPaymentMethod, provider.StatusPending},
		{stripe.PaymentIntentStatusRequiresAction, provider.StatusPending},
		{stripe.PaymentIntentStatusRequiresCapture, provider.StatusPending},
		{stripe.PaymentIntentStatusProcessing, provider.StatusPending},
		{"", provider.StatusPending},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := MapIntentStatus(tt.status); got != tt.expected {
				t.Errorf("MapIntentStatus(%q) = %s, want %s", tt.status, got, tt.expected)
			}
		})
	}
}

func TestVerifyWebhook_BadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	if _, err := VerifyWebhook(payload, "t=1,v1=deadbeef", "whsec_test"); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestRawJSON_NilResponse(t *testing.T) {
	if got := rawJSON(nil); got != "" {
		t.Errorf("rawJSON(nil) = %q, want empty", got)
	}
}

package card

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mekvam/paygate/provider"
)

func newTestGateway(t *testing.T) provider.PaymentGateway {
	t.Helper()
	gateway, err := New(provider.GatewayConfig{
		Credentials: json.RawMessage(`{"terminalId":"t-1","merchantId":"m-1"}`),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return gateway
}

func TestNew_RejectsEmptyCredentials(t *testing.T) {
	if _, err := New(provider.GatewayConfig{Credentials: json.RawMessage(`{}`)}); err == nil {
		t.Fatal("expected error for empty credential map")
	}
	if _, err := New(provider.GatewayConfig{Credentials: json.RawMessage(`{broken`)}); err == nil {
		t.Fatal("expected error for malformed credentials")
	}
}

func TestPaymentOperationsNotSupported(t *testing.T) {
	gateway := newTestGateway(t)
	ctx := context.Background()

	_, err := gateway.InitiatePayment(ctx, provider.InitiateRequest{Amount: 10})
	if !errors.Is(err, provider.ErrNotSupported) {
		t.Errorf("InitiatePayment error = %v, want ErrNotSupported", err)
	}

	_, err = gateway.GetPaymentDetails(ctx, "x")
	if !errors.Is(err, provider.ErrNotSupported) {
		t.Errorf("GetPaymentDetails error = %v, want ErrNotSupported", err)
	}

	_, err = gateway.CapturePayment(ctx, "x", 10, "")
	if !errors.Is(err, provider.ErrNotSupported) {
		t.Errorf("CapturePayment error = %v, want ErrNotSupported", err)
	}

	_, err = gateway.CancelPayment(ctx, "x", "")
	if !errors.Is(err, provider.ErrNotSupported) {
		t.Errorf("CancelPayment error = %v, want ErrNotSupported", err)
	}
}

func TestTestConnection(t *testing.T) {
	gateway := newTestGateway(t)
	if err := gateway.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection() error: %v", err)
	}
}

package vipps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mekvam/paygate/provider"
)

var testCreds = provider.VippsCredentials{
	ClientID:             "client-id",
	ClientSecret:         "client-secret",
	SubscriptionKey:      "sub-key",
	MerchantSerialNumber: "123456",
}

func newTokenTestServer(t *testing.T, calls *atomic.Int64, expiresIn string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != endpointAccessToken {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("client_id") != "client-id" ||
			r.Header.Get("client_secret") != "client-secret" ||
			r.Header.Get("Ocp-Apim-Subscription-Key") != "sub-key" {
			t.Error("missing credential headers on token request")
		}
		n := calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token_type":   "Bearer",
			"expires_in":   expiresIn,
			"access_token": "token-" + string(rune('0'+n)),
		})
	}))
}

func TestTokenSource_CachesFreshToken(t *testing.T) {
	var calls atomic.Int64
	server := newTokenTestServer(t, &calls, "3600")
	defer server.Close()

	gw := newGateway(testCreds, "123456", server.URL, "")

	first, err := gw.tokens.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken() error: %v", err)
	}
	second, err := gw.tokens.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken() error: %v", err)
	}

	if first != second {
		t.Errorf("expected cached token, got %q then %q", first, second)
	}
	if calls.Load() != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls.Load())
	}
}

func TestTokenSource_RefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int64
	server := newTokenTestServer(t, &calls, "3600")
	defer server.Close()

	gw := newGateway(testCreds, "123456", server.URL, "")

	first, err := gw.tokens.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken() error: %v", err)
	}

	// Force the cached token past its expiry
	gw.tokens.mu.Lock()
	gw.tokens.expiry = time.Now().Add(-time.Second)
	gw.tokens.mu.Unlock()

	second, err := gw.tokens.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken() error: %v", err)
	}

	if first == second {
		t.Error("expected a fresh token after expiry")
	}
	if calls.Load() != 2 {
		t.Errorf("token endpoint called %d times, want 2", calls.Load())
	}
}

func TestTokenSource_DefaultTTLOnBadExpiresIn(t *testing.T) {
	var calls atomic.Int64
	server := newTokenTestServer(t, &calls, "not-a-number")
	defer server.Close()

	gw := newGateway(testCreds, "123456", server.URL, "")

	if _, err := gw.tokens.GetAccessToken(context.Background()); err != nil {
		t.Fatalf("GetAccessToken() error: %v", err)
	}

	gw.tokens.mu.Lock()
	remaining := time.Until(gw.tokens.expiry)
	gw.tokens.mu.Unlock()

	// Default TTL of 3600s minus the safety margin
	if remaining < 55*time.Minute || remaining > time.Hour {
		t.Errorf("unexpected token TTL %v", remaining)
	}
}

func TestTokenSource_ErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	gw := newGateway(testCreds, "123456", server.URL, "")

	if _, err := gw.tokens.GetAccessToken(context.Background()); err == nil {
		t.Fatal("expected error from token endpoint failure")
	}
}

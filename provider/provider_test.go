package provider

import (
	"encoding/json"
	"testing"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   float64
		expected int64
	}{
		{99.50, 9950},
		{0.01, 1},
		{100, 10000},
		{0, 0},
		{19.99, 1999},
		{0.29, 29}, // 0.29*100 is 28.999... in float64; truncation would give 28
		{249.90, 24990},
	}

	for _, tt := range tests {
		if got := MinorUnits(tt.amount); got != tt.expected {
			t.Errorf("MinorUnits(%v) = %d, want %d", tt.amount, got, tt.expected)
		}
	}
}

func TestMajorUnits(t *testing.T) {
	if got := MajorUnits(9950); got != 99.50 {
		t.Errorf("MajorUnits(9950) = %v, want 99.50", got)
	}
	if got := MajorUnits(0); got != 0 {
		t.Errorf("MajorUnits(0) = %v, want 0", got)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"nok", "NOK"},
		{" usd ", "USD"},
		{"EUR", "EUR"},
	}

	for _, tt := range tests {
		if got := NormalizeCurrency(tt.in); got != tt.expected {
			t.Errorf("NormalizeCurrency(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestValidateRawCredentials(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		raw         string
		expectError bool
	}{
		{
			name:     "valid vipps",
			provider: NameVipps,
			raw:      `{"clientId":"id","clientSecret":"secret","subscriptionKey":"key","merchantSerialNumber":"123456"}`,
		},
		{
			name:        "vipps missing serial",
			provider:    NameVipps,
			raw:         `{"clientId":"id","clientSecret":"secret","subscriptionKey":"key"}`,
			expectError: true,
		},
		{
			name:        "vipps missing secret",
			provider:    NameVipps,
			raw:         `{"clientId":"id","subscriptionKey":"key","merchantSerialNumber":"123456"}`,
			expectError: true,
		},
		{
			name:     "valid stripe",
			provider: NameStripe,
			raw:      `{"secretKey":"sk_test_123"}`,
		},
		{
			name:        "stripe missing secret key",
			provider:    NameStripe,
			raw:         `{"publishableKey":"pk_test_123"}`,
			expectError: true,
		},
		{
			name:     "valid card",
			provider: NameCard,
			raw:      `{"terminalId":"t-1","merchantId":"m-1"}`,
		},
		{
			name:        "empty card map",
			provider:    NameCard,
			raw:         `{}`,
			expectError: true,
		},
		{
			name:        "unknown provider",
			provider:    "paypal",
			raw:         `{"anything":"x"}`,
			expectError: true,
		},
		{
			name:        "malformed json",
			provider:    NameVipps,
			raw:         `{not json`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRawCredentials(tt.provider, json.RawMessage(tt.raw))
			if tt.expectError && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMerchantSerialFromRaw(t *testing.T) {
	raw := json.RawMessage(`{"clientId":"id","merchantSerialNumber":"654321"}`)
	if got := MerchantSerialFromRaw(raw); got != "654321" {
		t.Errorf("MerchantSerialFromRaw = %q, want 654321", got)
	}
	if got := MerchantSerialFromRaw(json.RawMessage(`{broken`)); got != "" {
		t.Errorf("MerchantSerialFromRaw on bad json = %q, want empty", got)
	}
}

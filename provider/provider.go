package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// PaymentStatus is the canonical provider-agnostic payment state
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusRefunded  PaymentStatus = "refunded"
)

// OrderStatus is the canonical order state driven by payment transitions
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// PaymentType classifies what a payment is for
type PaymentType string

const (
	TypeOrder      PaymentType = "order"
	TypePTSession  PaymentType = "pt_session"
	TypeMembership PaymentType = "membership"
	TypeClass      PaymentType = "class"
)

// SubscriptionStatus is the canonical recurring-subscription state
type SubscriptionStatus string

const (
	SubTrial     SubscriptionStatus = "TRIAL"
	SubActive    SubscriptionStatus = "ACTIVE"
	SubPastDue   SubscriptionStatus = "PAST_DUE"
	SubCancelled SubscriptionStatus = "CANCELLED"
	SubSuspended SubscriptionStatus = "SUSPENDED"
)

// Supported provider names
const (
	NameVipps  = "vipps"
	NameStripe = "stripe"
	NameCard   = "card"
)

// ErrNotSupported is returned by gateways for operations the provider cannot
// perform (e.g. initiating a payment through the stored-credential card provider).
var ErrNotSupported = errors.New("operation not supported by this provider")

// Payment represents one attempted movement of money
type Payment struct {
	ID               string        `json:"id"`
	TenantID         string        `json:"tenantId"`
	UserID           string        `json:"userId,omitempty"`
	OrderID          string        `json:"orderId,omitempty"`
	Amount           float64       `json:"amount"`
	Currency         string        `json:"currency"`
	Type             PaymentType   `json:"type"`
	Provider         string        `json:"provider"`
	Method           string        `json:"method,omitempty"`
	Status           PaymentStatus `json:"status"`
	Description      string        `json:"description,omitempty"`
	ExternalID       string        `json:"externalId"`
	ProviderResponse string        `json:"-"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// VippsCredentials is the credential set for the Vipps eCom API
type VippsCredentials struct {
	ClientID             string `json:"clientId"`
	ClientSecret         string `json:"clientSecret"`
	SubscriptionKey      string `json:"subscriptionKey"`
	MerchantSerialNumber string `json:"merchantSerialNumber"`
}

// Validate checks that all required Vipps fields are present
func (c VippsCredentials) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("vipps: clientId is required")
	case c.ClientSecret == "":
		return errors.New("vipps: clientSecret is required")
	case c.SubscriptionKey == "":
		return errors.New("vipps: subscriptionKey is required")
	case c.MerchantSerialNumber == "":
		return errors.New("vipps: merchantSerialNumber is required")
	}
	return nil
}

// StripeCredentials is the credential set for the Stripe API
type StripeCredentials struct {
	SecretKey      string `json:"secretKey"`
	PublishableKey string `json:"publishableKey"`
	WebhookSecret  string `json:"webhookSecret,omitempty"`
}

// Validate checks that all required Stripe fields are present
func (c StripeCredentials) Validate() error {
	if c.SecretKey == "" {
		return errors.New("stripe: secretKey is required")
	}
	return nil
}

// CardCredentials is an arbitrary key/value credential map for the generic
// stored-credential card provider
type CardCredentials map[string]string

// Validate checks the card credential map is non-empty
func (c CardCredentials) Validate() error {
	if len(c) == 0 {
		return errors.New("card: credentials cannot be empty")
	}
	return nil
}

// ValidateRawCredentials decodes and validates raw credentials for the named
// provider. The supported shapes are a closed set; unknown providers fail.
func ValidateRawCredentials(providerName string, raw json.RawMessage) error {
	switch providerName {
	case NameVipps:
		var c VippsCredentials
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("vipps: invalid credentials: %w", err)
		}
		return c.Validate()
	case NameStripe:
		var c StripeCredentials
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("stripe: invalid credentials: %w", err)
		}
		return c.Validate()
	case NameCard:
		var c CardCredentials
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("card: invalid credentials: %w", err)
		}
		return c.Validate()
	default:
		return fmt.Errorf("unknown payment provider '%s'", providerName)
	}
}

// MerchantSerialFromRaw extracts the Vipps merchant serial number from raw
// credentials. The serial is stored in the clear alongside the encrypted blob
// because Vipps requires it as a plain request header.
func MerchantSerialFromRaw(raw json.RawMessage) string {
	var c VippsCredentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return ""
	}
	return c.MerchantSerialNumber
}

// GatewayConfig carries everything a factory needs to build a gateway value
// for one tenant. Credentials are the decrypted raw JSON for the provider.
type GatewayConfig struct {
	TenantID             string
	TestMode             bool
	Credentials          json.RawMessage
	MerchantSerialNumber string
	BaseURL              string
}

// InitiateRequest contains all information required to start a payment
type InitiateRequest struct {
	TenantID       string      `json:"tenantId"`
	UserID         string      `json:"userId,omitempty"`
	OrderID        string      `json:"orderId,omitempty"`
	Amount         float64     `json:"amount" validate:"required,gt=0"`
	Currency       string      `json:"currency" validate:"required,len=3"`
	Type           PaymentType `json:"type,omitempty"`
	PayerReference string      `json:"payerReference,omitempty"`
	Description    string      `json:"description,omitempty"`
}

// InitiateResponse is the result of starting a payment on the provider side
type InitiateResponse struct {
	ExternalID   string `json:"externalId"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RawResponse  string `json:"-"`
}

// PaymentDetails is a read-only snapshot of the provider-side payment state
type PaymentDetails struct {
	ExternalID  string        `json:"externalId"`
	RawStatus   string        `json:"rawStatus"`
	Status      PaymentStatus `json:"status"`
	Amount      float64       `json:"amount,omitempty"`
	RawResponse string        `json:"-"`
}

// ProviderResult is the raw outcome of a capture or cancel call
type ProviderResult struct {
	ExternalID  string `json:"externalId"`
	Message     string `json:"message,omitempty"`
	RawResponse string `json:"-"`
}

// PaymentGateway is the uniform contract every payment provider implements.
// Gateways are short-lived values built per request from decrypted tenant
// configuration; they hold no cross-tenant state.
type PaymentGateway interface {
	// InitiatePayment creates the provider-side payment and returns the
	// external identifier plus a redirect target or equivalent handle
	InitiatePayment(ctx context.Context, request InitiateRequest) (*InitiateResponse, error)

	// GetPaymentDetails queries the current provider-side payment state
	GetPaymentDetails(ctx context.Context, externalID string) (*PaymentDetails, error)

	// CapturePayment captures/charges a reserved payment
	CapturePayment(ctx context.Context, externalID string, amount float64, description string) (*ProviderResult, error)

	// CancelPayment reverses a payment (void or refund depending on state)
	CancelPayment(ctx context.Context, externalID string, description string) (*ProviderResult, error)

	// TestConnection exercises the live provider credentials without
	// persisting a real charge
	TestConnection(ctx context.Context) error
}

// GatewayFactory builds a gateway value from tenant configuration
type GatewayFactory func(cfg GatewayConfig) (PaymentGateway, error)

// MinorUnits converts a decimal major-unit amount to the provider's minor
// unit. Rounding, not truncation: 99.50 NOK must become 9950 øre even when
// the float sits just below the boundary.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// MajorUnits converts a minor-unit amount back to decimal major units
func MajorUnits(minor int64) float64 {
	return float64(minor) / 100
}

// NormalizeCurrency uppercases a currency code for storage
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

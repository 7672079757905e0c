package provider

import "context"

// SubscriptionRequest contains all information required to start or change a
// recurring subscription.
type SubscriptionRequest struct {
	TenantID      string `json:"tenantId"`
	UserID        string `json:"userId,omitempty"`
	CustomerID    string `json:"customerId,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty" validate:"omitempty,email"`
	PriceID       string `json:"priceId" validate:"required"`
	TrialDays     int64  `json:"trialDays,omitempty" validate:"gte=0"`
}

// SubscriptionResult is the provider-side subscription state after an operation
type SubscriptionResult struct {
	ExternalID  string             `json:"externalId"`
	CustomerID  string             `json:"customerId,omitempty"`
	RawStatus   string             `json:"rawStatus"`
	Status      SubscriptionStatus `json:"status"`
	RawResponse string             `json:"-"`
}

// SubscriptionGateway is the optional recurring-billing extension of
// PaymentGateway. Handlers type-assert for it; providers without recurring
// support simply do not implement it.
type SubscriptionGateway interface {
	CreateSubscription(ctx context.Context, request SubscriptionRequest) (*SubscriptionResult, error)
	UpdateSubscription(ctx context.Context, externalID string, request SubscriptionRequest) (*SubscriptionResult, error)
	CancelSubscription(ctx context.Context, externalID string) (*SubscriptionResult, error)
}

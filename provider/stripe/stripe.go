package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mekvam/paygate/provider"
)

// connection test amount in minor units, high enough to clear Stripe's
// per-currency minimum; the intent is cancelled before confirmation so no
// charge ever happens.
const testIntentAmount = 500

// StripeGateway implements provider.PaymentGateway and
// provider.SubscriptionGateway on top of the official Stripe SDK. Each
// gateway value wraps its own client.API bound to one tenant's secret key;
// the SDK's global key is never set.
type StripeGateway struct {
	api   *client.API
	creds provider.StripeCredentials
}

// New creates a Stripe gateway from tenant configuration
func New(cfg provider.GatewayConfig) (provider.PaymentGateway, error) {
	var creds provider.StripeCredentials
	if err := json.Unmarshal(cfg.Credentials, &creds); err != nil {
		return nil, fmt.Errorf("stripe: invalid credentials: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	api := &client.API{}
	api.Init(creds.SecretKey, nil)

	return &StripeGateway{api: api, creds: creds}, nil
}

// InitiatePayment creates a PaymentIntent and returns its client secret for
// the frontend confirmation flow. The intent id is the external identifier
// all later webhooks correlate on.
func (g *StripeGateway) InitiatePayment(ctx context.Context, request provider.InitiateRequest) (*provider.InitiateResponse, error) {
	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(provider.MinorUnits(request.Amount)),
		Currency:    stripe.String(strings.ToLower(request.Currency)),
		Description: stripe.String(request.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("tenant_id", request.TenantID)
	if request.OrderID != "" {
		params.AddMetadata("order_id", request.OrderID)
	}
	if request.UserID != "" {
		params.AddMetadata("user_id", request.UserID)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent failed: %w", err)
	}

	return &provider.InitiateResponse{
		ExternalID:   pi.ID,
		ClientSecret: pi.ClientSecret,
		RawResponse:  rawJSON(pi.LastResponse),
	}, nil
}

// GetPaymentDetails queries the provider-side payment state
func (g *StripeGateway) GetPaymentDetails(ctx context.Context, externalID string) (*provider.PaymentDetails, error) {
	pi, err := g.api.PaymentIntents.Get(externalID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve payment intent failed: %w", err)
	}

	return &provider.PaymentDetails{
		ExternalID:  pi.ID,
		RawStatus:   string(pi.Status),
		Status:      MapIntentStatus(pi.Status),
		Amount:      provider.MajorUnits(pi.Amount),
		RawResponse: rawJSON(pi.LastResponse),
	}, nil
}

// CapturePayment captures a previously authorized PaymentIntent
func (g *StripeGateway) CapturePayment(ctx context.Context, externalID string, amount float64, description string) (*provider.ProviderResult, error) {
	params := &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	}
	if amount > 0 {
		params.AmountToCapture = stripe.Int64(provider.MinorUnits(amount))
	}

	pi, err := g.api.PaymentIntents.Capture(externalID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: capture failed: %w", err)
	}

	return &provider.ProviderResult{
		ExternalID:  pi.ID,
		Message:     string(pi.Status),
		RawResponse: rawJSON(pi.LastResponse),
	}, nil
}

// CancelPayment reverses a payment. A succeeded intent is refunded; an intent
// that has not been confirmed yet is cancelled outright.
func (g *StripeGateway) CancelPayment(ctx context.Context, externalID string, description string) (*provider.ProviderResult, error) {
	pi, err := g.api.PaymentIntents.Get(externalID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve payment intent failed: %w", err)
	}

	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		refund, err := g.api.Refunds.New(&stripe.RefundParams{
			Params:        stripe.Params{Context: ctx},
			PaymentIntent: stripe.String(externalID),
		})
		if err != nil {
			return nil, fmt.Errorf("stripe: refund failed: %w", err)
		}
		return &provider.ProviderResult{
			ExternalID:  externalID,
			Message:     string(refund.Status),
			RawResponse: rawJSON(refund.LastResponse),
		}, nil
	}

	cancelled, err := g.api.PaymentIntents.Cancel(externalID, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: cancel failed: %w", err)
	}

	return &provider.ProviderResult{
		ExternalID:  cancelled.ID,
		Message:     string(cancelled.Status),
		RawResponse: rawJSON(cancelled.LastResponse),
	}, nil
}

// TestConnection creates a minimal uncaptured PaymentIntent and immediately
// cancels it, proving the secret key is live without charging anyone.
func (g *StripeGateway) TestConnection(ctx context.Context) error {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(testIntentAmount),
		Currency: stripe.String("nok"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("connection_test", "true")

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return fmt.Errorf("stripe: connection test failed: %w", err)
	}

	_, err = g.api.PaymentIntents.Cancel(pi.ID, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return fmt.Errorf("stripe: connection test cleanup failed: %w", err)
	}
	return nil
}

// CreateSubscription starts a recurring subscription for a price. When no
// customer id is supplied a customer is created from the payer email first.
func (g *StripeGateway) CreateSubscription(ctx context.Context, request provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	customerID := request.CustomerID
	if customerID == "" {
		customerParams := &stripe.CustomerParams{
			Params: stripe.Params{Context: ctx},
			Email:  stripe.String(request.CustomerEmail),
		}
		customerParams.AddMetadata("tenant_id", request.TenantID)
		if request.UserID != "" {
			customerParams.AddMetadata("user_id", request.UserID)
		}

		customer, err := g.api.Customers.New(customerParams)
		if err != nil {
			return nil, fmt.Errorf("stripe: create customer failed: %w", err)
		}
		customerID = customer.ID
	}

	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(request.PriceID)},
		},
	}
	if request.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(request.TrialDays)
	}
	params.AddMetadata("tenant_id", request.TenantID)

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create subscription failed: %w", err)
	}

	return subscriptionResult(sub), nil
}

// UpdateSubscription swaps the subscription onto a new price with prorations
func (g *StripeGateway) UpdateSubscription(ctx context.Context, externalID string, request provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	sub, err := g.api.Subscriptions.Get(externalID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve subscription failed: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe: subscription %s has no items", externalID)
	}

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(request.PriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}

	updated, err := g.api.Subscriptions.Update(externalID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: update subscription failed: %w", err)
	}

	return subscriptionResult(updated), nil
}

// CancelSubscription cancels a subscription immediately
func (g *StripeGateway) CancelSubscription(ctx context.Context, externalID string) (*provider.SubscriptionResult, error) {
	sub, err := g.api.Subscriptions.Cancel(externalID, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: cancel subscription failed: %w", err)
	}

	return subscriptionResult(sub), nil
}

func subscriptionResult(sub *stripe.Subscription) *provider.SubscriptionResult {
	result := &provider.SubscriptionResult{
		ExternalID:  sub.ID,
		RawStatus:   string(sub.Status),
		Status:      provider.MapStripeSubscriptionStatus(string(sub.Status)),
		RawResponse: rawJSON(sub.LastResponse),
	}
	if sub.Customer != nil {
		result.CustomerID = sub.Customer.ID
	}
	return result
}

// MapIntentStatus translates a PaymentIntent status into the canonical
// payment status. Only succeeded and canceled are conclusive; every
// intermediate state (requires_action, processing, requires_capture) stays
// pending until a webhook settles it.
func MapIntentStatus(status stripe.PaymentIntentStatus) provider.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return provider.StatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

// VerifyWebhook checks the Stripe-Signature header against the endpoint
// secret and returns the verified event. API version mismatches are
// tolerated so an SDK upgrade does not break live webhook ingestion.
func VerifyWebhook(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func rawJSON(resp *stripe.APIResponse) string {
	if resp == nil {
		return ""
	}
	return string(resp.RawJSON)
}

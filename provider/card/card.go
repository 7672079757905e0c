package card

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mekvam/paygate/provider"
)

// CardGateway is the generic stored-credential card provider. Tenants park
// terminal or acquirer credentials here as an opaque key/value map; no live
// API sits behind it, so every payment operation reports not supported. The
// configuration machinery (encryption at rest, enable/disable, listing) still
// applies in full.
type CardGateway struct {
	creds provider.CardCredentials
}

// New creates a card gateway from tenant configuration
func New(cfg provider.GatewayConfig) (provider.PaymentGateway, error) {
	var creds provider.CardCredentials
	if err := json.Unmarshal(cfg.Credentials, &creds); err != nil {
		return nil, fmt.Errorf("card: invalid credentials: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &CardGateway{creds: creds}, nil
}

func (g *CardGateway) InitiatePayment(ctx context.Context, request provider.InitiateRequest) (*provider.InitiateResponse, error) {
	return nil, fmt.Errorf("card: %w", provider.ErrNotSupported)
}

func (g *CardGateway) GetPaymentDetails(ctx context.Context, externalID string) (*provider.PaymentDetails, error) {
	return nil, fmt.Errorf("card: %w", provider.ErrNotSupported)
}

func (g *CardGateway) CapturePayment(ctx context.Context, externalID string, amount float64, description string) (*provider.ProviderResult, error) {
	return nil, fmt.Errorf("card: %w", provider.ErrNotSupported)
}

func (g *CardGateway) CancelPayment(ctx context.Context, externalID string, description string) (*provider.ProviderResult, error) {
	return nil, fmt.Errorf("card: %w", provider.ErrNotSupported)
}

// TestConnection only proves the stored credential map decrypts and parses;
// there is no remote endpoint to call.
func (g *CardGateway) TestConnection(ctx context.Context) error {
	return g.creds.Validate()
}

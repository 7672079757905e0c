package vipps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mekvam/paygate/provider"
)

const (
	// API URLs
	apiProductionURL = "https://api.vipps.no"
	apiSandboxURL    = "https://apitest.vipps.no"

	// API Endpoints
	endpointAccessToken = "/accesstoken/get"
	endpointPayments    = "/ecomm/v2/payments"
	endpointDetails     = "/ecomm/v2/payments/%s/details" // %s is the order id
	endpointCapture     = "/ecomm/v2/payments/%s/capture"
	endpointRefund      = "/ecomm/v2/payments/%s/refund"

	defaultTimeout = 30 * time.Second
)

// VippsGateway implements provider.PaymentGateway against the Vipps eCom v2
// API. A gateway value is built per request from one tenant's credentials;
// the token cache inside it is therefore scoped to that tenant.
type VippsGateway struct {
	creds          provider.VippsCredentials
	merchantSerial string
	callbackPrefix string
	client         *provider.HTTPClient
	tokens         *tokenSource
}

// New creates a Vipps gateway from tenant configuration
func New(cfg provider.GatewayConfig) (provider.PaymentGateway, error) {
	var creds provider.VippsCredentials
	if err := json.Unmarshal(cfg.Credentials, &creds); err != nil {
		return nil, fmt.Errorf("vipps: invalid credentials: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	// The registry stores the serial in the clear too; prefer it so a rotation
	// of the encrypted blob cannot desync the request headers.
	merchantSerial := cfg.MerchantSerialNumber
	if merchantSerial == "" {
		merchantSerial = creds.MerchantSerialNumber
	}

	baseURL := apiProductionURL
	if cfg.TestMode {
		baseURL = apiSandboxURL
	}

	return newGateway(creds, merchantSerial, baseURL, cfg.BaseURL), nil
}

func newGateway(creds provider.VippsCredentials, merchantSerial, baseURL, callbackPrefix string) *VippsGateway {
	client := provider.NewHTTPClient(&provider.HTTPClientConfig{
		BaseURL: baseURL,
		Timeout: defaultTimeout,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
	})

	return &VippsGateway{
		creds:          creds,
		merchantSerial: merchantSerial,
		callbackPrefix: callbackPrefix,
		client:         client,
		tokens:         newTokenSource(client, creds),
	}
}

type merchantInfo struct {
	MerchantSerialNumber string `json:"merchantSerialNumber"`
	CallbackPrefix       string `json:"callbackPrefix,omitempty"`
	FallBack             string `json:"fallBack,omitempty"`
}

type transactionBody struct {
	OrderID         string `json:"orderId,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	TransactionText string `json:"transactionText,omitempty"`
}

type initiateBody struct {
	CustomerInfo struct {
		MobileNumber string `json:"mobileNumber,omitempty"`
	} `json:"customerInfo"`
	MerchantInfo merchantInfo    `json:"merchantInfo"`
	Transaction  transactionBody `json:"transaction"`
}

type initiateResponse struct {
	OrderID string `json:"orderId"`
	URL     string `json:"url"`
}

type transactionInfo struct {
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type detailsResponse struct {
	OrderID               string           `json:"orderId"`
	TransactionInfo       *transactionInfo `json:"transactionInfo"`
	TransactionLogHistory []struct {
		Operation        string `json:"operation"`
		Amount           int64  `json:"amount"`
		OperationSuccess bool   `json:"operationSuccess"`
	} `json:"transactionLogHistory"`
}

// InitiatePayment creates a Vipps payment and returns the landing page URL
// the payer is redirected to. The generated order id is the external
// identifier all later webhooks correlate on.
func (g *VippsGateway) InitiatePayment(ctx context.Context, request provider.InitiateRequest) (*provider.InitiateResponse, error) {
	orderID := newOrderID()

	body := initiateBody{
		MerchantInfo: merchantInfo{
			MerchantSerialNumber: g.merchantSerial,
			CallbackPrefix:       g.callbackPrefix + "/webhooks/vipps",
			FallBack:             g.callbackPrefix + "/payments/fallback?orderId=" + orderID,
		},
		Transaction: transactionBody{
			OrderID:         orderID,
			Amount:          provider.MinorUnits(request.Amount),
			TransactionText: request.Description,
		},
	}
	body.CustomerInfo.MobileNumber = request.PayerReference

	resp, err := g.send(ctx, "POST", endpointPayments, body)
	if err != nil {
		return nil, fmt.Errorf("vipps: initiate payment failed: %w", err)
	}

	var initResp initiateResponse
	if err := g.client.ParseJSONResponse(resp, &initResp); err != nil {
		return nil, fmt.Errorf("vipps: failed to parse initiate response: %w", err)
	}

	return &provider.InitiateResponse{
		ExternalID:  initResp.OrderID,
		RedirectURL: initResp.URL,
		RawResponse: string(resp.Body),
	}, nil
}

// GetPaymentDetails queries the provider-side payment state
func (g *VippsGateway) GetPaymentDetails(ctx context.Context, externalID string) (*provider.PaymentDetails, error) {
	resp, err := g.send(ctx, "GET", fmt.Sprintf(endpointDetails, externalID), nil)
	if err != nil {
		return nil, fmt.Errorf("vipps: payment details failed: %w", err)
	}

	var details detailsResponse
	if err := g.client.ParseJSONResponse(resp, &details); err != nil {
		return nil, fmt.Errorf("vipps: failed to parse details response: %w", err)
	}

	rawStatus := ""
	var amount int64
	if details.TransactionInfo != nil {
		rawStatus = details.TransactionInfo.Status
		amount = details.TransactionInfo.Amount
	} else if len(details.TransactionLogHistory) > 0 {
		// History is newest first; the latest operation is the current state.
		rawStatus = details.TransactionLogHistory[0].Operation
		amount = details.TransactionLogHistory[0].Amount
	}

	return &provider.PaymentDetails{
		ExternalID:  externalID,
		RawStatus:   rawStatus,
		Status:      provider.MapVippsStatus(rawStatus),
		Amount:      provider.MajorUnits(amount),
		RawResponse: string(resp.Body),
	}, nil
}

// CapturePayment captures a reserved payment
func (g *VippsGateway) CapturePayment(ctx context.Context, externalID string, amount float64, description string) (*provider.ProviderResult, error) {
	body := struct {
		MerchantInfo merchantInfo    `json:"merchantInfo"`
		Transaction  transactionBody `json:"transaction"`
	}{
		MerchantInfo: merchantInfo{MerchantSerialNumber: g.merchantSerial},
		Transaction: transactionBody{
			Amount:          provider.MinorUnits(amount),
			TransactionText: description,
		},
	}

	resp, err := g.send(ctx, "POST", fmt.Sprintf(endpointCapture, externalID), body)
	if err != nil {
		return nil, fmt.Errorf("vipps: capture failed: %w", err)
	}

	return &provider.ProviderResult{
		ExternalID:  externalID,
		Message:     "captured",
		RawResponse: string(resp.Body),
	}, nil
}

// CancelPayment reverses a payment through the refund endpoint
func (g *VippsGateway) CancelPayment(ctx context.Context, externalID string, description string) (*provider.ProviderResult, error) {
	body := struct {
		MerchantInfo merchantInfo    `json:"merchantInfo"`
		Transaction  transactionBody `json:"transaction"`
	}{
		MerchantInfo: merchantInfo{MerchantSerialNumber: g.merchantSerial},
		Transaction:  transactionBody{TransactionText: description},
	}

	resp, err := g.send(ctx, "POST", fmt.Sprintf(endpointRefund, externalID), body)
	if err != nil {
		return nil, fmt.Errorf("vipps: refund failed: %w", err)
	}

	return &provider.ProviderResult{
		ExternalID:  externalID,
		Message:     "refunded",
		RawResponse: string(resp.Body),
	}, nil
}

// TestConnection fetches an access token to verify the stored credentials
// without creating any payment.
func (g *VippsGateway) TestConnection(ctx context.Context) error {
	_, err := g.tokens.GetAccessToken(ctx)
	return err
}

// send attaches the bearer token and the Vipps request headers
func (g *VippsGateway) send(ctx context.Context, method, endpoint string, body any) (*provider.HTTPResponse, error) {
	token, err := g.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	return g.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   method,
		Endpoint: endpoint,
		Headers: map[string]string{
			"Authorization":             "Bearer " + token,
			"Ocp-Apim-Subscription-Key": g.creds.SubscriptionKey,
			"Merchant-Serial-Number":    g.merchantSerial,
			"X-Request-Id":              uuid.New().String(),
		},
		Body: body,
	})
}

// newOrderID generates a merchant order id within the 30 character limit
// Vipps imposes.
func newOrderID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[:30]
}

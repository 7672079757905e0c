package vipps

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mekvam/paygate/provider"
)

// tokenSafetyMargin is subtracted from the provider TTL so a token is never
// presented right at its expiry edge on a slow network.
const tokenSafetyMargin = 60 * time.Second

const defaultTokenTTL = 3600 // seconds, per the Vipps access token docs

// tokenResponse is the Vipps access token endpoint payload. Vipps returns
// the numeric fields as strings.
type tokenResponse struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   string `json:"expires_in"`
	AccessToken string `json:"access_token"`
}

// tokenSource caches one short-lived bearer token per gateway value. The
// (token, expiry) pair is read and written under the mutex so a refresh in
// progress can never hand out a half-written token, and freshness is
// re-evaluated on every call.
type tokenSource struct {
	client          *provider.HTTPClient
	clientID        string
	clientSecret    string
	subscriptionKey string

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newTokenSource(client *provider.HTTPClient, creds provider.VippsCredentials) *tokenSource {
	return &tokenSource{
		client:          client,
		clientID:        creds.ClientID,
		clientSecret:    creds.ClientSecret,
		subscriptionKey: creds.SubscriptionKey,
	}
}

// GetAccessToken returns the cached token while it is fresh, otherwise
// fetches a new one from the token endpoint. Endpoint failures propagate to
// the caller; this layer does not retry.
func (t *tokenSource) GetAccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expiry) {
		return t.token, nil
	}

	resp, err := t.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointAccessToken,
		Headers: map[string]string{
			"client_id":                 t.clientID,
			"client_secret":             t.clientSecret,
			"Ocp-Apim-Subscription-Key": t.subscriptionKey,
		},
	})
	if err != nil {
		return "", fmt.Errorf("vipps: access token request failed: %w", err)
	}

	var tr tokenResponse
	if err := t.client.ParseJSONResponse(resp, &tr); err != nil {
		return "", fmt.Errorf("vipps: failed to parse access token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("vipps: access token response contained no token")
	}

	ttlSeconds, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || ttlSeconds <= 0 {
		ttlSeconds = defaultTokenTTL
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl > tokenSafetyMargin {
		ttl -= tokenSafetyMargin
	}

	t.token = tr.AccessToken
	t.expiry = time.Now().Add(ttl)

	return t.token, nil
}

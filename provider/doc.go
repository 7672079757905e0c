// Package provider defines the provider-agnostic payment domain: the
// canonical Payment entity and its status machine, credential shapes per
// provider, the PaymentGateway contract every integration implements, and
// the registry gateways announce themselves to.
//
// Gateways are short-lived values. The GatewayService builds one per request
// from the tenant's decrypted configuration and throws it away afterwards;
// the only state a gateway may cache internally is its own access token.
//
// Subpackages implement the integrations:
//   - vipps: Vipps eCom v2 with a cached short-lived access token
//   - stripe: PaymentIntents and subscriptions through the official SDK
//   - card: stored terminal credentials with no live API behind them
package provider

// Package paygate is a multi-tenant payment integration service that puts
// Vipps, Stripe and stored card-terminal credentials behind one standardized
// API. Each tenant configures its own provider credentials, which are
// encrypted at rest; payments, webhook reconciliation and the audit trail are
// handled uniformly across providers.
//
// # Architecture
//
// The request flow follows this pattern:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│  Tenant Apps    │◄──►│    Paygate      │◄──►│   Payment       │
//	│                 │    │   (this API)    │    │   Providers     │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// Providers register themselves through side-effect imports:
//
//	import (
//	    _ "github.com/mekvam/paygate/provider/stripe"
//	    _ "github.com/mekvam/paygate/provider/vipps"
//	)
//
// A gateway is built per request from the calling tenant's decrypted
// configuration, so no provider credentials ever live in process-wide state.
//
// # Payment lifecycle
//
// Every payment holds one of four canonical statuses: pending, completed,
// failed, refunded. Completed and failed are reachable only from pending;
// refunded reverses a pending or completed payment. Terminal states never
// move backward, which makes webhook retries and capture/webhook races safe
// to apply blindly.
//
// # Webhooks
//
// Providers notify POST /webhooks/{provider}. Vipps notifications carry the
// per-tenant webhook secret in the Authorization header; Stripe events are
// verified against the tenant's endpoint signing secret. Both converge on the
// same conditional state transition, so duplicate deliveries are no-ops.
package paygate

// Package handler contains the HTTP handlers for the payment API: checkout
// and payment lifecycle, tenant provider configuration, subscriptions,
// webhook reconciliation and health.
//
// Handlers orchestrate the payment store and the per-request gateway; all
// state transitions funnel through one shared reconciliation path so webhook
// deliveries and explicit capture/cancel calls can never double-apply.
package handler

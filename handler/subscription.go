package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mekvam/paygate/infra/logger"
	"github.com/mekvam/paygate/infra/middle"
	"github.com/mekvam/paygate/infra/response"
	"github.com/mekvam/paygate/infra/store"
	"github.com/mekvam/paygate/provider"
)

// SubscriptionHandler handles the recurring-billing lifecycle. Subscriptions
// are provider-side objects; only the audit trail is persisted locally.
type SubscriptionHandler struct {
	gateways *provider.GatewayService
	payments *store.PaymentStore
	validate *validator.Validate
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(gateways *provider.GatewayService, payments *store.PaymentStore, validate *validator.Validate) *SubscriptionHandler {
	return &SubscriptionHandler{
		gateways: gateways,
		payments: payments,
		validate: validate,
	}
}

// CreateSubscription starts a recurring subscription
func (h *SubscriptionHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())

	var req provider.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.TenantID = tenantID

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	gateway, err := h.subscriptionGateway(w, tenantID)
	if err != nil {
		return
	}

	result, err := gateway.CreateSubscription(ctx, req)
	if err != nil {
		logger.Error("Subscription creation failed", err, logger.LogContext{TenantID: tenantID, Provider: provider.NameStripe})
		response.Error(w, http.StatusBadGateway, "Subscription creation failed", err)
		return
	}

	h.audit(tenantID, req.UserID, "subscription.created",
		"subscription "+result.ExternalID+" created with status "+string(result.Status))

	response.Success(w, http.StatusOK, "Subscription created", result)
}

// UpdateSubscription moves a subscription onto a different price
func (h *SubscriptionHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())
	subscriptionID := chi.URLParam(r, "subscriptionID")
	if subscriptionID == "" {
		response.Error(w, http.StatusBadRequest, "Missing subscription ID", nil)
		return
	}

	var req provider.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.TenantID = tenantID

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	gateway, err := h.subscriptionGateway(w, tenantID)
	if err != nil {
		return
	}

	result, err := gateway.UpdateSubscription(ctx, subscriptionID, req)
	if err != nil {
		logger.Error("Subscription update failed", err, logger.LogContext{TenantID: tenantID, Provider: provider.NameStripe})
		response.Error(w, http.StatusBadGateway, "Subscription update failed", err)
		return
	}

	h.audit(tenantID, req.UserID, "subscription.updated",
		"subscription "+subscriptionID+" moved to price "+req.PriceID)

	response.Success(w, http.StatusOK, "Subscription updated", result)
}

// CancelSubscription cancels a subscription immediately
func (h *SubscriptionHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())
	subscriptionID := chi.URLParam(r, "subscriptionID")
	if subscriptionID == "" {
		response.Error(w, http.StatusBadRequest, "Missing subscription ID", nil)
		return
	}

	gateway, err := h.subscriptionGateway(w, tenantID)
	if err != nil {
		return
	}

	result, err := gateway.CancelSubscription(ctx, subscriptionID)
	if err != nil {
		logger.Error("Subscription cancellation failed", err, logger.LogContext{TenantID: tenantID, Provider: provider.NameStripe})
		response.Error(w, http.StatusBadGateway, "Subscription cancellation failed", err)
		return
	}

	h.audit(tenantID, "", "subscription.cancelled", "subscription "+subscriptionID+" cancelled")

	response.Success(w, http.StatusOK, "Subscription cancelled", result)
}

// subscriptionGateway resolves the tenant's Stripe gateway and asserts the
// recurring-billing extension. On failure an error response has been written.
func (h *SubscriptionHandler) subscriptionGateway(w http.ResponseWriter, tenantID string) (provider.SubscriptionGateway, error) {
	gateway, _, err := h.gateways.Gateway(tenantID, provider.NameStripe)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotConfigured) {
			response.Error(w, http.StatusBadRequest, "Stripe is not available for this tenant", nil)
			return nil, err
		}
		logger.Error("Failed to build subscription gateway", err, logger.LogContext{TenantID: tenantID, Provider: provider.NameStripe})
		response.Error(w, http.StatusInternalServerError, "Subscription provider unavailable", err)
		return nil, err
	}

	subGateway, ok := gateway.(provider.SubscriptionGateway)
	if !ok {
		response.Error(w, http.StatusBadRequest, "Provider does not support subscriptions", nil)
		return nil, provider.ErrNotSupported
	}

	return subGateway, nil
}

func (h *SubscriptionHandler) audit(tenantID, userID, action, description string) {
	if err := h.payments.RecordAudit(tenantID, userID, action, description); err != nil {
		logger.Warn("Audit write failed", logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"action": action, "error": err.Error()},
		})
	}
}

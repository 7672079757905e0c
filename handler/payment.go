package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

const providerTimeout = 30 * time.Second

// PaymentHandler handles checkout, status, capture and cancel requests
type PaymentHandler struct {
	gateways *provider.GatewayService
	payments *store.PaymentStore
	validate *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(gateways *provider.GatewayService, payments *store.PaymentStore, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		gateways: gateways,
		payments: payments,
		validate: validate,
	}
}

type captureRequest struct {
	Amount      float64 `json:"amount" validate:"gte=0"`
	Description string  `json:"description,omitempty"`
}

type cancelRequest struct {
	Description string `json:"description,omitempty"`
}

// Checkout starts a payment with the tenant's configured provider and
// persists the pending payment record.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())
	providerName := chi.URLParam(r, "provider")

	var req provider.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.TenantID = tenantID
	req.Currency = provider.NormalizeCurrency(req.Currency)
	if req.Type == "" {
		req.Type = provider.TypeOrder
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	gateway, _, err := h.gateways.Gateway(tenantID, providerName)
	if err != nil {
		h.writeGatewayError(w, tenantID, providerName, err)
		return
	}

	resp, err := gateway.InitiatePayment(ctx, req)
	if err != nil {
		if errors.Is(err, provider.ErrNotSupported) {
			response.Error(w, http.StatusBadRequest, "Operation not supported by provider", err)
			return
		}
		logger.Error("Payment initiation failed", err, logger.LogContext{TenantID: tenantID, Provider: providerName})
		response.Error(w, http.StatusBadGateway, "Payment initiation failed", err)
		return
	}

	payment := &provider.Payment{
		TenantID:         tenantID,
		UserID:           req.UserID,
		OrderID:          req.OrderID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Type:             req.Type,
		Provider:         providerName,
		Status:           provider.StatusPending,
		Description:      req.Description,
		ExternalID:       resp.ExternalID,
		ProviderResponse: resp.RawResponse,
	}
	if err := h.payments.CreatePayment(payment); err != nil {
		logger.Error("Failed to persist payment", err, logger.LogContext{TenantID: tenantID, Provider: providerName})
		response.Error(w, http.StatusInternalServerError, "Failed to persist payment", err)
		return
	}

	h.audit(tenantID, req.UserID, "payment.initiated",
		fmt.Sprintf("%s payment %s for %.2f %s", providerName, resp.ExternalID, req.Amount, req.Currency))

	logger.Info("Payment initiated", logger.LogContext{
		TenantID: tenantID,
		Provider: providerName,
		Fields:   map[string]any{"external_id": resp.ExternalID, "amount": req.Amount},
	})

	response.Success(w, http.StatusOK, "Payment initiated", map[string]any{
		"paymentId":    payment.ID,
		"externalId":   resp.ExternalID,
		"redirectUrl":  resp.RedirectURL,
		"clientSecret": resp.ClientSecret,
	})
}

// GetPayment returns the stored payment record together with the live
// provider-side state.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())
	providerName := chi.URLParam(r, "provider")
	paymentID := chi.URLParam(r, "paymentID")

	payment, err := h.requireTenantPayment(w, tenantID, providerName, paymentID)
	if err != nil {
		return
	}

	data := map[string]any{"payment": payment}

	gateway, _, err := h.gateways.Gateway(tenantID, providerName)
	if err == nil {
		if details, err := gateway.GetPaymentDetails(ctx, payment.ExternalID); err == nil {
			data["providerStatus"] = details
		} else if !errors.Is(err, provider.ErrNotSupported) {
			logger.Warn("Provider status query failed", logger.LogContext{
				TenantID: tenantID,
				Provider: providerName,
				Fields:   map[string]any{"external_id": payment.ExternalID, "error": err.Error()},
			})
		}
	}

	response.Success(w, http.StatusOK, "Payment retrieved", data)
}

// Capture captures a reserved payment and marks it completed
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())
	providerName := chi.URLParam(r, "provider")
	paymentID := chi.URLParam(r, "paymentID")

	payment, err := h.requireTenantPayment(w, tenantID, providerName, paymentID)
	if err != nil {
		return
	}

	var req captureRequest
	if r.Body != nil {
		// Body is optional; an empty capture takes the full amount
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	amount := req.Amount
	if amount == 0 {
		amount = payment.Amount
	}

	gateway, _, err := h.gateways.Gateway(tenantID, providerName)
	if err != nil {
		h.writeGatewayError(w, tenantID, providerName, err)
		return
	}

	result, err := gateway.CapturePayment(ctx, payment.ExternalID, amount, req.Description)
	if err != nil {
		if errors.Is(err, provider.ErrNotSupported) {
			response.Error(w, http.StatusBadRequest, "Operation not supported by provider", err)
			return
		}
		logger.Error("Capture failed", err, logger.LogContext{TenantID: tenantID, Provider: providerName})
		response.Error(w, http.StatusBadGateway, "Capture failed", err)
		return
	}

	applied, updated, err := applyAndCascade(h.payments, providerName, payment.ExternalID, provider.StatusCompleted, result.RawResponse, "")
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to update payment", err)
		return
	}

	h.audit(tenantID, payment.UserID, "payment.captured",
		fmt.Sprintf("%s payment %s captured", providerName, payment.ExternalID))

	response.Success(w, http.StatusOK, "Payment captured", map[string]any{
		"payment": updated,
		"applied": applied,
	})
}

// Cancel reverses a payment (void when pending, refund when completed)
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())
	providerName := chi.URLParam(r, "provider")
	paymentID := chi.URLParam(r, "paymentID")

	payment, err := h.requireTenantPayment(w, tenantID, providerName, paymentID)
	if err != nil {
		return
	}

	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	gateway, _, err := h.gateways.Gateway(tenantID, providerName)
	if err != nil {
		h.writeGatewayError(w, tenantID, providerName, err)
		return
	}

	result, err := gateway.CancelPayment(ctx, payment.ExternalID, req.Description)
	if err != nil {
		if errors.Is(err, provider.ErrNotSupported) {
			response.Error(w, http.StatusBadRequest, "Operation not supported by provider", err)
			return
		}
		logger.Error("Cancel failed", err, logger.LogContext{TenantID: tenantID, Provider: providerName})
		response.Error(w, http.StatusBadGateway, "Cancel failed", err)
		return
	}

	applied, updated, err := applyAndCascade(h.payments, providerName, payment.ExternalID, provider.StatusRefunded, result.RawResponse, "")
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to update payment", err)
		return
	}

	h.audit(tenantID, payment.UserID, "payment.cancelled",
		fmt.Sprintf("%s payment %s cancelled", providerName, payment.ExternalID))

	response.Success(w, http.StatusOK, "Payment cancelled", map[string]any{
		"payment": updated,
		"applied": applied,
	})
}

// requireTenantPayment loads a payment and enforces tenant ownership. On any
// failure an error response has already been written.
func (h *PaymentHandler) requireTenantPayment(w http.ResponseWriter, tenantID, providerName, externalID string) (*provider.Payment, error) {
	if externalID == "" {
		response.Error(w, http.StatusBadRequest, "Missing payment ID", nil)
		return nil, errors.New("missing payment id")
	}

	payment, err := h.payments.GetPaymentByExternalID(providerName, externalID)
	if errors.Is(err, store.ErrPaymentNotFound) {
		response.Error(w, http.StatusNotFound, "Payment not found", nil)
		return nil, err
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load payment", err)
		return nil, err
	}
	if payment.TenantID != tenantID {
		// Do not leak that the payment exists for another tenant
		response.Error(w, http.StatusNotFound, "Payment not found", nil)
		return nil, errors.New("payment belongs to another tenant")
	}

	return payment, nil
}

func (h *PaymentHandler) writeGatewayError(w http.ResponseWriter, tenantID, providerName string, err error) {
	if errors.Is(err, provider.ErrProviderNotConfigured) {
		response.Error(w, http.StatusBadRequest, "Payment provider is not available for this tenant", nil)
		return
	}
	logger.Error("Failed to build payment gateway", err, logger.LogContext{TenantID: tenantID, Provider: providerName})
	response.Error(w, http.StatusInternalServerError, "Payment provider unavailable", err)
}

func (h *PaymentHandler) audit(tenantID, userID, action, description string) {
	if err := h.payments.RecordAudit(tenantID, userID, action, description); err != nil {
		logger.Warn("Audit write failed", logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"action": action, "error": err.Error()},
		})
	}
}

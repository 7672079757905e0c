package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mekvam/paygate/infra/config"
	"github.com/mekvam/paygate/infra/crypto"
	"github.com/mekvam/paygate/infra/logger"
	"github.com/mekvam/paygate/infra/response"
	"github.com/mekvam/paygate/infra/store"
	"github.com/mekvam/paygate/provider"
	stripegw "github.com/mekvam/paygate/provider/stripe"
)

// WebhookHandler reconciles asynchronous provider notifications against the
// payment store. Tenancy is resolved from the payment the notification
// correlates to, never from caller-supplied tenant identifiers, and each
// provider's notification is authenticated with that tenant's own secret.
type WebhookHandler struct {
	payments *store.PaymentStore
	configs  *config.PaymentConfigStore
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(payments *store.PaymentStore, configs *config.PaymentConfigStore) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		configs:  configs,
	}
}

type vippsNotification struct {
	OrderID         string `json:"orderId"`
	TransactionInfo struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	} `json:"transactionInfo"`
}

// VippsWebhook handles Vipps payment notifications. The shared secret issued
// at configuration time arrives in the Authorization header; it is checked
// against the owning tenant's stored secret after the payment resolves,
// because the tenant is not known until then.
func (h *WebhookHandler) VippsWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	var notification vippsNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid notification format", err)
		return
	}
	if notification.OrderID == "" {
		response.Error(w, http.StatusBadRequest, "Missing orderId", nil)
		return
	}

	payment, err := h.payments.GetPaymentByExternalID(provider.NameVipps, notification.OrderID)
	if errors.Is(err, store.ErrPaymentNotFound) {
		logger.Warn("Webhook for unknown payment", logger.LogContext{
			Provider: provider.NameVipps,
			Fields:   map[string]any{"order_id": notification.OrderID},
		})
		response.Error(w, http.StatusNotFound, "Unknown payment", nil)
		return
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load payment", err)
		return
	}

	cfg, err := h.configs.GetConfig(payment.TenantID, provider.NameVipps)
	if err != nil || cfg == nil {
		response.Error(w, http.StatusUnauthorized, "Webhook not authorized", nil)
		return
	}
	if !crypto.SecretEqual(r.Header.Get("Authorization"), cfg.WebhookSecret) {
		logger.Warn("Webhook secret mismatch", logger.LogContext{
			TenantID: payment.TenantID,
			Provider: provider.NameVipps,
			Fields:   map[string]any{"order_id": notification.OrderID},
		})
		response.Error(w, http.StatusUnauthorized, "Webhook not authorized", nil)
		return
	}

	target := provider.MapVippsStatus(notification.TransactionInfo.Status)
	if target == provider.StatusPending {
		// Nothing actionable in this notification; acknowledge so Vipps
		// stops retrying.
		response.Success(w, http.StatusOK, "Notification acknowledged", nil)
		return
	}

	errorMessage := ""
	if target == provider.StatusFailed {
		errorMessage = "payment " + notification.TransactionInfo.Status
	}

	applied, _, err := applyAndCascade(h.payments, provider.NameVipps, notification.OrderID, target, string(body), errorMessage)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to process notification", err)
		return
	}

	h.logOutcome(payment.TenantID, provider.NameVipps, notification.OrderID, target, applied)
	response.Success(w, http.StatusOK, "Notification processed", map[string]any{"applied": applied})
}

// stripeEnvelope is the untrusted shape parsed only to correlate the event
// with a stored payment; nothing from it is acted on before the signature
// check passes.
type stripeEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string `json:"id"`
			PaymentIntent    string `json:"payment_intent"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// StripeWebhook handles Stripe event notifications. Correlation runs on the
// untrusted payload first because the signing secret is per tenant and the
// tenant is only known once the payment is found; the signature is then
// verified against that tenant's secret before any state changes.
func (h *WebhookHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	var event stripeEnvelope
	if err := json.Unmarshal(body, &event); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid event format", err)
		return
	}

	var target provider.PaymentStatus
	var intentID, errorMessage string

	switch event.Type {
	case "payment_intent.succeeded":
		target = provider.StatusCompleted
		intentID = event.Data.Object.ID
	case "payment_intent.payment_failed":
		target = provider.StatusFailed
		intentID = event.Data.Object.ID
		if event.Data.Object.LastPaymentError != nil {
			errorMessage = event.Data.Object.LastPaymentError.Message
		}
	case "charge.refunded":
		target = provider.StatusRefunded
		intentID = event.Data.Object.PaymentIntent
	default:
		response.Success(w, http.StatusOK, "Event ignored", nil)
		return
	}

	if intentID == "" {
		response.Success(w, http.StatusOK, "Event carried no payment reference", nil)
		return
	}

	payment, err := h.payments.GetPaymentByExternalID(provider.NameStripe, intentID)
	if errors.Is(err, store.ErrPaymentNotFound) {
		// Likely an event for a payment created outside this service;
		// acknowledge so Stripe does not retry forever.
		logger.Warn("Webhook for unknown payment", logger.LogContext{
			Provider: provider.NameStripe,
			Fields:   map[string]any{"intent_id": intentID, "event": event.Type},
		})
		response.Success(w, http.StatusOK, "Unknown payment acknowledged", nil)
		return
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load payment", err)
		return
	}

	if err := h.verifyStripeSignature(payment.TenantID, body, r.Header.Get("Stripe-Signature")); err != nil {
		logger.Warn("Stripe signature verification failed", logger.LogContext{
			TenantID: payment.TenantID,
			Provider: provider.NameStripe,
			Fields:   map[string]any{"intent_id": intentID, "error": err.Error()},
		})
		response.Error(w, http.StatusBadRequest, "Invalid signature", nil)
		return
	}

	applied, _, err := applyAndCascade(h.payments, provider.NameStripe, intentID, target, string(body), errorMessage)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to process event", err)
		return
	}

	h.logOutcome(payment.TenantID, provider.NameStripe, intentID, target, applied)
	response.Success(w, http.StatusOK, "Event processed", map[string]any{"applied": applied})
}

// verifyStripeSignature checks the event signature against the tenant's
// endpoint secret. Tenants without a stored secret skip verification; the
// config surface warns about that at setup time.
func (h *WebhookHandler) verifyStripeSignature(tenantID string, body []byte, signatureHeader string) error {
	cfg, err := h.configs.GetConfig(tenantID, provider.NameStripe)
	if err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("no stripe configuration for tenant")
	}

	raw, err := h.configs.DecryptCredentials(cfg)
	if err != nil {
		return err
	}

	var creds provider.StripeCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return err
	}
	if creds.WebhookSecret == "" {
		logger.Warn("Stripe webhook secret not configured, skipping signature verification", logger.LogContext{
			TenantID: tenantID,
			Provider: provider.NameStripe,
		})
		return nil
	}

	_, err = stripegw.VerifyWebhook(body, signatureHeader, creds.WebhookSecret)
	return err
}

// logOutcome records an audit trail entry for every processed delivery, both
// applied transitions and acknowledged no-ops.
func (h *WebhookHandler) logOutcome(tenantID, providerName, externalID string, target provider.PaymentStatus, applied bool) {
	action := "payment." + string(target)
	detail := providerName + " payment " + externalID + " moved to " + string(target)
	if applied {
		logger.Info("Payment transition applied", logger.LogContext{
			TenantID: tenantID,
			Provider: providerName,
			Fields:   map[string]any{"external_id": externalID, "status": string(target)},
		})
	} else {
		action += ".ignored"
		detail = providerName + " payment " + externalID + " notification for " + string(target) + " ignored as duplicate or stale"
		logger.Info("Duplicate or stale notification ignored", logger.LogContext{
			TenantID: tenantID,
			Provider: providerName,
			Fields:   map[string]any{"external_id": externalID, "status": string(target)},
		})
	}

	if err := h.payments.RecordAudit(tenantID, "", action, detail); err != nil {
		logger.Warn("Audit write failed", logger.LogContext{
			TenantID: tenantID,
			Fields:   map[string]any{"error": err.Error()},
		})
	}
}

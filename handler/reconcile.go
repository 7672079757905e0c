package handler

import (
	"github.com/mekvam/paygate/infra/logger"
	"github.com/mekvam/paygate/infra/store"
	"github.com/mekvam/paygate/provider"
)

// applyAndCascade is the single reconciliation path for payment state. Both
// webhook deliveries and explicit capture/cancel calls run through it, so a
// capture raced by a webhook for the same payment applies exactly once.
// applied=false means the transition was a duplicate or would regress a
// terminal state; callers treat that as success.
func applyAndCascade(payments *store.PaymentStore, providerName, externalID string, target provider.PaymentStatus, rawPayload, errorMessage string) (bool, *provider.Payment, error) {
	applied, payment, err := payments.ApplyTransition(providerName, externalID, target, rawPayload, errorMessage)
	if err != nil {
		return false, nil, err
	}

	if applied && payment.OrderID != "" {
		if orderStatus, ok := provider.OrderStatusFor(target); ok {
			markPaid := target == provider.StatusCompleted
			if _, err := payments.CascadeOrderStatus(payment.OrderID, orderStatus, markPaid); err != nil {
				// The payment transition stands; the order catches up on the
				// next delivery or a manual reconciliation.
				logger.Error("Order cascade failed", err, logger.LogContext{
					TenantID: payment.TenantID,
					Provider: providerName,
					Fields:   map[string]any{"order_id": payment.OrderID},
				})
			}
		}
	}

	return applied, payment, nil
}

package provider

// Vipps transaction operations as they appear in webhook payloads and
// transaction log history entries.
const (
	VippsOpReserve = "RESERVE"
	VippsOpSale    = "SALE"
	VippsOpCancel  = "CANCEL"
	VippsOpVoid    = "VOID"
	VippsOpRefund  = "REFUND"
)

// MapVippsStatus translates a raw Vipps transaction status into the canonical
// payment status. Unknown statuses map to pending, never failed: a false
// FAILED would incorrectly cancel a live order, while a payment left pending
// is resolved by the next notification or a manual status query.
func MapVippsStatus(raw string) PaymentStatus {
	switch raw {
	case VippsOpReserve, VippsOpSale:
		return StatusCompleted
	case VippsOpCancel, VippsOpVoid:
		return StatusFailed
	case VippsOpRefund:
		return StatusRefunded
	default:
		return StatusPending
	}
}

// MapStripeSubscriptionStatus translates a raw Stripe subscription status
// into the canonical subscription status.
func MapStripeSubscriptionStatus(raw string) SubscriptionStatus {
	switch raw {
	case "trialing":
		return SubTrial
	case "active":
		return SubActive
	case "past_due":
		return SubPastDue
	case "canceled", "unpaid":
		return SubCancelled
	default:
		return SubSuspended
	}
}

// AllowedFrom returns the set of statuses a payment may hold immediately
// before moving to target. The state machine never moves backward; completed
// and failed are reachable only from pending, refunded reverses a payment
// that was pending (void) or completed (refund).
func AllowedFrom(target PaymentStatus) []PaymentStatus {
	switch target {
	case StatusCompleted:
		return []PaymentStatus{StatusPending}
	case StatusFailed:
		return []PaymentStatus{StatusPending}
	case StatusRefunded:
		return []PaymentStatus{StatusPending, StatusCompleted}
	default:
		return nil
	}
}

// TransitionAllowed reports whether moving from current to target is legal.
// Repeated and regressive transitions are not errors; the reconciler ignores
// them to tolerate provider retry storms.
func TransitionAllowed(current, target PaymentStatus) bool {
	for _, from := range AllowedFrom(target) {
		if current == from {
			return true
		}
	}
	return false
}

// OrderStatusFor maps a canonical payment status to the order status it
// cascades to. The bool is false for statuses that do not touch the order.
func OrderStatusFor(status PaymentStatus) (OrderStatus, bool) {
	switch status {
	case StatusCompleted:
		return OrderProcessing, true
	case StatusFailed:
		return OrderCancelled, true
	case StatusRefunded:
		return OrderRefunded, true
	default:
		return "", false
	}
}

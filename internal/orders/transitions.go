package orders

import (
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
)

// RecentHistoryLimit is how many status events the order detail view shows.
const RecentHistoryLimit = 5

var nextStatus = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPending:    enums.OrderStatusProcessing,
	enums.OrderStatusProcessing: enums.OrderStatusReady,
	enums.OrderStatusReady:      enums.OrderStatusDelivered,
}

// ValidateStatusTransition checks a fulfilment status change. Finalized orders
// only move when override is set (system admin corrections); any other source
// must follow the chain one step at a time or go to CANCELLED.
func ValidateStatusTransition(from, to enums.OrderStatus, override bool) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if from.IsFinal() {
		if override {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeFinalizedOrder, "order is finalized").
			WithDetails(map[string]any{"status": from})
	}
	if from == to {
		return nil
	}
	if to == enums.OrderStatusCancelled || nextStatus[from] == to {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

// ValidatePaymentTransition checks a payment status change. Repeating the
// current status is a no-op.
func ValidatePaymentTransition(from, to enums.PaymentStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	if from == to {
		return nil
	}
	allowed := false
	switch to {
	case enums.PaymentStatusDownpayment:
		allowed = from == enums.PaymentStatusPending
	case enums.PaymentStatusPaid:
		allowed = from == enums.PaymentStatusPending || from == enums.PaymentStatusDownpayment
	case enums.PaymentStatusRefunded:
		allowed = from == enums.PaymentStatusPaid
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeInvalidPaymentTransition, "payment status transition not allowed").
			WithDetails(map[string]any{"from": from, "to": to})
	}
	return nil
}

package enums

import "fmt"

// PaymentStatus tracks the money side of an order.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "PENDING"
	PaymentStatusDownpayment PaymentStatus = "DOWNPAYMENT"
	PaymentStatusPaid        PaymentStatus = "PAID"
	PaymentStatusRefunded    PaymentStatus = "REFUNDED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusDownpayment,
	PaymentStatusPaid,
	PaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// ReconciliationStatus tracks whether a gateway payment matched our books.
type ReconciliationStatus string

const (
	ReconciliationStatusPending    ReconciliationStatus = "PENDING"
	ReconciliationStatusReconciled ReconciliationStatus = "RECONCILED"
	ReconciliationStatusMismatch   ReconciliationStatus = "MISMATCH"
)

// CheckoutSessionStatus is the state of a grouped multi-organization checkout.
type CheckoutSessionStatus string

const (
	CheckoutSessionStatusPending CheckoutSessionStatus = "PENDING"
	CheckoutSessionStatusPaid    CheckoutSessionStatus = "PAID"
	CheckoutSessionStatusFailed  CheckoutSessionStatus = "FAILED"
	CheckoutSessionStatusExpired CheckoutSessionStatus = "EXPIRED"
)

// PaymentEventType names the gateway webhook events the processor understands.
type PaymentEventType string

const (
	PaymentEventCheckoutPaid  PaymentEventType = "checkout_session.payment.paid"
	PaymentEventPaymentFailed PaymentEventType = "payment.failed"
)

func (e PaymentEventType) IsValid() bool {
	return e == PaymentEventCheckoutPaid || e == PaymentEventPaymentFailed
}

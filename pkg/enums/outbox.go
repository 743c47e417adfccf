package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
	AggregateVoucher         OutboxAggregateType = "voucher"
	AggregateRefundRequest   OutboxAggregateType = "refund_request"
	AggregatePayoutInvoice   OutboxAggregateType = "payout_invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateCheckoutSession,
	AggregateVoucher,
	AggregateRefundRequest,
	AggregatePayoutInvoice,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain events written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order.created"
	EventOrderStatusChanged    OutboxEventType = "order.status_changed"
	EventOrderPaid             OutboxEventType = "order.paid"
	EventOrderCancelled        OutboxEventType = "order.cancelled"
	EventRefundVoucherIssued   OutboxEventType = "voucher.refund_issued"
	EventRefundRequested       OutboxEventType = "refund_request.created"
	EventRefundApproved        OutboxEventType = "refund_request.approved"
	EventRefundRejected        OutboxEventType = "refund_request.rejected"
	EventPayoutInvoiceCreated  OutboxEventType = "payout_invoice.created"
	EventPayoutInvoicePaid     OutboxEventType = "payout_invoice.paid"
	EventPayoutInvoiceReverted OutboxEventType = "payout_invoice.reverted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderPaid,
	EventOrderCancelled,
	EventRefundVoucherIssued,
	EventRefundRequested,
	EventRefundApproved,
	EventRefundRejected,
	EventPayoutInvoiceCreated,
	EventPayoutInvoicePaid,
	EventPayoutInvoiceReverted,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

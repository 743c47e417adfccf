package enums

import "fmt"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusReady      OrderStatus = "READY"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusReady,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFinal reports whether no further status changes are allowed without an override.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// CancellationReason is recorded on an order when it enters CANCELLED.
type CancellationReason string

const (
	CancellationReasonCustomerRequest CancellationReason = "CUSTOMER_REQUEST"
	CancellationReasonOutOfStock      CancellationReason = "OUT_OF_STOCK"
	CancellationReasonPaymentFailed   CancellationReason = "PAYMENT_FAILED"
	CancellationReasonSellerCancelled CancellationReason = "SELLER_CANCELLED"
	CancellationReasonRefundApproved  CancellationReason = "REFUND_APPROVED"
	CancellationReasonOther           CancellationReason = "OTHER"
)

var validCancellationReasons = []CancellationReason{
	CancellationReasonCustomerRequest,
	CancellationReasonOutOfStock,
	CancellationReasonPaymentFailed,
	CancellationReasonSellerCancelled,
	CancellationReasonRefundApproved,
	CancellationReasonOther,
}

func (r CancellationReason) IsValid() bool {
	for _, candidate := range validCancellationReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseCancellationReason(value string) (CancellationReason, error) {
	for _, candidate := range validCancellationReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancellation reason %q", value)
}

// CancellationInitiator records which party triggered a cancellation or refund.
type CancellationInitiator string

const (
	CancellationInitiatorCustomer CancellationInitiator = "CUSTOMER"
	CancellationInitiatorSeller   CancellationInitiator = "SELLER"
)

func (c CancellationInitiator) IsValid() bool {
	return c == CancellationInitiatorCustomer || c == CancellationInitiatorSeller
}

// InventoryType decides whether cancelling an order returns units to stock.
type InventoryType string

const (
	InventoryTypeStock    InventoryType = "STOCK"
	InventoryTypePreorder InventoryType = "PREORDER"
)

func (i InventoryType) IsValid() bool {
	return i == InventoryTypeStock || i == InventoryTypePreorder
}

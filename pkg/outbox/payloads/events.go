// Package payloads defines the data section of each outbox event.
package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/enums"
)

type OrderCreatedEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	OrganizationID    *uuid.UUID      `json:"organization_id,omitempty"`
	CheckoutSessionID *uuid.UUID      `json:"checkout_session_id,omitempty"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}

type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Override   bool              `json:"override,omitempty"`
}

type OrderPaidEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	PaymentID   string          `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paid_at"`
}

type OrderCancelledEvent struct {
	OrderID         uuid.UUID                   `json:"order_id"`
	OrderNumber     string                      `json:"order_number"`
	Reason          enums.CancellationReason    `json:"reason"`
	Initiator       enums.CancellationInitiator `json:"initiator"`
	RefundVoucherID *uuid.UUID                  `json:"refund_voucher_id,omitempty"`
}

type RefundVoucherIssuedEvent struct {
	VoucherID  uuid.UUID                   `json:"voucher_id"`
	Code       string                      `json:"code"`
	OrderID    uuid.UUID                   `json:"order_id"`
	Amount     decimal.Decimal             `json:"amount"`
	AssignedTo uuid.UUID                   `json:"assigned_to"`
	Initiator  enums.CancellationInitiator `json:"initiator"`
}

type RefundRequestEvent struct {
	RefundRequestID uuid.UUID                 `json:"refund_request_id"`
	OrderID         uuid.UUID                 `json:"order_id"`
	Status          enums.RefundRequestStatus `json:"status"`
	VoucherID       *uuid.UUID                `json:"voucher_id,omitempty"`
}

type PayoutInvoiceEvent struct {
	InvoiceID      uuid.UUID                 `json:"invoice_id"`
	InvoiceNumber  string                    `json:"invoice_number"`
	OrganizationID uuid.UUID                 `json:"organization_id"`
	Status         enums.PayoutInvoiceStatus `json:"status"`
	NetAmount      decimal.Decimal           `json:"net_amount"`
	Reason         string                    `json:"reason,omitempty"`
}

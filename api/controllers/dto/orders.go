package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// Order is the API representation of one organization's order.
type Order struct {
	ID                 uuid.UUID                 `json:"id"`
	OrderNumber        string                    `json:"order_number"`
	OrganizationID     *uuid.UUID                `json:"organization_id,omitempty"`
	CustomerID         uuid.UUID                 `json:"customer_id"`
	Customer           types.CustomerSnapshot    `json:"customer"`
	Status             enums.OrderStatus         `json:"status"`
	PaymentStatus      enums.PaymentStatus       `json:"payment_status"`
	CancellationReason *enums.CancellationReason `json:"cancellation_reason,omitempty"`
	SubtotalAmount     decimal.Decimal           `json:"subtotal_amount"`
	ShippingFee        decimal.Decimal           `json:"shipping_fee"`
	DiscountAmount     decimal.Decimal           `json:"discount_amount"`
	VoucherID          *uuid.UUID                `json:"voucher_id,omitempty"`
	TotalAmount        decimal.Decimal           `json:"total_amount"`
	ItemCount          int                       `json:"item_count"`
	CheckoutSessionID  *uuid.UUID                `json:"checkout_session_id,omitempty"`
	CheckoutExpiresAt  *time.Time                `json:"checkout_expires_at,omitempty"`
	PaidAt             *time.Time                `json:"paid_at,omitempty"`
	PayoutInvoiceID    *uuid.UUID                `json:"payout_invoice_id,omitempty"`
	OrderDate          time.Time                 `json:"order_date"`
	Items              []OrderItem               `json:"items,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

type OrderItem struct {
	ProductID     uuid.UUID           `json:"product_id"`
	ProductName   string              `json:"product_name"`
	InventoryType enums.InventoryType `json:"inventory_type"`
	Quantity      int                 `json:"quantity"`
	UnitPrice     decimal.Decimal     `json:"unit_price"`
	LineTotal     decimal.Decimal     `json:"line_total"`
}

type StatusEvent struct {
	ID            uuid.UUID           `json:"id"`
	FromStatus    *enums.OrderStatus  `json:"from_status,omitempty"`
	ToStatus      enums.OrderStatus   `json:"to_status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Note          *string             `json:"note,omitempty"`
	ActorID       *uuid.UUID          `json:"actor_id,omitempty"`
	ActorRole     string              `json:"actor_role"`
	CreatedAt     time.Time           `json:"created_at"`
}

type Payment struct {
	ID                   uuid.UUID                  `json:"id"`
	Amount               decimal.Decimal            `json:"amount"`
	PaymentStatus        enums.PaymentStatus        `json:"payment_status"`
	ReferenceNo          string                     `json:"reference_no"`
	ReconciliationStatus enums.ReconciliationStatus `json:"reconciliation_status"`
	StatusHistory        types.StatusHistory        `json:"status_history"`
	PaymentDate          time.Time                  `json:"payment_date"`
}

// OrderDetail bundles an order with its payments and recent history.
type OrderDetail struct {
	Order         Order         `json:"order"`
	Payments      []Payment     `json:"payments"`
	RecentHistory []StatusEvent `json:"recent_history"`
}

type OrderList struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type CheckoutSession struct {
	ID          uuid.UUID                   `json:"id"`
	Reference   string                      `json:"reference"`
	TotalAmount decimal.Decimal             `json:"total_amount"`
	Status      enums.CheckoutSessionStatus `json:"status"`
	ExpiresAt   *time.Time                  `json:"expires_at,omitempty"`
}

func NewOrder(o models.Order) Order {
	out := Order{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		OrganizationID:     o.OrganizationID,
		CustomerID:         o.CustomerID,
		Customer:           o.CustomerInfo,
		Status:             o.Status,
		PaymentStatus:      o.PaymentStatus,
		CancellationReason: o.CancellationReason,
		SubtotalAmount:     o.SubtotalAmount,
		ShippingFee:        o.ShippingFee,
		DiscountAmount:     o.DiscountAmount,
		VoucherID:          o.VoucherID,
		TotalAmount:        o.TotalAmount,
		ItemCount:          o.ItemCount,
		CheckoutSessionID:  o.CheckoutSessionID,
		CheckoutExpiresAt:  o.CheckoutExpiresAt,
		PaidAt:             o.PaidAt,
		PayoutInvoiceID:    o.PayoutInvoiceID,
		OrderDate:          o.OrderDate,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, OrderItem{
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			InventoryType: item.InventoryType,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			LineTotal:     item.LineTotal,
		})
	}
	return out
}

func NewOrders(orders []models.Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrder(o))
	}
	return out
}

func NewStatusEvents(events []models.OrderStatusEvent) []StatusEvent {
	out := make([]StatusEvent, 0, len(events))
	for _, e := range events {
		out = append(out, StatusEvent{
			ID:            e.ID,
			FromStatus:    e.FromStatus,
			ToStatus:      e.ToStatus,
			PaymentStatus: e.PaymentStatus,
			Note:          e.Note,
			ActorID:       e.ActorID,
			ActorRole:     e.ActorRole,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}

func NewPayments(payments []models.Payment) []Payment {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		out = append(out, Payment{
			ID:                   p.ID,
			Amount:               p.Amount,
			PaymentStatus:        p.PaymentStatus,
			ReferenceNo:          p.ReferenceNo,
			ReconciliationStatus: p.ReconciliationStatus,
			StatusHistory:        p.StatusHistory,
			PaymentDate:          p.PaymentDate,
		})
	}
	return out
}

func NewCheckoutSession(s *models.CheckoutSession) *CheckoutSession {
	if s == nil {
		return nil
	}
	return &CheckoutSession{
		ID:          s.ID,
		Reference:   s.Reference,
		TotalAmount: s.TotalAmount,
		Status:      s.Status,
		ExpiresAt:   s.ExpiresAt,
	}
}

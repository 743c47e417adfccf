package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// Order is one organization's share of a customer checkout.
type Order struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber        string                    `gorm:"column:order_number;not null;uniqueIndex"`
	OrganizationID     *uuid.UUID                `gorm:"column:organization_id;type:uuid"`
	CustomerID         uuid.UUID                 `gorm:"column:customer_id;type:uuid;not null"`
	CustomerInfo       types.CustomerSnapshot    `gorm:"column:customer_info;type:jsonb;serializer:json"`
	Status             enums.OrderStatus         `gorm:"column:status;type:text;not null;default:'PENDING'"`
	PaymentStatus      enums.PaymentStatus       `gorm:"column:payment_status;type:text;not null;default:'PENDING'"`
	CancellationReason *enums.CancellationReason `gorm:"column:cancellation_reason;type:text"`
	SubtotalAmount     decimal.Decimal           `gorm:"column:subtotal_amount;type:numeric(12,2);not null"`
	ShippingFee        decimal.Decimal           `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	DiscountAmount     decimal.Decimal           `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	VoucherDiscount    decimal.Decimal           `gorm:"column:voucher_discount;type:numeric(12,2);not null;default:0"`
	VoucherID          *uuid.UUID                `gorm:"column:voucher_id;type:uuid"`
	TotalAmount        decimal.Decimal           `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ItemCount          int                       `gorm:"column:item_count;not null;default:0"`
	CheckoutSessionID  *uuid.UUID                `gorm:"column:checkout_session_id;type:uuid"`
	GatewayCheckoutID  *string                   `gorm:"column:gateway_checkout_id"`
	CheckoutExpiresAt  *time.Time                `gorm:"column:checkout_expires_at"`
	PaidAt             *time.Time                `gorm:"column:paid_at"`
	PayoutInvoiceID    *uuid.UUID                `gorm:"column:payout_invoice_id;type:uuid"`
	IsDeleted          bool                      `gorm:"column:is_deleted;not null;default:false"`
	OrderDate          time.Time                 `gorm:"column:order_date;not null"`
	Items              []OrderItem               `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

type OrderItem struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	ProductID     uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	ProductName   string              `gorm:"column:product_name;not null"`
	InventoryType enums.InventoryType `gorm:"column:inventory_type;type:text;not null"`
	Quantity      int                 `gorm:"column:quantity;not null"`
	UnitPrice     decimal.Decimal     `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal     decimal.Decimal     `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// OrderStatusEvent is the append-only log of order transitions.
type OrderStatusEvent struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus    *enums.OrderStatus  `gorm:"column:from_status;type:text"`
	ToStatus      enums.OrderStatus   `gorm:"column:to_status;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	Note          *string             `gorm:"column:note"`
	ActorID       *uuid.UUID          `gorm:"column:actor_id;type:uuid"`
	ActorRole     string              `gorm:"column:actor_role;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;not null"`
}

// CheckoutSession links the orders created by one multi-organization checkout.
type CheckoutSession struct {
	ID          uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference   string                      `gorm:"column:reference;not null;uniqueIndex"`
	CustomerID  uuid.UUID                   `gorm:"column:customer_id;type:uuid;not null"`
	TotalAmount decimal.Decimal             `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status      enums.CheckoutSessionStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	ExpiresAt   *time.Time                  `gorm:"column:expires_at"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

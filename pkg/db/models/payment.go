package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// Payment is one settled gateway payment applied to one order.
type Payment struct {
	ID                   uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID                  `gorm:"column:order_id;type:uuid;not null"`
	Amount               decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	PaymentStatus        enums.PaymentStatus        `gorm:"column:payment_status;type:text;not null"`
	ReferenceNo          string                     `gorm:"column:reference_no;not null"`
	CheckoutID           *string                    `gorm:"column:checkout_id"`
	ReconciliationStatus enums.ReconciliationStatus `gorm:"column:reconciliation_status;type:text;not null;default:'PENDING'"`
	StatusHistory        types.StatusHistory        `gorm:"column:status_history;type:jsonb;serializer:json"`
	PaymentDate          time.Time                  `gorm:"column:payment_date;not null"`
	CreatedAt            time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

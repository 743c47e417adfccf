package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

type RefundRequest struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	RequestedByID   uuid.UUID                 `gorm:"column:requested_by_id;type:uuid;not null"`
	Status          enums.RefundRequestStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	Reason          string                    `gorm:"column:reason;not null"`
	CustomerMessage *string                   `gorm:"column:customer_message"`
	AdminMessage    *string                   `gorm:"column:admin_message"`
	RefundAmount    decimal.Decimal           `gorm:"column:refund_amount;type:numeric(12,2);not null"`
	OrderSnapshot   types.RefundOrderSnapshot `gorm:"column:order_snapshot;type:jsonb;serializer:json"`
	ReviewedByID    *uuid.UUID                `gorm:"column:reviewed_by_id;type:uuid"`
	ReviewedAt      *time.Time                `gorm:"column:reviewed_at"`
	VoucherID       *uuid.UUID                `gorm:"column:voucher_id;type:uuid"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// Voucher is a discount code. REFUND vouchers are issued by the platform and
// carry the refund ownership fields.
type Voucher struct {
	ID                       uuid.UUID                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code                     string                       `gorm:"column:code;not null;uniqueIndex"`
	Description              *string                      `gorm:"column:description"`
	DiscountType             enums.DiscountType           `gorm:"column:discount_type;type:text;not null"`
	DiscountValue            decimal.Decimal              `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinOrderAmount           *decimal.Decimal             `gorm:"column:min_order_amount;type:numeric(12,2)"`
	MaxDiscountAmount        *decimal.Decimal             `gorm:"column:max_discount_amount;type:numeric(12,2)"`
	UsageLimit               *int                         `gorm:"column:usage_limit"`
	UsageLimitPerUser        *int                         `gorm:"column:usage_limit_per_user"`
	UsedCount                int                          `gorm:"column:used_count;not null;default:0"`
	ValidFrom                time.Time                    `gorm:"column:valid_from;not null"`
	ValidUntil               *time.Time                   `gorm:"column:valid_until"`
	OrganizationID           *uuid.UUID                   `gorm:"column:organization_id;type:uuid"`
	IsActive                 bool                         `gorm:"column:is_active;not null;default:true"`
	IsDeleted                bool                         `gorm:"column:is_deleted;not null;default:false"`
	AssignedToUserID         *uuid.UUID                   `gorm:"column:assigned_to_user_id;type:uuid"`
	CancellationInitiator    *enums.CancellationInitiator `gorm:"column:cancellation_initiator;type:text"`
	MonetaryRefundEligibleAt *time.Time                   `gorm:"column:monetary_refund_eligible_at"`
	SourceOrderID            *uuid.UUID                   `gorm:"column:source_order_id;type:uuid"`
	CreatedByID              *uuid.UUID                   `gorm:"column:created_by_id;type:uuid"`
	CreatedAt                time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}

// VoucherUsage is the immutable record of a voucher applied to an order.
type VoucherUsage struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VoucherID       uuid.UUID             `gorm:"column:voucher_id;type:uuid;not null;index"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	DiscountAmount  decimal.Decimal       `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	VoucherSnapshot types.VoucherSnapshot `gorm:"column:voucher_snapshot;type:jsonb;serializer:json"`
	// UniqueKey is voucher_id:user_id for single-use-per-user vouchers, else null.
	UniqueKey *string   `gorm:"column:unique_key;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
)

type Voucher struct {
	ID                       uuid.UUID                    `json:"id"`
	Code                     string                       `json:"code"`
	Description              *string                      `json:"description,omitempty"`
	DiscountType             enums.DiscountType           `json:"discount_type"`
	DiscountValue            decimal.Decimal              `json:"discount_value"`
	MinOrderAmount           *decimal.Decimal             `json:"min_order_amount,omitempty"`
	MaxDiscountAmount        *decimal.Decimal             `json:"max_discount_amount,omitempty"`
	UsageLimit               *int                         `json:"usage_limit,omitempty"`
	UsageLimitPerUser        *int                         `json:"usage_limit_per_user,omitempty"`
	UsedCount                int                          `json:"used_count"`
	ValidFrom                time.Time                    `json:"valid_from"`
	ValidUntil               *time.Time                   `json:"valid_until,omitempty"`
	OrganizationID           *uuid.UUID                   `json:"organization_id,omitempty"`
	IsActive                 bool                         `json:"is_active"`
	AssignedToUserID         *uuid.UUID                   `json:"assigned_to_user_id,omitempty"`
	CancellationInitiator    *enums.CancellationInitiator `json:"cancellation_initiator,omitempty"`
	MonetaryRefundEligibleAt *time.Time                   `json:"monetary_refund_eligible_at,omitempty"`
	SourceOrderID            *uuid.UUID                   `json:"source_order_id,omitempty"`
	CreatedAt                time.Time                    `json:"created_at"`
}

type VoucherList struct {
	Vouchers   []Voucher `json:"vouchers"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func NewVoucher(v *models.Voucher) *Voucher {
	if v == nil {
		return nil
	}
	return &Voucher{
		ID:                       v.ID,
		Code:                     v.Code,
		Description:              v.Description,
		DiscountType:             v.DiscountType,
		DiscountValue:            v.DiscountValue,
		MinOrderAmount:           v.MinOrderAmount,
		MaxDiscountAmount:        v.MaxDiscountAmount,
		UsageLimit:               v.UsageLimit,
		UsageLimitPerUser:        v.UsageLimitPerUser,
		UsedCount:                v.UsedCount,
		ValidFrom:                v.ValidFrom,
		ValidUntil:               v.ValidUntil,
		OrganizationID:           v.OrganizationID,
		IsActive:                 v.IsActive,
		AssignedToUserID:         v.AssignedToUserID,
		CancellationInitiator:    v.CancellationInitiator,
		MonetaryRefundEligibleAt: v.MonetaryRefundEligibleAt,
		SourceOrderID:            v.SourceOrderID,
		CreatedAt:                v.CreatedAt,
	}
}

func NewVouchers(vouchers []models.Voucher) []Voucher {
	out := make([]Voucher, 0, len(vouchers))
	for i := range vouchers {
		out = append(out, *NewVoucher(&vouchers[i]))
	}
	return out
}

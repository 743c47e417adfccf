package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

type RefundRequest struct {
	ID              uuid.UUID                 `json:"id"`
	OrderID         uuid.UUID                 `json:"order_id"`
	RequestedByID   uuid.UUID                 `json:"requested_by_id"`
	Status          enums.RefundRequestStatus `json:"status"`
	Reason          string                    `json:"reason"`
	CustomerMessage *string                   `json:"customer_message,omitempty"`
	AdminMessage    *string                   `json:"admin_message,omitempty"`
	RefundAmount    decimal.Decimal           `json:"refund_amount"`
	OrderSnapshot   types.RefundOrderSnapshot `json:"order_snapshot"`
	ReviewedByID    *uuid.UUID                `json:"reviewed_by_id,omitempty"`
	ReviewedAt      *time.Time                `json:"reviewed_at,omitempty"`
	VoucherID       *uuid.UUID                `json:"voucher_id,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
}

type RefundRequestList struct {
	Requests   []RefundRequest `json:"requests"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// RefundReview is returned after approval; Voucher is the issued refund voucher.
type RefundReview struct {
	Request RefundRequest `json:"request"`
	Voucher *Voucher      `json:"voucher,omitempty"`
}

func NewRefundRequest(r *models.RefundRequest) RefundRequest {
	if r == nil {
		return RefundRequest{}
	}
	return RefundRequest{
		ID:              r.ID,
		OrderID:         r.OrderID,
		RequestedByID:   r.RequestedByID,
		Status:          r.Status,
		Reason:          r.Reason,
		CustomerMessage: r.CustomerMessage,
		AdminMessage:    r.AdminMessage,
		RefundAmount:    r.RefundAmount,
		OrderSnapshot:   r.OrderSnapshot,
		ReviewedByID:    r.ReviewedByID,
		ReviewedAt:      r.ReviewedAt,
		VoucherID:       r.VoucherID,
		CreatedAt:       r.CreatedAt,
	}
}

func NewRefundRequests(requests []models.RefundRequest) []RefundRequest {
	out := make([]RefundRequest, 0, len(requests))
	for i := range requests {
		out = append(out, NewRefundRequest(&requests[i]))
	}
	return out
}

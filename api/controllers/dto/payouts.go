package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

type PayoutInvoice struct {
	ID                    uuid.UUID                  `json:"id"`
	InvoiceNumber         string                     `json:"invoice_number"`
	OrganizationID        uuid.UUID                  `json:"organization_id"`
	Organization          types.OrganizationSnapshot `json:"organization"`
	PeriodStart           time.Time                  `json:"period_start"`
	PeriodEnd             time.Time                  `json:"period_end"`
	GrossAmount           decimal.Decimal            `json:"gross_amount"`
	PlatformFeePercentage decimal.Decimal            `json:"platform_fee_percentage"`
	PlatformFeeAmount     decimal.Decimal            `json:"platform_fee_amount"`
	AdjustmentsAmount     decimal.Decimal            `json:"adjustments_amount"`
	NetAmount             decimal.Decimal            `json:"net_amount"`
	OrderCount            int                        `json:"order_count"`
	ItemCount             int                        `json:"item_count"`
	OrderSummary          types.PayoutOrderSummary   `json:"order_summary"`
	Status                enums.PayoutInvoiceStatus  `json:"status"`
	StatusHistory         types.StatusHistory        `json:"status_history"`
	PaidAt                *time.Time                 `json:"paid_at,omitempty"`
	PaidByID              *uuid.UUID                 `json:"paid_by_id,omitempty"`
	PaymentReference      *string                    `json:"payment_reference,omitempty"`
	PDFURL                *string                    `json:"pdf_url,omitempty"`
	EmailSentAt           *time.Time                 `json:"email_sent_at,omitempty"`
	CreatedAt             time.Time                  `json:"created_at"`
}

type PayoutInvoiceList struct {
	Invoices   []PayoutInvoice `json:"invoices"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type PayoutAdjustment struct {
	ID                     uuid.UUID                    `json:"id"`
	OrganizationID         uuid.UUID                    `json:"organization_id"`
	OrderID                *uuid.UUID                   `json:"order_id,omitempty"`
	Type                   enums.PayoutAdjustmentType   `json:"type"`
	Amount                 decimal.Decimal              `json:"amount"`
	Status                 enums.PayoutAdjustmentStatus `json:"status"`
	Description            *string                      `json:"description,omitempty"`
	ReferenceInvoiceNumber *string                      `json:"reference_invoice_number,omitempty"`
	AppliedInvoiceID       *uuid.UUID                   `json:"applied_invoice_id,omitempty"`
	CreatedAt              time.Time                    `json:"created_at"`
}

type PayoutAdjustmentList struct {
	Adjustments []PayoutAdjustment `json:"adjustments"`
	NextCursor  string             `json:"next_cursor,omitempty"`
}

type PayoutSettings struct {
	DefaultFeePercentage decimal.Decimal        `json:"default_fee_percentage"`
	CutoffDayOfWeek      int                    `json:"cutoff_day_of_week"`
	PayoutDayOfWeek      int                    `json:"payout_day_of_week"`
	MinimumPayoutAmount  decimal.Decimal        `json:"minimum_payout_amount"`
	LastRunAt            *time.Time             `json:"last_run_at,omitempty"`
	LastRunPeriodStart   *time.Time             `json:"last_run_period_start,omitempty"`
	LastRunStatus        *enums.PayoutRunStatus `json:"last_run_status,omitempty"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

func NewPayoutInvoice(inv *models.PayoutInvoice) PayoutInvoice {
	if inv == nil {
		return PayoutInvoice{}
	}
	return PayoutInvoice{
		ID:                    inv.ID,
		InvoiceNumber:         inv.InvoiceNumber,
		OrganizationID:        inv.OrganizationID,
		Organization:          inv.OrganizationSnapshot,
		PeriodStart:           inv.PeriodStart,
		PeriodEnd:             inv.PeriodEnd,
		GrossAmount:           inv.GrossAmount,
		PlatformFeePercentage: inv.PlatformFeePercentage,
		PlatformFeeAmount:     inv.PlatformFeeAmount,
		AdjustmentsAmount:     inv.AdjustmentsAmount,
		NetAmount:             inv.NetAmount,
		OrderCount:            inv.OrderCount,
		ItemCount:             inv.ItemCount,
		OrderSummary:          inv.OrderSummary,
		Status:                inv.Status,
		StatusHistory:         inv.StatusHistory,
		PaidAt:                inv.PaidAt,
		PaidByID:              inv.PaidByID,
		PaymentReference:      inv.PaymentReference,
		PDFURL:                inv.PDFURL,
		EmailSentAt:           inv.EmailSentAt,
		CreatedAt:             inv.CreatedAt,
	}
}

func NewPayoutInvoices(invoices []models.PayoutInvoice) []PayoutInvoice {
	out := make([]PayoutInvoice, 0, len(invoices))
	for i := range invoices {
		out = append(out, NewPayoutInvoice(&invoices[i]))
	}
	return out
}

func NewPayoutAdjustment(adj *models.PayoutAdjustment) PayoutAdjustment {
	if adj == nil {
		return PayoutAdjustment{}
	}
	return PayoutAdjustment{
		ID:                     adj.ID,
		OrganizationID:         adj.OrganizationID,
		OrderID:                adj.OrderID,
		Type:                   adj.Type,
		Amount:                 adj.Amount,
		Status:                 adj.Status,
		Description:            adj.Description,
		ReferenceInvoiceNumber: adj.ReferenceInvoiceNumber,
		AppliedInvoiceID:       adj.AppliedInvoiceID,
		CreatedAt:              adj.CreatedAt,
	}
}

func NewPayoutAdjustments(adjustments []models.PayoutAdjustment) []PayoutAdjustment {
	out := make([]PayoutAdjustment, 0, len(adjustments))
	for i := range adjustments {
		out = append(out, NewPayoutAdjustment(&adjustments[i]))
	}
	return out
}

func NewPayoutSettings(s *models.PayoutSettings) PayoutSettings {
	if s == nil {
		return PayoutSettings{}
	}
	return PayoutSettings{
		DefaultFeePercentage: s.DefaultFeePercentage,
		CutoffDayOfWeek:      s.CutoffDayOfWeek,
		PayoutDayOfWeek:      s.PayoutDayOfWeek,
		MinimumPayoutAmount:  s.MinimumPayoutAmount,
		LastRunAt:            s.LastRunAt,
		LastRunPeriodStart:   s.LastRunPeriodStart,
		LastRunStatus:        s.LastRunStatus,
		UpdatedAt:            s.UpdatedAt,
	}
}

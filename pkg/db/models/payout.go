package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// PayoutInvoice is the weekly settlement owed to one organization.
type PayoutInvoice struct {
	ID                    uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceNumber         string                     `gorm:"column:invoice_number;not null;uniqueIndex"`
	OrganizationID        uuid.UUID                  `gorm:"column:organization_id;type:uuid;not null"`
	OrganizationSnapshot  types.OrganizationSnapshot `gorm:"column:organization_snapshot;type:jsonb;serializer:json"`
	PeriodStart           time.Time                  `gorm:"column:period_start;not null"`
	PeriodEnd             time.Time                  `gorm:"column:period_end;not null"`
	GrossAmount           decimal.Decimal            `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	PlatformFeePercentage decimal.Decimal            `gorm:"column:platform_fee_percentage;type:numeric(5,2);not null"`
	PlatformFeeAmount     decimal.Decimal            `gorm:"column:platform_fee_amount;type:numeric(12,2);not null"`
	AdjustmentsAmount     decimal.Decimal            `gorm:"column:adjustments_amount;type:numeric(12,2);not null;default:0"`
	NetAmount             decimal.Decimal            `gorm:"column:net_amount;type:numeric(12,2);not null"`
	OrderCount            int                        `gorm:"column:order_count;not null"`
	ItemCount             int                        `gorm:"column:item_count;not null"`
	OrderSummary          types.PayoutOrderSummary   `gorm:"column:order_summary;type:jsonb;serializer:json"`
	Status                enums.PayoutInvoiceStatus  `gorm:"column:status;type:text;not null;default:'PENDING'"`
	StatusHistory         types.StatusHistory        `gorm:"column:status_history;type:jsonb;serializer:json"`
	PaidAt                *time.Time                 `gorm:"column:paid_at"`
	PaidByID              *uuid.UUID                 `gorm:"column:paid_by_id;type:uuid"`
	PaymentReference      *string                    `gorm:"column:payment_reference"`
	PDFKey                *string                    `gorm:"column:pdf_key"`
	PDFURL                *string                    `gorm:"column:pdf_url"`
	EmailSentAt           *time.Time                 `gorm:"column:email_sent_at"`
	CreatedAt             time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// PayoutAdjustment is a signed amount carried into an organization's next invoice.
type PayoutAdjustment struct {
	ID                     uuid.UUID                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID         uuid.UUID                    `gorm:"column:organization_id;type:uuid;not null;index"`
	OrderID                *uuid.UUID                   `gorm:"column:order_id;type:uuid"`
	Type                   enums.PayoutAdjustmentType   `gorm:"column:type;type:text;not null"`
	Amount                 decimal.Decimal              `gorm:"column:amount;type:numeric(12,2);not null"`
	Status                 enums.PayoutAdjustmentStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	Description            *string                      `gorm:"column:description"`
	ReferenceInvoiceNumber *string                      `gorm:"column:reference_invoice_number"`
	AppliedInvoiceID       *uuid.UUID                   `gorm:"column:applied_invoice_id;type:uuid"`
	CreatedAt              time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}

// PayoutSettingsID is the primary key of the singleton settings row.
const PayoutSettingsID = 1

type PayoutSettings struct {
	ID                   int                    `gorm:"column:id;primaryKey"`
	DefaultFeePercentage decimal.Decimal        `gorm:"column:default_fee_percentage;type:numeric(5,2);not null"`
	CutoffDayOfWeek      int                    `gorm:"column:cutoff_day_of_week;not null;default:2"`
	PayoutDayOfWeek      int                    `gorm:"column:payout_day_of_week;not null;default:3"`
	MinimumPayoutAmount  decimal.Decimal        `gorm:"column:minimum_payout_amount;type:numeric(12,2);not null;default:0"`
	LastRunAt            *time.Time             `gorm:"column:last_run_at"`
	LastRunPeriodStart   *time.Time             `gorm:"column:last_run_period_start"`
	LastRunStatus        *enums.PayoutRunStatus `gorm:"column:last_run_status;type:text"`
	UpdatedByID          *uuid.UUID             `gorm:"column:updated_by_id;type:uuid"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (PayoutSettings) TableName() string {
	return "payout_settings"
}

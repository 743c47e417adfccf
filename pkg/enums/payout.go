package enums

import "fmt"

// PayoutInvoiceStatus tracks settlement of a weekly organization invoice.
type PayoutInvoiceStatus string

const (
	PayoutInvoiceStatusPending    PayoutInvoiceStatus = "PENDING"
	PayoutInvoiceStatusProcessing PayoutInvoiceStatus = "PROCESSING"
	PayoutInvoiceStatusPaid       PayoutInvoiceStatus = "PAID"
	PayoutInvoiceStatusCancelled  PayoutInvoiceStatus = "CANCELLED"
)

var validPayoutInvoiceStatuses = []PayoutInvoiceStatus{
	PayoutInvoiceStatusPending,
	PayoutInvoiceStatusProcessing,
	PayoutInvoiceStatusPaid,
	PayoutInvoiceStatusCancelled,
}

func (s PayoutInvoiceStatus) IsValid() bool {
	for _, candidate := range validPayoutInvoiceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParsePayoutInvoiceStatus(value string) (PayoutInvoiceStatus, error) {
	for _, candidate := range validPayoutInvoiceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout invoice status %q", value)
}

type PayoutAdjustmentType string

const (
	PayoutAdjustmentCancellation PayoutAdjustmentType = "CANCELLATION"
	PayoutAdjustmentCarryOver    PayoutAdjustmentType = "CARRY_OVER"
	PayoutAdjustmentManual       PayoutAdjustmentType = "MANUAL"
)

type PayoutAdjustmentStatus string

const (
	PayoutAdjustmentStatusPending PayoutAdjustmentStatus = "PENDING"
	PayoutAdjustmentStatusApplied PayoutAdjustmentStatus = "APPLIED"
)

// PayoutRunStatus is the outcome of the last generation batch.
type PayoutRunStatus string

const (
	PayoutRunStatusSuccess PayoutRunStatus = "SUCCESS"
	PayoutRunStatusPartial PayoutRunStatus = "PARTIAL"
	PayoutRunStatusFailed  PayoutRunStatus = "FAILED"
)

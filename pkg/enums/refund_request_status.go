package enums

import "fmt"

// RefundRequestStatus is PENDING until an admin approves or rejects it.
type RefundRequestStatus string

const (
	RefundRequestStatusPending  RefundRequestStatus = "PENDING"
	RefundRequestStatusApproved RefundRequestStatus = "APPROVED"
	RefundRequestStatusRejected RefundRequestStatus = "REJECTED"
)

var validRefundRequestStatuses = []RefundRequestStatus{
	RefundRequestStatusPending,
	RefundRequestStatusApproved,
	RefundRequestStatusRejected,
}

func (r RefundRequestStatus) IsValid() bool {
	for _, candidate := range validRefundRequestStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseRefundRequestStatus(value string) (RefundRequestStatus, error) {
	for _, candidate := range validRefundRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund request status %q", value)
}

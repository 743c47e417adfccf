package enums

import "fmt"

// DiscountType selects how a voucher's discount is computed.
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "PERCENTAGE"
	DiscountTypeFixedAmount  DiscountType = "FIXED_AMOUNT"
	DiscountTypeFreeItem     DiscountType = "FREE_ITEM"
	DiscountTypeFreeShipping DiscountType = "FREE_SHIPPING"
	DiscountTypeRefund       DiscountType = "REFUND"
)

var validDiscountTypes = []DiscountType{
	DiscountTypePercentage,
	DiscountTypeFixedAmount,
	DiscountTypeFreeItem,
	DiscountTypeFreeShipping,
	DiscountTypeRefund,
}

func (d DiscountType) String() string {
	return string(d)
}

func (d DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

func ParseDiscountType(value string) (DiscountType, error) {
	for _, candidate := range validDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}

// VoucherValidationCode is the closed set of reasons a voucher is rejected.
type VoucherValidationCode string

const (
	VoucherNotFound              VoucherValidationCode = "NOT_FOUND"
	VoucherInactive              VoucherValidationCode = "INACTIVE"
	VoucherExpired               VoucherValidationCode = "EXPIRED"
	VoucherNotStarted            VoucherValidationCode = "NOT_STARTED"
	VoucherUsageLimitReached     VoucherValidationCode = "USAGE_LIMIT_REACHED"
	VoucherUserUsageLimitReached VoucherValidationCode = "USER_USAGE_LIMIT_REACHED"
	VoucherMinOrderNotMet        VoucherValidationCode = "MIN_ORDER_NOT_MET"
	VoucherOrganizationMismatch  VoucherValidationCode = "ORGANIZATION_MISMATCH"
)

package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JSONMap is a free-form jsonb object.
type JSONMap map[string]any

// CustomerSnapshot freezes customer contact details at order time.
type CustomerSnapshot struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
}

// OrganizationSnapshot freezes the seller's identity on an invoice.
type OrganizationSnapshot struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	PayoutEmail string    `json:"payout_email,omitempty"`
}

// RefundOrderSnapshot captures the order as the customer saw it when asking for a refund.
type RefundOrderSnapshot struct {
	OrderID       uuid.UUID        `json:"order_id"`
	OrderNumber   string           `json:"order_number"`
	Status        string           `json:"status"`
	PaymentStatus string           `json:"payment_status"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	ItemCount     int              `json:"item_count"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	Customer      CustomerSnapshot `json:"customer"`
}

// StatusHistoryEntry is one append-only transition record stored in jsonb.
type StatusHistoryEntry struct {
	Status  string     `json:"status"`
	At      time.Time  `json:"at"`
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
	Note    string     `json:"note,omitempty"`
}

type StatusHistory []StatusHistoryEntry

// Append returns the history with a new entry at the end.
func (h StatusHistory) Append(status string, at time.Time, actorID *uuid.UUID, note string) StatusHistory {
	return append(h, StatusHistoryEntry{Status: status, At: at, ActorID: actorID, Note: note})
}

// Value encodes the history for map-based column updates, which bypass the
// model's json serializer.
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		h = StatusHistory{}
	}
	raw, err := json.Marshal([]StatusHistoryEntry(h))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Latest returns the most recent entry, if any.
func (h StatusHistory) Latest() (StatusHistoryEntry, bool) {
	if len(h) == 0 {
		return StatusHistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// PayoutOrderLine summarises one order on a payout invoice.
type PayoutOrderLine struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	OrderDate   time.Time       `json:"order_date"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// PayoutAdjustmentLine records an adjustment folded into an invoice.
type PayoutAdjustmentLine struct {
	AdjustmentID uuid.UUID       `json:"adjustment_id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
}

type PayoutOrderSummary struct {
	Orders      []PayoutOrderLine      `json:"orders"`
	Adjustments []PayoutAdjustmentLine `json:"adjustments,omitempty"`
}

// VoucherSnapshot freezes the voucher terms applied to an order.
type VoucherSnapshot struct {
	Code          string          `json:"code"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

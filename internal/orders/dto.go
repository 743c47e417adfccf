package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
)

// UpdateOrderInput changes status and/or payment status. Cancellation goes
// through CancelOrder so inventory and refunds are handled.
type UpdateOrderInput struct {
	OrderID       uuid.UUID
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	Note          *string
	Actor         auth.Actor
}

// CancelOrderInput describes a cancellation. Initiator defaults from the
// actor's role when empty: customers are CUSTOMER, everyone else SELLER.
type CancelOrderInput struct {
	OrderID   uuid.UUID
	Reason    enums.CancellationReason
	Note      *string
	Initiator enums.CancellationInitiator
	Actor     auth.Actor
}

type CancelResult struct {
	Order         *models.Order
	RefundVoucher *models.Voucher
	Adjustment    *models.PayoutAdjustment
}

// MarkPaidInput applies a settled payment to an order.
type MarkPaidInput struct {
	OrderID    uuid.UUID
	PaymentRef string
	Amount     decimal.Decimal
	PaidAt     time.Time
	Actor      auth.Actor
}

type ListFilters struct {
	CustomerID     *uuid.UUID
	OrganizationID *uuid.UUID
	Status         *enums.OrderStatus
	PaymentStatus  *enums.PaymentStatus
}

type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// OrderDetail is the read model for a single order.
type OrderDetail struct {
	Order         models.Order              `json:"order"`
	Payments      []models.Payment          `json:"payments"`
	RecentHistory []models.OrderStatusEvent `json:"recent_history"`
}

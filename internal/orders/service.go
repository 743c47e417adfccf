package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/internal/vouchers"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/money"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/outbox/payloads"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RefundIssuer creates refund vouchers inside the caller's transaction.
type RefundIssuer interface {
	IssueRefundVoucherTx(ctx context.Context, tx *gorm.DB, input vouchers.IssueRefundInput) (*models.Voucher, error)
}

// Service is the order state machine. Every status or payment status change
// goes through it.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*OrderDetail, error)
	ListOrders(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*OrderList, error)
	ListOrderHistory(ctx context.Context, orderID uuid.UUID, actor auth.Actor) ([]models.OrderStatusEvent, error)
	UpdateOrder(ctx context.Context, input UpdateOrderInput) (*models.Order, error)
	CancelOrder(ctx context.Context, input CancelOrderInput) (*CancelResult, error)
	CancelOrderTx(ctx context.Context, tx *gorm.DB, input CancelOrderInput) (*CancelResult, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, input MarkPaidInput) (*models.Order, error)
	MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor, note string) (*models.Order, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	refunds RefundIssuer
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order state machine with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, refunds RefundIssuer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if refunds == nil {
		return nil, fmt.Errorf("refund issuer required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		refunds: refunds,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*OrderDetail, error) {
	order, err := s.loadVisible(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	history, err := s.repo.ListStatusEvents(ctx, order.ID, RecentHistoryLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}
	return &OrderDetail{Order: *order, Payments: payments, RecentHistory: history}, nil
}

func (s *service) ListOrderHistory(ctx context.Context, orderID uuid.UUID, actor auth.Actor) ([]models.OrderStatusEvent, error) {
	order, err := s.loadVisible(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListStatusEvents(ctx, order.ID, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load status history")
	}
	return events, nil
}

func (s *service) ListOrders(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*OrderList, error) {
	switch {
	case actor.IsPrivileged():
	case actor.Role == enums.ActorRoleSeller:
		if actor.OrganizationID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organization context missing")
		}
		filters.OrganizationID = actor.OrganizationID
	default:
		id := actor.UserID
		filters.CustomerID = &id
	}

	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

func (s *service) loadVisible(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if !canView(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) UpdateOrder(ctx context.Context, input UpdateOrderInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Status == nil && input.PaymentStatus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status or payment_status required")
	}
	if input.Status != nil && *input.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the cancel operation to cancel orders")
	}
	if input.PaymentStatus != nil && !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment status can only be changed by operators")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		if !canManage(input.Actor, order) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to organization")
		}

		now := s.now()
		fromStatus := order.Status
		fromPayment := order.PaymentStatus
		updates := map[string]any{}

		if input.Status != nil {
			override := input.Actor.IsSystemAdmin()
			if err := ValidateStatusTransition(order.Status, *input.Status, override); err != nil {
				return err
			}
			if *input.Status != order.Status {
				updates["status"] = *input.Status
				if order.Status == enums.OrderStatusCancelled {
					updates["cancellation_reason"] = nil
					order.CancellationReason = nil
				}
				order.Status = *input.Status
			}
		}

		if input.PaymentStatus != nil {
			if err := applyPaymentStatus(order, *input.PaymentStatus, now, updates); err != nil {
				return err
			}
		}

		if len(updates) == 0 {
			updated = order
			return nil
		}
		updates["updated_at"] = now
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if err := s.recordEvent(ctx, repo, order, &fromStatus, input.Actor, input.Note, now); err != nil {
			return err
		}

		if order.Status != fromStatus {
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         input.Actor.Ref(),
				Data: payloads.OrderStatusChangedEvent{
					OrderID:    order.ID,
					FromStatus: fromStatus,
					ToStatus:   order.Status,
					Override:   fromStatus.IsFinal(),
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		if order.PaymentStatus == enums.PaymentStatusPaid && fromPayment != enums.PaymentStatusPaid {
			if err := s.emitPaid(ctx, tx, order, "manual", order.TotalAmount, input.Actor); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyPaymentStatus validates a payment status change and stages the column
// updates. paid_at is stamped on the first move into PAID only.
func applyPaymentStatus(order *models.Order, target enums.PaymentStatus, now time.Time, updates map[string]any) error {
	if err := ValidatePaymentTransition(order.PaymentStatus, target); err != nil {
		return err
	}
	if target == order.PaymentStatus {
		return nil
	}
	updates["payment_status"] = target
	order.PaymentStatus = target
	if target == enums.PaymentStatusPaid && order.PaidAt == nil {
		paidAt := now
		updates["paid_at"] = paidAt
		order.PaidAt = &paidAt
	}
	return nil
}

func (s *service) CancelOrder(ctx context.Context, input CancelOrderInput) (*CancelResult, error) {
	var result *CancelResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.CancelOrderTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOrderTx cancels inside the caller's transaction. STOCK items go back
// to inventory. A seller-initiated cancellation of a paid order refunds the
// amount actually paid as a voucher, and an order already settled on a payout invoice
// leaves a CANCELLATION adjustment for the organization's next payout.
func (s *service) CancelOrderTx(ctx context.Context, tx *gorm.DB, input CancelOrderInput) (*CancelResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation reason")
	}
	initiator := input.Initiator
	if initiator == "" {
		initiator = initiatorFor(input.Actor)
	}
	if !initiator.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation initiator")
	}

	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if !canCancel(input.Actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to cancel this order")
	}
	switch order.Status {
	case enums.OrderStatusDelivered:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyDelivered, "delivered orders cannot be cancelled")
	case enums.OrderStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyCancelled, "order is already cancelled")
	}
	wasPaid := order.PaymentStatus == enums.PaymentStatusPaid
	if input.Actor.Role == enums.ActorRoleCustomer && wasPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders are refunded through a refund request")
	}

	now := s.now()
	fromStatus := order.Status
	reason := input.Reason
	updates := map[string]any{
		"status":              enums.OrderStatusCancelled,
		"cancellation_reason": reason,
		"updated_at":          now,
	}
	order.Status = enums.OrderStatusCancelled
	order.CancellationReason = &reason

	for _, item := range order.Items {
		if item.InventoryType != enums.InventoryTypeStock || item.Quantity <= 0 {
			continue
		}
		if err := repo.RestoreInventory(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore inventory")
		}
	}

	result := &CancelResult{Order: order}

	if wasPaid && initiator == enums.CancellationInitiatorSeller {
		paid, err := paidAmount(ctx, repo, order)
		if err != nil {
			return nil, err
		}
		voucher, err := s.issueSellerRefund(ctx, tx, order, paid, input.Actor)
		if err != nil {
			return nil, err
		}
		result.RefundVoucher = voucher
		if voucher != nil {
			if err := applyPaymentStatus(order, enums.PaymentStatusRefunded, now, updates); err != nil {
				return nil, err
			}
		}
	}

	if wasPaid && order.PayoutInvoiceID != nil {
		adj, err := s.settledCancellationAdjustment(ctx, repo, order)
		if err != nil {
			return nil, err
		}
		result.Adjustment = adj
	}

	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if err := s.recordEvent(ctx, repo, order, &fromStatus, input.Actor, input.Note, now); err != nil {
		return nil, err
	}

	var voucherID *uuid.UUID
	if result.RefundVoucher != nil {
		voucherID = &result.RefundVoucher.ID
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         input.Actor.Ref(),
		Data: payloads.OrderCancelledEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			Reason:          reason,
			Initiator:       initiator,
			RefundVoucherID: voucherID,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":  order.ID.String(),
			"reason":    string(reason),
			"initiator": string(initiator),
		})
		s.logg.Info(logCtx, "order cancelled")
	}
	return result, nil
}

// paidAmount is what the customer actually paid for the order: the sum of its
// Payment rows, or the order total when it was marked PAID without a gateway
// payment.
func paidAmount(ctx context.Context, repo Repository, order *models.Order) (decimal.Decimal, error) {
	payments, err := repo.ListPayments(ctx, order.ID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order payments")
	}
	if len(payments) == 0 {
		return order.TotalAmount, nil
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}

// issueSellerRefund credits the customer with a SELLER refund voucher. A zero
// amount issues nothing.
func (s *service) issueSellerRefund(ctx context.Context, tx *gorm.DB, order *models.Order, amount decimal.Decimal, actor auth.Actor) (*models.Voucher, error) {
	if !amount.IsPositive() {
		return nil, nil
	}
	return s.refunds.IssueRefundVoucherTx(ctx, tx, vouchers.IssueRefundInput{
		OrderID:          order.ID,
		Amount:           amount,
		AssignedToUserID: order.CustomerID,
		CreatedByID:      actor.UserIDPtr(),
		Initiator:        enums.CancellationInitiatorSeller,
		Actor:            actor,
	})
}

// settledCancellationAdjustment claws back the seller's net share of an order
// that was already paid out.
func (s *service) settledCancellationAdjustment(ctx context.Context, repo Repository, order *models.Order) (*models.PayoutAdjustment, error) {
	if order.OrganizationID == nil {
		return nil, nil
	}
	fee, err := repo.FindInvoiceFee(ctx, *order.PayoutInvoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout invoice")
	}
	share := order.TotalAmount.Sub(money.Percent(order.TotalAmount, fee.Percentage))
	if !share.IsPositive() {
		return nil, nil
	}
	description := fmt.Sprintf("Cancellation of order %s", order.OrderNumber)
	adj := &models.PayoutAdjustment{
		ID:                     uuid.New(),
		OrganizationID:         *order.OrganizationID,
		OrderID:                &order.ID,
		Type:                   enums.PayoutAdjustmentCancellation,
		Amount:                 share.Neg(),
		Status:                 enums.PayoutAdjustmentStatusPending,
		Description:            &description,
		ReferenceInvoiceNumber: &fee.InvoiceNumber,
	}
	if err := repo.CreatePayoutAdjustment(ctx, adj); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout adjustment")
	}
	return adj, nil
}

// MarkPaidTx moves an order to PAID and starts fulfilment. Orders cancelled
// before the payment landed keep their status, and the payment is returned as
// a SELLER refund voucher so the order ends REFUNDED.
func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, input MarkPaidInput) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
	if err != nil {
		return nil, mapLoadError(err)
	}

	now := input.PaidAt
	if now.IsZero() {
		now = s.now()
	}
	fromStatus := order.Status
	fromPayment := order.PaymentStatus
	updates := map[string]any{}
	if err := applyPaymentStatus(order, enums.PaymentStatusPaid, now, updates); err != nil {
		return nil, err
	}

	switch order.Status {
	case enums.OrderStatusPending:
		updates["status"] = enums.OrderStatusProcessing
		order.Status = enums.OrderStatusProcessing
	case enums.OrderStatusCancelled:
		// Nothing will ship, so the money goes straight back as credit and the
		// order leaves PAID before any payout batch can pick it up.
		amount := input.Amount
		if !amount.IsPositive() {
			amount = order.TotalAmount
		}
		voucher, err := s.issueSellerRefund(ctx, tx, order, amount, input.Actor)
		if err != nil {
			return nil, err
		}
		if voucher != nil {
			if err := applyPaymentStatus(order, enums.PaymentStatusRefunded, now, updates); err != nil {
				return nil, err
			}
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":    order.ID.String(),
				"payment_ref": input.PaymentRef,
				"refunded":    voucher != nil,
			})
			s.logg.Warn(logCtx, "payment received for cancelled order")
		}
	}

	if len(updates) == 0 {
		return order, nil
	}
	updates["updated_at"] = s.now()
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	note := "payment " + input.PaymentRef
	if err := s.recordEvent(ctx, repo, order, &fromStatus, input.Actor, &note, now); err != nil {
		return nil, err
	}

	if fromPayment != enums.PaymentStatusPaid {
		if err := s.emitPaid(ctx, tx, order, input.PaymentRef, input.Amount, input.Actor); err != nil {
			return nil, err
		}
	}
	if order.Status != fromStatus {
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.Ref(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				FromStatus: fromStatus,
				ToStatus:   order.Status,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// MarkRefundedTx moves a PAID order to REFUNDED.
func (s *service) MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor, note string) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	now := s.now()
	fromStatus := order.Status
	updates := map[string]any{}
	if err := applyPaymentStatus(order, enums.PaymentStatusRefunded, now, updates); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return order, nil
	}
	updates["updated_at"] = now
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
	}
	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	if err := s.recordEvent(ctx, repo, order, &fromStatus, actor, notePtr, now); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) recordEvent(ctx context.Context, repo Repository, order *models.Order, from *enums.OrderStatus, actor auth.Actor, note *string, at time.Time) error {
	event := &models.OrderStatusEvent{
		ID:            uuid.New(),
		OrderID:       order.ID,
		FromStatus:    from,
		ToStatus:      order.Status,
		PaymentStatus: order.PaymentStatus,
		Note:          note,
		ActorID:       actor.UserIDPtr(),
		ActorRole:     string(actor.Role),
		CreatedAt:     at,
	}
	if err := repo.CreateStatusEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status event")
	}
	return nil
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, order *models.Order, paymentRef string, amount decimal.Decimal, actor auth.Actor) error {
	paidAt := s.now()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.Ref(),
		Data: payloads.OrderPaidEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			PaymentID:   paymentRef,
			Amount:      amount,
			PaidAt:      paidAt,
		},
	})
}

func initiatorFor(actor auth.Actor) enums.CancellationInitiator {
	if actor.Role == enums.ActorRoleCustomer {
		return enums.CancellationInitiatorCustomer
	}
	return enums.CancellationInitiatorSeller
}

func canView(actor auth.Actor, order *models.Order) bool {
	if actor.IsPrivileged() {
		return true
	}
	if actor.Role == enums.ActorRoleSeller {
		return actor.OwnsOrganization(order.OrganizationID)
	}
	return actor.UserID != uuid.Nil && actor.UserID == order.CustomerID
}

func canManage(actor auth.Actor, order *models.Order) bool {
	if actor.IsPrivileged() {
		return true
	}
	return actor.Role == enums.ActorRoleSeller && actor.OwnsOrganization(order.OrganizationID)
}

func canCancel(actor auth.Actor, order *models.Order) bool {
	if canManage(actor, order) {
		return true
	}
	return actor.Role == enums.ActorRoleCustomer && actor.UserID == order.CustomerID
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

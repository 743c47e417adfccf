// Package refunds manages customer refund requests for paid orders.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/internal/activitylog"
	"github.com/tindahub/marketplace-backend/internal/orders"
	"github.com/tindahub/marketplace-backend/internal/vouchers"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/outbox/payloads"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// RequestWindow is how long after payment a customer may ask for a refund.
const RequestWindow = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderCanceller interface {
	CancelOrderTx(ctx context.Context, tx *gorm.DB, input orders.CancelOrderInput) (*orders.CancelResult, error)
	MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor, note string) (*models.Order, error)
}

type activityRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, entry activitylog.Entry) error
}

type Service interface {
	CreateRequest(ctx context.Context, input CreateRequestInput) (*models.RefundRequest, error)
	ApproveRequest(ctx context.Context, input ReviewInput) (*ReviewResult, error)
	RejectRequest(ctx context.Context, input ReviewInput) (*models.RefundRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.RefundRequest, error)
	ListRequests(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*RequestList, error)
}

type CreateRequestInput struct {
	OrderID         uuid.UUID
	Reason          string
	CustomerMessage *string
	Actor           auth.Actor
}

// ReviewInput approves or rejects a pending request. Message is required on rejection.
type ReviewInput struct {
	RequestID uuid.UUID
	Message   *string
	Actor     auth.Actor
}

type ReviewResult struct {
	Request *models.RefundRequest
	Voucher *models.Voucher
}

type ListFilters struct {
	RequestedByID *uuid.UUID
	OrderID       *uuid.UUID
	Status        *enums.RefundRequestStatus
}

type RequestList struct {
	Requests   []models.RefundRequest `json:"requests"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	orders   orderCanceller
	vouchers orders.RefundIssuer
	activity activityRecorder
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx txRunner, outbox outboxPublisher, orderSvc orderCanceller, issuer orders.RefundIssuer, activity activityRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("refund voucher issuer required")
	}
	if activity == nil {
		return nil, fmt.Errorf("activity recorder required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outbox,
		orders:   orderSvc,
		vouchers: issuer,
		activity: activity,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateRequest(ctx context.Context, input CreateRequestInput) (*models.RefundRequest, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var created *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.CustomerID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotOwner, "order belongs to another customer")
		}
		if order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeNotPaid, "only paid orders can be refunded")
		}
		switch order.Status {
		case enums.OrderStatusDelivered:
			return pkgerrors.New(pkgerrors.CodeAlreadyDelivered, "delivered orders cannot be refunded")
		case enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeAlreadyCancelled, "order is already cancelled")
		}

		// the window opens at the settling payment; manual PAID updates have only paid_at
		paidAt, err := repo.LatestPaymentDate(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment date")
		}
		if paidAt == nil {
			paidAt = order.PaidAt
		}
		now := s.now()
		if paidAt == nil || now.Sub(*paidAt) > RequestWindow {
			return pkgerrors.New(pkgerrors.CodeWindowExpired, "refund window has closed").
				WithDetails(map[string]any{"window_hours": int(RequestWindow.Hours())})
		}

		pending, err := repo.HasPending(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending refund requests")
		}
		if pending {
			return pkgerrors.New(pkgerrors.CodeDuplicatePending, "a refund request is already pending for this order")
		}

		req := &models.RefundRequest{
			ID:              uuid.New(),
			OrderID:         order.ID,
			RequestedByID:   input.Actor.UserID,
			Status:          enums.RefundRequestStatusPending,
			Reason:          reason,
			CustomerMessage: input.CustomerMessage,
			RefundAmount:    order.TotalAmount,
			OrderSnapshot:   snapshotOrder(order),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repo.Create(ctx, req); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeDuplicatePending, "a refund request is already pending for this order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}

		if err := s.emit(ctx, tx, enums.EventRefundRequested, req, input.Actor); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ApproveRequest cancels the order, issues a CUSTOMER refund voucher for the
// requested amount and marks the order's payment REFUNDED, all in one transaction.
func (s *service) ApproveRequest(ctx context.Context, input ReviewInput) (*ReviewResult, error) {
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can review refund requests")
	}

	var result *ReviewResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := s.loadPending(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}

		note := fmt.Sprintf("refund request %s approved", req.ID)
		if _, err := s.orders.CancelOrderTx(ctx, tx, orders.CancelOrderInput{
			OrderID:   req.OrderID,
			Reason:    enums.CancellationReasonRefundApproved,
			Note:      &note,
			Initiator: enums.CancellationInitiatorCustomer,
			Actor:     input.Actor,
		}); err != nil {
			return err
		}

		voucher, err := s.vouchers.IssueRefundVoucherTx(ctx, tx, vouchers.IssueRefundInput{
			OrderID:          req.OrderID,
			Amount:           req.RefundAmount,
			AssignedToUserID: req.RequestedByID,
			CreatedByID:      input.Actor.UserIDPtr(),
			Initiator:        enums.CancellationInitiatorCustomer,
			Actor:            input.Actor,
		})
		if err != nil {
			return err
		}

		if _, err := s.orders.MarkRefundedTx(ctx, tx, req.OrderID, input.Actor, note); err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{
			"status":         enums.RefundRequestStatusApproved,
			"reviewed_by_id": input.Actor.UserIDPtr(),
			"reviewed_at":    now,
			"voucher_id":     voucher.ID,
			"updated_at":     now,
		}
		if input.Message != nil {
			updates["admin_message"] = *input.Message
		}
		if err := repo.Update(ctx, req.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve refund request")
		}
		req.Status = enums.RefundRequestStatusApproved
		req.ReviewedByID = input.Actor.UserIDPtr()
		req.ReviewedAt = &now
		req.VoucherID = &voucher.ID
		req.AdminMessage = input.Message

		if err := s.audit(ctx, tx, req, "refund_request.approved", input.Actor); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventRefundApproved, req, input.Actor); err != nil {
			return err
		}
		result = &ReviewResult{Request: req, Voucher: voucher}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RejectRequest(ctx context.Context, input ReviewInput) (*models.RefundRequest, error) {
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can review refund requests")
	}
	if input.Message == nil || strings.TrimSpace(*input.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection message required")
	}

	var rejected *models.RefundRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := s.loadPending(ctx, repo, input.RequestID)
		if err != nil {
			return err
		}

		now := s.now()
		message := strings.TrimSpace(*input.Message)
		err = repo.Update(ctx, req.ID, map[string]any{
			"status":         enums.RefundRequestStatusRejected,
			"admin_message":  message,
			"reviewed_by_id": input.Actor.UserIDPtr(),
			"reviewed_at":    now,
			"updated_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject refund request")
		}
		req.Status = enums.RefundRequestStatusRejected
		req.AdminMessage = &message
		req.ReviewedByID = input.Actor.UserIDPtr()
		req.ReviewedAt = &now

		if err := s.audit(ctx, tx, req, "refund_request.rejected", input.Actor); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventRefundRejected, req, input.Actor); err != nil {
			return err
		}
		rejected = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

func (s *service) loadPending(ctx context.Context, repo Repository, id uuid.UUID) (*models.RefundRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund request id required")
	}
	req, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	switch req.Status {
	case enums.RefundRequestStatusApproved:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyApproved, "refund request already approved")
	case enums.RefundRequestStatusRejected:
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyRejected, "refund request already rejected")
	}
	return req, nil
}

func (s *service) GetRequest(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.RefundRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if !actor.IsPrivileged() && req.RequestedByID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
	}
	return req, nil
}

func (s *service) ListRequests(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*RequestList, error) {
	if !actor.IsPrivileged() {
		id := actor.UserID
		filters.RequestedByID = &id
	}
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	page, next := pagination.Trim(rows, params.Limit, func(r models.RefundRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &RequestList{Requests: page, NextCursor: next}, nil
}

func (s *service) audit(ctx context.Context, tx *gorm.DB, req *models.RefundRequest, action string, actor auth.Actor) error {
	entry := activitylog.Entry{
		Type:       enums.ActivityLogAdminAction,
		Action:     action,
		ActorID:    actor.UserIDPtr(),
		EntityType: "refund_request",
		EntityID:   &req.ID,
		Message:    fmt.Sprintf("Refund request for order %s %s", req.OrderSnapshot.OrderNumber, strings.ToLower(string(req.Status))),
		Metadata: map[string]any{
			"orderId":      req.OrderID.String(),
			"orderNumber":  req.OrderSnapshot.OrderNumber,
			"refundAmount": req.RefundAmount.StringFixed(2),
		},
	}
	if err := s.activity.RecordTx(ctx, tx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, req *models.RefundRequest, actor auth.Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefundRequest,
		AggregateID:   req.ID,
		Actor:         actor.Ref(),
		Data: payloads.RefundRequestEvent{
			RefundRequestID: req.ID,
			OrderID:         req.OrderID,
			Status:          req.Status,
			VoucherID:       req.VoucherID,
		},
	})
}

func snapshotOrder(order *models.Order) types.RefundOrderSnapshot {
	return types.RefundOrderSnapshot{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   order.TotalAmount,
		ItemCount:     order.ItemCount,
		PaidAt:        order.PaidAt,
		Customer:      order.CustomerInfo,
	}
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
}

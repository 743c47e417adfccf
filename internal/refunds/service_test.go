package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/internal/activitylog"
	"github.com/tindahub/marketplace-backend/internal/orders"
	"github.com/tindahub/marketplace-backend/internal/vouchers"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

type stubRepo struct {
	orders   map[uuid.UUID]*models.Order
	requests map[uuid.UUID]*models.RefundRequest
	pending  bool
	updates  []map[string]any
	payDate  *time.Time
}

func newStubRepo() *stubRepo {
	return &stubRepo{orders: map[uuid.UUID]*models.Order{}, requests: map[uuid.UUID]*models.RefundRequest{}}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, req *models.RefundRequest) error {
	s.requests[req.ID] = req
	return nil
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *req
	return &clone, nil
}

func (s *stubRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	return s.FindByID(ctx, id)
}

func (s *stubRepo) HasPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return s.pending, nil
}

func (s *stubRepo) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.RefundRequest, error) {
	return nil, nil
}

func (s *stubRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates = append(s.updates, updates)
	return nil
}

func (s *stubRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (s *stubRepo) LatestPaymentDate(ctx context.Context, orderID uuid.UUID) (*time.Time, error) {
	return s.payDate, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubOrders struct {
	cancelled []orders.CancelOrderInput
	refunded  []uuid.UUID
	cancelErr error
}

func (s *stubOrders) CancelOrderTx(ctx context.Context, tx *gorm.DB, input orders.CancelOrderInput) (*orders.CancelResult, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	s.cancelled = append(s.cancelled, input)
	return &orders.CancelResult{}, nil
}

func (s *stubOrders) MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor, note string) (*models.Order, error) {
	s.refunded = append(s.refunded, orderID)
	return &models.Order{ID: orderID}, nil
}

type stubIssuer struct {
	calls []vouchers.IssueRefundInput
}

func (s *stubIssuer) IssueRefundVoucherTx(ctx context.Context, tx *gorm.DB, input vouchers.IssueRefundInput) (*models.Voucher, error) {
	s.calls = append(s.calls, input)
	return &models.Voucher{ID: uuid.New(), DiscountValue: input.Amount}, nil
}

type stubActivity struct {
	entries []activitylog.Entry
}

func (s *stubActivity) RecordTx(ctx context.Context, tx *gorm.DB, entry activitylog.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

var fixedNow = time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)

type harness struct {
	svc      *service
	repo     *stubRepo
	outbox   *stubOutbox
	orders   *stubOrders
	issuer   *stubIssuer
	activity *stubActivity
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     newStubRepo(),
		outbox:   &stubOutbox{},
		orders:   &stubOrders{},
		issuer:   &stubIssuer{},
		activity: &stubActivity{},
	}
	svc, err := NewService(h.repo, stubTxRunner{}, h.outbox, h.orders, h.issuer, h.activity, nil)
	require.NoError(t, err)
	h.svc = svc.(*service)
	h.svc.now = func() time.Time { return fixedNow }
	return h
}

func (h *harness) paidOrder(paidAgo time.Duration) *models.Order {
	paidAt := fixedNow.Add(-paidAgo)
	o := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-5001",
		CustomerID:    uuid.New(),
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
		TotalAmount:   decimal.RequireFromString("780.50"),
		PaidAt:        &paidAt,
	}
	h.repo.orders[o.ID] = o
	return o
}

func customer(id uuid.UUID) auth.Actor {
	return auth.Actor{UserID: id, Role: enums.ActorRoleCustomer}
}

func admin() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func strPtr(s string) *string { return &s }

func TestCreateRequestInsideWindow(t *testing.T) {
	h := newHarness(t)
	order := h.paidOrder(23*time.Hour + 59*time.Minute)

	req, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: order.ID,
		Reason:  "wrong item",
		Actor:   customer(order.CustomerID),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RefundRequestStatusPending, req.Status)
	assert.True(t, req.RefundAmount.Equal(order.TotalAmount))
	assert.Equal(t, "ORD-5001", req.OrderSnapshot.OrderNumber)
	require.Len(t, h.outbox.events, 1)
	assert.Equal(t, enums.EventRefundRequested, h.outbox.events[0].EventType)
}

func TestCreateRequestWindowExpired(t *testing.T) {
	h := newHarness(t)
	order := h.paidOrder(24*time.Hour + time.Minute)

	_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: order.ID,
		Reason:  "late",
		Actor:   customer(order.CustomerID),
	})
	requireCode(t, err, pkgerrors.CodeWindowExpired)
}

func TestCreateRequestWindowStartsAtPaymentDate(t *testing.T) {
	h := newHarness(t)
	order := h.paidOrder(time.Hour)
	payDate := fixedNow.Add(-30 * time.Hour)
	h.repo.payDate = &payDate

	_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: order.ID,
		Reason:  "late",
		Actor:   customer(order.CustomerID),
	})
	requireCode(t, err, pkgerrors.CodeWindowExpired)

	stale := h.paidOrder(30 * time.Hour)
	recent := fixedNow.Add(-2 * time.Hour)
	h.repo.payDate = &recent
	_, err = h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: stale.ID,
		Reason:  "wrong size",
		Actor:   customer(stale.CustomerID),
	})
	require.NoError(t, err)
}

func TestCreateRequestFallsBackToPaidAt(t *testing.T) {
	h := newHarness(t)
	order := h.paidOrder(25 * time.Hour)

	_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: order.ID,
		Reason:  "late",
		Actor:   customer(order.CustomerID),
	})
	requireCode(t, err, pkgerrors.CodeWindowExpired)

	order.PaidAt = nil
	_, err = h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: order.ID,
		Reason:  "late",
		Actor:   customer(order.CustomerID),
	})
	requireCode(t, err, pkgerrors.CodeWindowExpired)
}

func TestCreateRequestRejections(t *testing.T) {
	h := newHarness(t)
	order := h.paidOrder(time.Hour)
	unpaid := h.paidOrder(time.Hour)
	unpaid.PaymentStatus = enums.PaymentStatusPending
	delivered := h.paidOrder(time.Hour)
	delivered.Status = enums.OrderStatusDelivered
	cancelled := h.paidOrder(time.Hour)
	cancelled.Status = enums.OrderStatusCancelled

	cases := []struct {
		name  string
		order *models.Order
		actor auth.Actor
		code  pkgerrors.Code
	}{
		{"not owner", order, customer(uuid.New()), pkgerrors.CodeNotOwner},
		{"not paid", unpaid, customer(unpaid.CustomerID), pkgerrors.CodeNotPaid},
		{"delivered", delivered, customer(delivered.CustomerID), pkgerrors.CodeAlreadyDelivered},
		{"cancelled", cancelled, customer(cancelled.CustomerID), pkgerrors.CodeAlreadyCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
				OrderID: tc.order.ID,
				Reason:  "changed my mind",
				Actor:   tc.actor,
			})
			requireCode(t, err, tc.code)
		})
	}

	h.repo.pending = true
	_, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: order.ID,
		Reason:  "again",
		Actor:   customer(order.CustomerID),
	})
	requireCode(t, err, pkgerrors.CodeDuplicatePending)
}

func (h *harness) pendingRequest(t *testing.T) *models.RefundRequest {
	t.Helper()
	order := h.paidOrder(time.Hour)
	req, err := h.svc.CreateRequest(context.Background(), CreateRequestInput{
		OrderID: order.ID,
		Reason:  "damaged",
		Actor:   customer(order.CustomerID),
	})
	require.NoError(t, err)
	h.outbox.events = nil
	return req
}

func TestApproveRequestCancelsAndIssuesCustomerVoucher(t *testing.T) {
	h := newHarness(t)
	req := h.pendingRequest(t)

	result, err := h.svc.ApproveRequest(context.Background(), ReviewInput{RequestID: req.ID, Actor: admin()})
	require.NoError(t, err)
	assert.Equal(t, enums.RefundRequestStatusApproved, result.Request.Status)
	require.NotNil(t, result.Voucher)

	require.Len(t, h.orders.cancelled, 1)
	assert.Equal(t, enums.CancellationReasonRefundApproved, h.orders.cancelled[0].Reason)
	assert.Equal(t, enums.CancellationInitiatorCustomer, h.orders.cancelled[0].Initiator)
	require.Len(t, h.issuer.calls, 1)
	assert.Equal(t, enums.CancellationInitiatorCustomer, h.issuer.calls[0].Initiator)
	assert.Equal(t, req.RequestedByID, h.issuer.calls[0].AssignedToUserID)
	assert.True(t, h.issuer.calls[0].Amount.Equal(req.RefundAmount))
	assert.Equal(t, []uuid.UUID{req.OrderID}, h.orders.refunded)
	require.Len(t, h.activity.entries, 1)
	assert.Equal(t, enums.ActivityLogAdminAction, h.activity.entries[0].Type)
	require.Len(t, h.outbox.events, 1)
	assert.Equal(t, enums.EventRefundApproved, h.outbox.events[0].EventType)
}

func TestReviewRequiresPendingAndOperator(t *testing.T) {
	h := newHarness(t)
	req := h.pendingRequest(t)

	_, err := h.svc.ApproveRequest(context.Background(), ReviewInput{RequestID: req.ID, Actor: customer(req.RequestedByID)})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = h.svc.RejectRequest(context.Background(), ReviewInput{RequestID: req.ID, Actor: admin()})
	requireCode(t, err, pkgerrors.CodeValidation)

	h.repo.requests[req.ID].Status = enums.RefundRequestStatusApproved
	_, err = h.svc.ApproveRequest(context.Background(), ReviewInput{RequestID: req.ID, Actor: admin()})
	requireCode(t, err, pkgerrors.CodeAlreadyApproved)

	h.repo.requests[req.ID].Status = enums.RefundRequestStatusRejected
	_, err = h.svc.RejectRequest(context.Background(), ReviewInput{RequestID: req.ID, Message: strPtr("no"), Actor: admin()})
	requireCode(t, err, pkgerrors.CodeAlreadyRejected)
}

func TestRejectRequestLeavesOrderUntouched(t *testing.T) {
	h := newHarness(t)
	req := h.pendingRequest(t)

	rejected, err := h.svc.RejectRequest(context.Background(), ReviewInput{
		RequestID: req.ID,
		Message:   strPtr("  item was used  "),
		Actor:     admin(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RefundRequestStatusRejected, rejected.Status)
	assert.Equal(t, "item was used", *rejected.AdminMessage)
	assert.Empty(t, h.orders.cancelled)
	assert.Empty(t, h.issuer.calls)
	assert.Empty(t, h.orders.refunded)
}

func TestApproveRequestPropagatesCancelFailure(t *testing.T) {
	h := newHarness(t)
	req := h.pendingRequest(t)
	h.orders.cancelErr = pkgerrors.New(pkgerrors.CodeAlreadyCancelled, "order is already cancelled")

	_, err := h.svc.ApproveRequest(context.Background(), ReviewInput{RequestID: req.ID, Actor: admin()})
	requireCode(t, err, pkgerrors.CodeAlreadyCancelled)
	assert.Empty(t, h.issuer.calls)
	assert.Empty(t, h.repo.updates)
}

func TestGetRequestHidesOthers(t *testing.T) {
	h := newHarness(t)
	req := h.pendingRequest(t)

	_, err := h.svc.GetRequest(context.Background(), req.ID, customer(uuid.New()))
	requireCode(t, err, pkgerrors.CodeNotFound)

	found, err := h.svc.GetRequest(context.Background(), req.ID, customer(req.RequestedByID))
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)
}

package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/internal/vouchers"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/outbox/payloads"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

type stubRepo struct {
	orders      map[uuid.UUID]*models.Order
	updates     []map[string]any
	events      []*models.OrderStatusEvent
	restored    map[uuid.UUID]int
	adjustments []*models.PayoutAdjustment
	fee         *InvoiceFee
	listFilters ListFilters
	payments    []models.Payment
}

func newStubRepo(orders ...*models.Order) *stubRepo {
	repo := &stubRepo{orders: map[uuid.UUID]*models.Order{}, restored: map[uuid.UUID]int{}}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *o
	return &clone, nil
}

func (s *stubRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubRepo) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, error) {
	s.listFilters = filters
	return nil, nil
}

func (s *stubRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updates = append(s.updates, updates)
	return nil
}

func (s *stubRepo) CreateStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubRepo) ListStatusEvents(ctx context.Context, orderID uuid.UUID, limit int) ([]models.OrderStatusEvent, error) {
	return nil, nil
}

func (s *stubRepo) ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) RestoreInventory(ctx context.Context, productID uuid.UUID, qty int) error {
	s.restored[productID] += qty
	return nil
}

func (s *stubRepo) FindInvoiceFee(ctx context.Context, invoiceID uuid.UUID) (*InvoiceFee, error) {
	if s.fee == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.fee, nil
}

func (s *stubRepo) CreatePayoutAdjustment(ctx context.Context, adj *models.PayoutAdjustment) error {
	s.adjustments = append(s.adjustments, adj)
	return nil
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

func (s *stubOutbox) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type stubRefundIssuer struct {
	calls []vouchers.IssueRefundInput
}

func (s *stubRefundIssuer) IssueRefundVoucherTx(ctx context.Context, tx *gorm.DB, input vouchers.IssueRefundInput) (*models.Voucher, error) {
	s.calls = append(s.calls, input)
	return &models.Voucher{ID: uuid.New(), Code: "RF-TEST", DiscountValue: input.Amount}, nil
}

var fixedNow = time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, repo *stubRepo) (*service, *stubOutbox, *stubRefundIssuer) {
	t.Helper()
	ob := &stubOutbox{}
	refunds := &stubRefundIssuer{}
	svc, err := NewService(repo, stubTxRunner{}, ob, refunds, nil)
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return fixedNow }
	return s, ob, refunds
}

func testOrder(orgID uuid.UUID, status enums.OrderStatus, payment enums.PaymentStatus) *models.Order {
	return &models.Order{
		ID:             uuid.New(),
		OrderNumber:    "ORD-1001",
		OrganizationID: &orgID,
		CustomerID:     uuid.New(),
		Status:         status,
		PaymentStatus:  payment,
		TotalAmount:    decimal.RequireFromString("1500.00"),
	}
}

func sellerOf(orgID uuid.UUID) auth.Actor {
	return auth.Actor{UserID: uuid.New(), OrganizationID: &orgID, Role: enums.ActorRoleSeller}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func statusPtr(s enums.OrderStatus) *enums.OrderStatus { return &s }

func paymentPtr(p enums.PaymentStatus) *enums.PaymentStatus { return &p }

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, stubTxRunner{}, &stubOutbox{}, &stubRefundIssuer{}, nil)
	assert.Error(t, err)
	_, err = NewService(newStubRepo(), nil, &stubOutbox{}, &stubRefundIssuer{}, nil)
	assert.Error(t, err)
	_, err = NewService(newStubRepo(), stubTxRunner{}, nil, &stubRefundIssuer{}, nil)
	assert.Error(t, err)
	_, err = NewService(newStubRepo(), stubTxRunner{}, &stubOutbox{}, nil, nil)
	assert.Error(t, err)
}

func TestUpdateOrderAdvancesStatusAndRecordsEvent(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusPaid)
	repo := newStubRepo(order)
	svc, ob, _ := newTestService(t, repo)

	updated, err := svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		Status:  statusPtr(enums.OrderStatusReady),
		Actor:   sellerOf(orgID),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReady, updated.Status)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, enums.OrderStatusReady, repo.updates[0]["status"])
	require.Len(t, repo.events, 1)
	assert.Equal(t, enums.OrderStatusProcessing, *repo.events[0].FromStatus)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderStatusChanged}, ob.types())
}

func TestUpdateOrderRejectsSkippingAndForeignSeller(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusPending, enums.PaymentStatusPending)
	svc, _, _ := newTestService(t, newStubRepo(order))

	_, err := svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		Status:  statusPtr(enums.OrderStatusDelivered),
		Actor:   sellerOf(orgID),
	})
	requireCode(t, err, pkgerrors.CodeInvalidTransition)

	_, err = svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		Status:  statusPtr(enums.OrderStatusProcessing),
		Actor:   sellerOf(uuid.New()),
	})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateOrderCancelledTargetMustUseCancel(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusPending, enums.PaymentStatusPending)
	svc, _, _ := newTestService(t, newStubRepo(order))

	_, err := svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		Status:  statusPtr(enums.OrderStatusCancelled),
		Actor:   sellerOf(orgID),
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdateOrderFinalOrderNeedsSystemAdmin(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusCancelled, enums.PaymentStatusPending)
	reason := enums.CancellationReasonOther
	order.CancellationReason = &reason
	repo := newStubRepo(order)
	svc, ob, _ := newTestService(t, repo)

	_, err := svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		Status:  statusPtr(enums.OrderStatusProcessing),
		Actor:   auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
	})
	requireCode(t, err, pkgerrors.CodeFinalizedOrder)

	updated, err := svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID: order.ID,
		Status:  statusPtr(enums.OrderStatusProcessing),
		Actor:   auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleSystemAdmin},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, updated.Status)
	assert.Nil(t, updated.CancellationReason)
	require.Len(t, ob.events, 1)
	data := ob.events[0].Data.(payloads.OrderStatusChangedEvent)
	assert.True(t, data.Override)
}

func TestUpdateOrderPaymentStatusStampsPaidAtOnce(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusDownpayment)
	earlier := fixedNow.Add(-48 * time.Hour)
	order.PaidAt = &earlier
	repo := newStubRepo(order)
	svc, ob, _ := newTestService(t, repo)

	admin := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	updated, err := svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID:       order.ID,
		PaymentStatus: paymentPtr(enums.PaymentStatusPaid),
		Actor:         admin,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, updated.PaymentStatus)
	require.NotNil(t, updated.PaidAt)
	assert.True(t, updated.PaidAt.Equal(earlier))
	_, stamped := repo.updates[0]["paid_at"]
	assert.False(t, stamped)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderPaid}, ob.types())

	_, err = svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID:       order.ID,
		PaymentStatus: paymentPtr(enums.PaymentStatusPaid),
		Actor:         sellerOf(orgID),
	})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateOrderRejectsPaymentRegression(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusPaid)
	svc, _, _ := newTestService(t, newStubRepo(order))

	_, err := svc.UpdateOrder(context.Background(), UpdateOrderInput{
		OrderID:       order.ID,
		PaymentStatus: paymentPtr(enums.PaymentStatusPending),
		Actor:         auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
	})
	requireCode(t, err, pkgerrors.CodeInvalidPaymentTransition)
}

func TestCancelOrderRestoresStockItemsOnly(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusPending)
	stockID, preorderID := uuid.New(), uuid.New()
	order.Items = []models.OrderItem{
		{ID: uuid.New(), OrderID: order.ID, ProductID: stockID, InventoryType: enums.InventoryTypeStock, Quantity: 2},
		{ID: uuid.New(), OrderID: order.ID, ProductID: preorderID, InventoryType: enums.InventoryTypePreorder, Quantity: 3},
	}
	repo := newStubRepo(order)
	svc, ob, refunds := newTestService(t, repo)

	result, err := svc.CancelOrder(context.Background(), CancelOrderInput{
		OrderID: order.ID,
		Reason:  enums.CancellationReasonOutOfStock,
		Actor:   sellerOf(orgID),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, result.Order.Status)
	assert.Nil(t, result.RefundVoucher)
	assert.Equal(t, map[uuid.UUID]int{stockID: 2}, repo.restored)
	assert.Empty(t, refunds.calls)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCancelled}, ob.types())
}

func TestCancelOrderBySellerRefundsPaidOrder(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusPaid)
	repo := newStubRepo(order)
	svc, _, refunds := newTestService(t, repo)

	result, err := svc.CancelOrder(context.Background(), CancelOrderInput{
		OrderID: order.ID,
		Reason:  enums.CancellationReasonSellerCancelled,
		Actor:   sellerOf(orgID),
	})
	require.NoError(t, err)
	require.Len(t, refunds.calls, 1)
	assert.Equal(t, order.CustomerID, refunds.calls[0].AssignedToUserID)
	assert.True(t, refunds.calls[0].Amount.Equal(decimal.RequireFromString("1500")))
	assert.Equal(t, enums.CancellationInitiatorSeller, refunds.calls[0].Initiator)
	require.NotNil(t, result.RefundVoucher)
	assert.Equal(t, enums.PaymentStatusRefunded, result.Order.PaymentStatus)
	assert.Equal(t, enums.PaymentStatusRefunded, repo.updates[0]["payment_status"])
}

func TestCancelOrderBySellerRefundsAmountActuallyPaid(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusPaid)
	repo := newStubRepo(order)
	repo.payments = []models.Payment{
		{ID: uuid.New(), OrderID: order.ID, Amount: decimal.RequireFromString("1000.25")},
		{ID: uuid.New(), OrderID: order.ID, Amount: decimal.RequireFromString("399.75")},
	}
	svc, _, refunds := newTestService(t, repo)

	_, err := svc.CancelOrder(context.Background(), CancelOrderInput{
		OrderID: order.ID,
		Reason:  enums.CancellationReasonSellerCancelled,
		Actor:   sellerOf(orgID),
	})
	require.NoError(t, err)
	require.Len(t, refunds.calls, 1)
	assert.True(t, refunds.calls[0].Amount.Equal(decimal.RequireFromString("1400")), refunds.calls[0].Amount.String())
}

func TestCancelOrderSettledOrderCreatesAdjustment(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusReady, enums.PaymentStatusPaid)
	invoiceID := uuid.New()
	order.PayoutInvoiceID = &invoiceID
	repo := newStubRepo(order)
	repo.fee = &InvoiceFee{InvoiceNumber: "PI-20250305-ACME-0001", Percentage: decimal.RequireFromString("10")}
	svc, _, _ := newTestService(t, repo)

	result, err := svc.CancelOrder(context.Background(), CancelOrderInput{
		OrderID: order.ID,
		Reason:  enums.CancellationReasonOther,
		Actor:   auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Adjustment)
	assert.True(t, result.Adjustment.Amount.Equal(decimal.RequireFromString("-1350")), result.Adjustment.Amount.String())
	assert.Equal(t, enums.PayoutAdjustmentCancellation, result.Adjustment.Type)
	assert.Equal(t, enums.PayoutAdjustmentStatusPending, result.Adjustment.Status)
	assert.Equal(t, "PI-20250305-ACME-0001", *result.Adjustment.ReferenceInvoiceNumber)
}

func TestCancelOrderRejections(t *testing.T) {
	orgID := uuid.New()
	delivered := testOrder(orgID, enums.OrderStatusDelivered, enums.PaymentStatusPaid)
	cancelled := testOrder(orgID, enums.OrderStatusCancelled, enums.PaymentStatusPending)
	paid := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusPaid)
	svc, _, _ := newTestService(t, newStubRepo(delivered, cancelled, paid))
	seller := sellerOf(orgID)

	cases := []struct {
		name  string
		input CancelOrderInput
		code  pkgerrors.Code
	}{
		{"delivered", CancelOrderInput{OrderID: delivered.ID, Reason: enums.CancellationReasonOther, Actor: seller}, pkgerrors.CodeAlreadyDelivered},
		{"cancelled", CancelOrderInput{OrderID: cancelled.ID, Reason: enums.CancellationReasonOther, Actor: seller}, pkgerrors.CodeAlreadyCancelled},
		{"bad reason", CancelOrderInput{OrderID: paid.ID, Reason: "BORED", Actor: seller}, pkgerrors.CodeValidation},
		{"customer on paid", CancelOrderInput{
			OrderID: paid.ID,
			Reason:  enums.CancellationReasonCustomerRequest,
			Actor:   auth.Actor{UserID: paid.CustomerID, Role: enums.ActorRoleCustomer},
		}, pkgerrors.CodeStateConflict},
		{"stranger", CancelOrderInput{
			OrderID: paid.ID,
			Reason:  enums.CancellationReasonCustomerRequest,
			Actor:   auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer},
		}, pkgerrors.CodeForbidden},
		{"missing", CancelOrderInput{OrderID: uuid.New(), Reason: enums.CancellationReasonOther, Actor: seller}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CancelOrder(context.Background(), tc.input)
			requireCode(t, err, tc.code)
		})
	}
}

func TestMarkPaidTxStartsFulfilment(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusPending, enums.PaymentStatusPending)
	repo := newStubRepo(order)
	svc, ob, _ := newTestService(t, repo)

	paidAt := fixedNow.Add(-time.Minute)
	updated, err := svc.MarkPaidTx(context.Background(), nil, MarkPaidInput{
		OrderID:    order.ID,
		PaymentRef: "pay_123",
		Amount:     order.TotalAmount,
		PaidAt:     paidAt,
		Actor:      auth.SystemActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, updated.Status)
	assert.Equal(t, enums.PaymentStatusPaid, updated.PaymentStatus)
	require.NotNil(t, updated.PaidAt)
	assert.True(t, updated.PaidAt.Equal(paidAt))
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderPaid, enums.EventOrderStatusChanged}, ob.types())
}

func TestMarkPaidTxRefundsLatePaymentOnCancelledOrder(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusCancelled, enums.PaymentStatusPending)
	repo := newStubRepo(order)
	svc, ob, refunds := newTestService(t, repo)

	updated, err := svc.MarkPaidTx(context.Background(), nil, MarkPaidInput{
		OrderID:    order.ID,
		PaymentRef: "pay_late",
		Amount:     decimal.RequireFromString("1200"),
		Actor:      auth.SystemActor(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, updated.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, updated.PaymentStatus)
	require.NotNil(t, updated.PaidAt)
	assert.Equal(t, enums.PaymentStatusRefunded, repo.updates[0]["payment_status"])

	require.Len(t, refunds.calls, 1)
	assert.Equal(t, order.CustomerID, refunds.calls[0].AssignedToUserID)
	assert.Equal(t, enums.CancellationInitiatorSeller, refunds.calls[0].Initiator)
	assert.True(t, refunds.calls[0].Amount.Equal(decimal.RequireFromString("1200")), refunds.calls[0].Amount.String())
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderPaid}, ob.types())
}

func TestMarkRefundedTxRequiresPaid(t *testing.T) {
	orgID := uuid.New()
	pending := testOrder(orgID, enums.OrderStatusProcessing, enums.PaymentStatusPending)
	paid := testOrder(orgID, enums.OrderStatusDelivered, enums.PaymentStatusPaid)
	svc, _, _ := newTestService(t, newStubRepo(pending, paid))

	_, err := svc.MarkRefundedTx(context.Background(), nil, pending.ID, auth.SystemActor(), "")
	requireCode(t, err, pkgerrors.CodeInvalidPaymentTransition)

	updated, err := svc.MarkRefundedTx(context.Background(), nil, paid.ID, auth.SystemActor(), "refund approved")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, updated.PaymentStatus)
}

func TestGetOrderHidesOtherTenants(t *testing.T) {
	orgID := uuid.New()
	order := testOrder(orgID, enums.OrderStatusPending, enums.PaymentStatusPending)
	svc, _, _ := newTestService(t, newStubRepo(order))

	_, err := svc.GetOrder(context.Background(), order.ID, sellerOf(uuid.New()))
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.GetOrder(context.Background(), order.ID, auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer})
	requireCode(t, err, pkgerrors.CodeNotFound)

	detail, err := svc.GetOrder(context.Background(), order.ID, auth.Actor{UserID: order.CustomerID, Role: enums.ActorRoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, order.ID, detail.Order.ID)
}

func TestListOrdersScopesByRole(t *testing.T) {
	orgID := uuid.New()
	repo := newStubRepo()
	svc, _, _ := newTestService(t, repo)

	_, err := svc.ListOrders(context.Background(), sellerOf(orgID), ListFilters{}, pagination.Params{})
	require.NoError(t, err)
	require.NotNil(t, repo.listFilters.OrganizationID)
	assert.Equal(t, orgID, *repo.listFilters.OrganizationID)

	customer := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer}
	_, err = svc.ListOrders(context.Background(), customer, ListFilters{}, pagination.Params{})
	require.NoError(t, err)
	require.NotNil(t, repo.listFilters.CustomerID)
	assert.Equal(t, customer.UserID, *repo.listFilters.CustomerID)
}

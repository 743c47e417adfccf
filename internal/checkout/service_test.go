package checkout

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
	"github.com/tindahub/marketplace-backend/pkg/config"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/db/dbtest"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	svc    Service
	conn   *gorm.DB
	outbox *stubOutbox
	buyer  auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	pub := &stubOutbox{}
	voucherSvc, err := vouchers.NewService(vouchers.NewRepository(conn), pub, nil)
	require.NoError(t, err)
	cfg := config.CheckoutConfig{ShippingFee: decimal.RequireFromString("50.00"), SessionTTL: 30 * time.Minute}
	svc, err := NewService(NewRepository(conn), db.NewFromGorm(conn), voucherSvc, pub, cfg, nil)
	require.NoError(t, err)
	return &fixture{
		svc:    svc,
		conn:   conn,
		outbox: pub,
		buyer:  auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer},
	}
}

func (f *fixture) product(t *testing.T, orgID uuid.UUID, price string, inv enums.InventoryType, count int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Item " + price,
		Price:          decimal.RequireFromString(price),
		InventoryType:  inv,
		InventoryCount: count,
	}
	require.NoError(t, f.conn.Create(p).Error)
	return p
}

func (f *fixture) addToCart(t *testing.T, p *models.Product, qty int) {
	t.Helper()
	item := &models.CartItem{ID: uuid.New(), UserID: f.buyer.UserID, ProductID: p.ID, Quantity: qty}
	require.NoError(t, f.conn.Omit("Product").Create(item).Error)
}

func (f *fixture) voucher(t *testing.T, code string, kind enums.DiscountType, value string, orgID *uuid.UUID) *models.Voucher {
	t.Helper()
	v := &models.Voucher{
		ID:             uuid.New(),
		Code:           code,
		DiscountType:   kind,
		DiscountValue:  decimal.RequireFromString(value),
		ValidFrom:      time.Now().UTC().Add(-time.Hour),
		OrganizationID: orgID,
		IsActive:       true,
	}
	require.NoError(t, f.conn.Create(v).Error)
	return v
}

func (f *fixture) place(t *testing.T, code *string) (*PlaceOrderResult, error) {
	t.Helper()
	return f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		Actor:       f.buyer,
		Customer:    types.CustomerSnapshot{Name: "Maria Santos", Email: "maria@example.com"},
		VoucherCode: code,
	})
}

func orderFor(t *testing.T, res *PlaceOrderResult, orgID uuid.UUID) models.Order {
	t.Helper()
	for _, o := range res.Orders {
		if o.OrganizationID != nil && *o.OrganizationID == orgID {
			return o
		}
	}
	t.Fatalf("no order for organization %s", orgID)
	return models.Order{}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
	return typed
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestPlaceOrderSingleOrganization(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()
	stock := f.product(t, org, "100.00", enums.InventoryTypeStock, 5)
	pre := f.product(t, org, "50.00", enums.InventoryTypePreorder, 0)
	f.addToCart(t, stock, 2)
	f.addToCart(t, pre, 1)

	res, err := f.place(t, nil)
	require.NoError(t, err)
	require.Nil(t, res.Session)
	require.Len(t, res.Orders, 1)

	order := res.Orders[0]
	assert.Equal(t, res.PaymentReference, order.OrderNumber)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{6}$`, order.OrderNumber)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.True(t, dec("250").Equal(order.SubtotalAmount))
	assert.True(t, dec("300").Equal(order.TotalAmount))
	assert.True(t, dec("300").Equal(res.Total))
	assert.Equal(t, 3, order.ItemCount)
	assert.Equal(t, "maria@example.com", order.CustomerInfo.Email)
	assert.Equal(t, f.buyer.UserID, order.CustomerInfo.ID)
	require.NotNil(t, order.CheckoutExpiresAt)

	var reloaded models.Product
	require.NoError(t, f.conn.First(&reloaded, "id = ?", stock.ID).Error)
	assert.Equal(t, 3, reloaded.InventoryCount)

	var items int64
	require.NoError(t, f.conn.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&items).Error)
	assert.EqualValues(t, 2, items)

	var events []models.OrderStatusEvent
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].FromStatus)
	assert.Equal(t, enums.OrderStatusPending, events[0].ToStatus)

	var remaining int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("user_id = ?", f.buyer.UserID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventOrderCreated, f.outbox.events[0].EventType)
}

func TestPlaceOrderSplitsByOrganization(t *testing.T) {
	f := newFixture(t)
	orgA, orgB := uuid.New(), uuid.New()
	f.addToCart(t, f.product(t, orgA, "300.00", enums.InventoryTypeStock, 10), 1)
	f.addToCart(t, f.product(t, orgB, "100.00", enums.InventoryTypeStock, 10), 1)

	res, err := f.place(t, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Len(t, res.Orders, 2)
	assert.Equal(t, res.Session.ID.String(), res.PaymentReference)
	assert.Regexp(t, `^CS-[0-9A-F]{10}$`, res.Session.Reference)
	assert.True(t, dec("500").Equal(res.Session.TotalAmount))
	for _, o := range res.Orders {
		require.NotNil(t, o.CheckoutSessionID)
		assert.Equal(t, res.Session.ID, *o.CheckoutSessionID)
	}
	assert.True(t, dec("350").Equal(orderFor(t, res, orgA).TotalAmount))
	assert.True(t, dec("150").Equal(orderFor(t, res, orgB).TotalAmount))
	assert.Len(t, f.outbox.events, 2)
}

func TestPlaceOrderAllocatesPlatformVoucher(t *testing.T) {
	f := newFixture(t)
	orgA, orgB := uuid.New(), uuid.New()
	f.addToCart(t, f.product(t, orgA, "300.00", enums.InventoryTypeStock, 10), 1)
	f.addToCart(t, f.product(t, orgB, "100.00", enums.InventoryTypeStock, 10), 1)
	v := f.voucher(t, "SAVE10", enums.DiscountTypePercentage, "10", nil)

	code := "save10"
	res, err := f.place(t, &code)
	require.NoError(t, err)

	a, b := orderFor(t, res, orgA), orderFor(t, res, orgB)
	assert.True(t, dec("30").Equal(a.VoucherDiscount))
	assert.True(t, dec("10").Equal(b.VoucherDiscount))
	assert.True(t, dec("320").Equal(a.TotalAmount))
	assert.True(t, dec("140").Equal(b.TotalAmount))
	require.NotNil(t, a.VoucherID)
	assert.Equal(t, v.ID, *a.VoucherID)

	var reloaded models.Voucher
	require.NoError(t, f.conn.First(&reloaded, "id = ?", v.ID).Error)
	assert.Equal(t, 1, reloaded.UsedCount)

	var usages []models.VoucherUsage
	require.NoError(t, f.conn.Where("voucher_id = ?", v.ID).Find(&usages).Error)
	require.Len(t, usages, 1)
	assert.True(t, dec("40").Equal(usages[0].DiscountAmount))
}

func TestPlaceOrderOrganizationVoucherTouchesOwnOrder(t *testing.T) {
	f := newFixture(t)
	orgA, orgB := uuid.New(), uuid.New()
	f.addToCart(t, f.product(t, orgA, "300.00", enums.InventoryTypeStock, 10), 1)
	f.addToCart(t, f.product(t, orgB, "100.00", enums.InventoryTypeStock, 10), 1)
	v := f.voucher(t, "BSTORE20", enums.DiscountTypeFixedAmount, "20", &orgB)

	code := "BSTORE20"
	res, err := f.place(t, &code)
	require.NoError(t, err)

	a, b := orderFor(t, res, orgA), orderFor(t, res, orgB)
	assert.True(t, a.VoucherDiscount.IsZero())
	assert.Nil(t, a.VoucherID)
	assert.True(t, dec("20").Equal(b.VoucherDiscount))
	require.NotNil(t, b.VoucherID)
	assert.Equal(t, v.ID, *b.VoucherID)

	var usage models.VoucherUsage
	require.NoError(t, f.conn.Where("voucher_id = ?", v.ID).First(&usage).Error)
	assert.Equal(t, b.ID, usage.OrderID)
}

func TestPlaceOrderPricesFreeShippingAndFreeItem(t *testing.T) {
	t.Run("free shipping", func(t *testing.T) {
		f := newFixture(t)
		orgA, orgB := uuid.New(), uuid.New()
		f.addToCart(t, f.product(t, orgA, "80.00", enums.InventoryTypeStock, 10), 1)
		f.addToCart(t, f.product(t, orgB, "60.00", enums.InventoryTypeStock, 10), 1)
		f.voucher(t, "SHIPFREE", enums.DiscountTypeFreeShipping, "0", nil)

		code := "SHIPFREE"
		res, err := f.place(t, &code)
		require.NoError(t, err)
		for _, o := range res.Orders {
			assert.True(t, dec("50").Equal(o.VoucherDiscount))
			assert.True(t, o.SubtotalAmount.Equal(o.TotalAmount))
		}
	})

	t.Run("free item", func(t *testing.T) {
		f := newFixture(t)
		org := uuid.New()
		f.addToCart(t, f.product(t, org, "80.00", enums.InventoryTypeStock, 10), 2)
		f.addToCart(t, f.product(t, org, "35.00", enums.InventoryTypePreorder, 0), 1)
		f.voucher(t, "FREEBIE", enums.DiscountTypeFreeItem, "0", nil)

		code := "FREEBIE"
		res, err := f.place(t, &code)
		require.NoError(t, err)
		order := res.Orders[0]
		assert.True(t, dec("35").Equal(order.VoucherDiscount))
		assert.True(t, dec("210").Equal(order.TotalAmount))
	})
}

func TestPlaceOrderRejectsInvalidVoucher(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "100.00", enums.InventoryTypeStock, 4)
	f.addToCart(t, p, 1)

	code := "NOPE"
	_, err := f.place(t, &code)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, map[string]any{"code": enums.VoucherNotFound}, typed.Details())

	var orders int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
	var reloaded models.Product
	require.NoError(t, f.conn.First(&reloaded, "id = ?", p.ID).Error)
	assert.Equal(t, 4, reloaded.InventoryCount)
}

func TestPlaceOrderConflictsOnUnavailableItems(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "100.00", enums.InventoryTypeStock, 1)
	f.addToCart(t, p, 2)

	_, err := f.place(t, nil)
	typed := requireCode(t, err, pkgerrors.CodeConflict)
	assert.Equal(t, map[string]any{"product_ids": []uuid.UUID{p.ID}}, typed.Details())

	var remaining int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("user_id = ?", f.buyer.UserID).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}

func TestPlaceOrderGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.place(t, nil)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		Actor:    auth.SystemActor(),
		Customer: types.CustomerSnapshot{Name: "x", Email: "x@example.com"},
	})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.PlaceOrder(context.Background(), PlaceOrderInput{Actor: f.buyer})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestRepositoryExpiresStaleCheckouts(t *testing.T) {
	f := newFixture(t)
	orgA, orgB := uuid.New(), uuid.New()
	f.addToCart(t, f.product(t, orgA, "10.00", enums.InventoryTypeStock, 5), 1)
	f.addToCart(t, f.product(t, orgB, "20.00", enums.InventoryTypeStock, 5), 1)
	res, err := f.place(t, nil)
	require.NoError(t, err)

	repo := NewRepository(f.conn)
	ctx := context.Background()
	early, err := repo.ListExpiredOrders(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, early)

	later := time.Now().UTC().Add(time.Hour)
	expired, err := repo.ListExpiredOrders(ctx, later, 10)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	n, err := repo.ExpireSessions(ctx, later)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	var session models.CheckoutSession
	require.NoError(t, f.conn.First(&session, "id = ?", res.Session.ID).Error)
	assert.Equal(t, enums.CheckoutSessionStatusExpired, session.Status)
}

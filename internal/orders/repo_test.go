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

	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/db/dbtest"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

func seedProduct(t *testing.T, conn *gorm.DB, orgID uuid.UUID, inventoryType enums.InventoryType, count int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Rice 5kg",
		Price:          decimal.RequireFromString("250"),
		InventoryType:  inventoryType,
		InventoryCount: count,
	}
	require.NoError(t, conn.Create(p).Error)
	return p
}

func seedOrder(t *testing.T, conn *gorm.DB, orgID uuid.UUID, number string, createdAt time.Time, items ...models.OrderItem) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    number,
		OrganizationID: &orgID,
		CustomerID:     uuid.New(),
		Status:         enums.OrderStatusPending,
		PaymentStatus:  enums.PaymentStatusPending,
		SubtotalAmount: decimal.RequireFromString("500"),
		TotalAmount:    decimal.RequireFromString("500"),
		OrderDate:      createdAt,
		CreatedAt:      createdAt,
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = o.ID
		items[i].ProductName = "item"
		items[i].UnitPrice = decimal.RequireFromString("250")
		items[i].LineTotal = items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
	}
	o.Items = items
	require.NoError(t, conn.Create(o).Error)
	return o
}

func newDBService(t *testing.T, conn *gorm.DB) *service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), db.NewFromGorm(conn), &stubOutbox{}, &stubRefundIssuer{}, nil)
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestCancelOrderRestoresInventoryInDatabase(t *testing.T) {
	conn := dbtest.Open(t)
	orgID := uuid.New()
	stock := seedProduct(t, conn, orgID, enums.InventoryTypeStock, 48)
	preorder := seedProduct(t, conn, orgID, enums.InventoryTypePreorder, 0)
	order := seedOrder(t, conn, orgID, "ORD-2001", fixedNow,
		models.OrderItem{ProductID: stock.ID, InventoryType: enums.InventoryTypeStock, Quantity: 2},
		models.OrderItem{ProductID: preorder.ID, InventoryType: enums.InventoryTypePreorder, Quantity: 4},
	)
	svc := newDBService(t, conn)

	_, err := svc.CancelOrder(context.Background(), CancelOrderInput{
		OrderID: order.ID,
		Reason:  enums.CancellationReasonOutOfStock,
		Actor:   sellerOf(orgID),
	})
	require.NoError(t, err)

	var reloadedStock, reloadedPreorder models.Product
	require.NoError(t, conn.First(&reloadedStock, "id = ?", stock.ID).Error)
	require.NoError(t, conn.First(&reloadedPreorder, "id = ?", preorder.ID).Error)
	assert.Equal(t, 50, reloadedStock.InventoryCount)
	assert.Equal(t, 0, reloadedPreorder.InventoryCount)

	reloaded, err := NewRepository(conn).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.Status)
	require.NotNil(t, reloaded.CancellationReason)
	assert.Equal(t, enums.CancellationReasonOutOfStock, *reloaded.CancellationReason)
	assert.Len(t, reloaded.Items, 2)
}

func TestMarkPaidStampsPaidAtOnce(t *testing.T) {
	conn := dbtest.Open(t)
	orgID := uuid.New()
	order := seedOrder(t, conn, orgID, "ORD-2002", fixedNow)
	svc := newDBService(t, conn)
	repo := NewRepository(conn)

	first := fixedNow.Add(-time.Hour)
	err := db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := svc.MarkPaidTx(context.Background(), tx, MarkPaidInput{
			OrderID: order.ID, PaymentRef: "pay_1", Amount: order.TotalAmount, PaidAt: first, Actor: auth.SystemActor(),
		})
		return err
	})
	require.NoError(t, err)

	err = db.NewFromGorm(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := svc.MarkPaidTx(context.Background(), tx, MarkPaidInput{
			OrderID: order.ID, PaymentRef: "pay_1", Amount: order.TotalAmount, PaidAt: fixedNow, Actor: auth.SystemActor(),
		})
		return err
	})
	require.NoError(t, err)

	reloaded, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	require.NotNil(t, reloaded.PaidAt)
	assert.True(t, reloaded.PaidAt.Equal(first))

	events, err := repo.ListStatusEvents(context.Background(), order.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListStatusEventsMostRecentFirst(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	orderID := uuid.New()

	for i := 0; i < 7; i++ {
		require.NoError(t, repo.CreateStatusEvent(context.Background(), &models.OrderStatusEvent{
			ID:            uuid.New(),
			OrderID:       orderID,
			ToStatus:      enums.OrderStatusProcessing,
			PaymentStatus: enums.PaymentStatusPending,
			ActorRole:     string(enums.ActorRoleSeller),
			CreatedAt:     fixedNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := repo.ListStatusEvents(context.Background(), orderID, RecentHistoryLimit)
	require.NoError(t, err)
	require.Len(t, recent, RecentHistoryLimit)
	assert.True(t, recent[0].CreatedAt.Equal(fixedNow.Add(6*time.Minute)))
	assert.True(t, recent[4].CreatedAt.Equal(fixedNow.Add(2*time.Minute)))
}

func TestRepositoryListPaginatesNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	orgID := uuid.New()
	for i := 0; i < 3; i++ {
		seedOrder(t, conn, orgID, "ORD-300"+string(rune('0'+i)), fixedNow.Add(time.Duration(i)*time.Hour))
	}
	seedOrder(t, conn, uuid.New(), "ORD-3999", fixedNow)

	rows, err := repo.List(context.Background(), ListFilters{OrganizationID: &orgID}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	page, next := pagination.Trim(rows, 2, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	require.Len(t, page, 2)
	assert.Equal(t, "ORD-3002", page[0].OrderNumber)
	require.NotEmpty(t, next)

	rows, err = repo.List(context.Background(), ListFilters{OrganizationID: &orgID}, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ORD-3000", rows[0].OrderNumber)
}

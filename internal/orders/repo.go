package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their status log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error
	ListStatusEvents(ctx context.Context, orderID uuid.UUID, limit int) ([]models.OrderStatusEvent, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	RestoreInventory(ctx context.Context, productID uuid.UUID, qty int) error
	FindInvoiceFee(ctx context.Context, invoiceID uuid.UUID) (*InvoiceFee, error)
	CreatePayoutAdjustment(ctx context.Context, adj *models.PayoutAdjustment) error
}

// InvoiceFee is the fee context of the payout invoice an order was settled on.
type InvoiceFee struct {
	InvoiceNumber string
	Percentage    decimal.Decimal
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND is_deleted = ?", id, false).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate locks the order row for the rest of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", order.ID).Order("created_at ASC").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("is_deleted = ?", false)
	if filters.CustomerID != nil {
		q = q.Where("customer_id = ?", *filters.CustomerID)
	}
	if filters.OrganizationID != nil {
		q = q.Where("organization_id = ?", *filters.OrganizationID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *filters.PaymentStatus)
	}

	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}

	var rows []models.Order
	err = q.Scopes(page).Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListStatusEvents returns the log most recent first; limit <= 0 returns all.
func (r *repository) ListStatusEvents(ctx context.Context, orderID uuid.UUID, limit int) ([]models.OrderStatusEvent, error) {
	q := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []models.OrderStatusEvent
	err := q.Find(&events).Error
	return events, err
}

func (r *repository) ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("payment_date DESC").
		Find(&payments).Error
	return payments, err
}

// RestoreInventory adds qty back to the product counter in one statement.
func (r *repository) RestoreInventory(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"inventory_count": gorm.Expr("inventory_count + ?", qty),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *repository) FindInvoiceFee(ctx context.Context, invoiceID uuid.UUID) (*InvoiceFee, error) {
	var invoice models.PayoutInvoice
	err := r.db.WithContext(ctx).
		Select("invoice_number", "platform_fee_percentage").
		Where("id = ?", invoiceID).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &InvoiceFee{InvoiceNumber: invoice.InvoiceNumber, Percentage: invoice.PlatformFeePercentage}, nil
}

func (r *repository) CreatePayoutAdjustment(ctx context.Context, adj *models.PayoutAdjustment) error {
	return r.db.WithContext(ctx).Create(adj).Error
}

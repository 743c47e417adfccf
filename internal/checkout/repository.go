package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
)

// Repository persists the records a checkout produces.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSession(ctx context.Context, session *models.CheckoutSession) error
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	ListCartItems(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
	ListExpiredOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ExpireSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSession(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// CreateOrder inserts the order together with its items.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateStatusEvent(ctx context.Context, event *models.OrderStatusEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// DecrementStock takes qty units only while enough remain; false means the
// product sold out underneath the checkout.
func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND inventory_type = ? AND inventory_count >= ? AND is_deleted = ?", productID, enums.InventoryTypeStock, qty, false).
		Update("inventory_count", gorm.Expr("inventory_count - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListCartItems(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}

// ListExpiredOrders returns unpaid orders whose checkout window closed before cutoff.
func (r *repository) ListExpiredOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND is_deleted = ?", enums.OrderStatusPending, enums.PaymentStatusPending, false).
		Where("checkout_expires_at IS NOT NULL AND checkout_expires_at < ?", cutoff).
		Order("checkout_expires_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) ExpireSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.CheckoutSessionStatusPending, cutoff).
		Updates(map[string]any{"status": enums.CheckoutSessionStatusExpired, "updated_at": cutoff})
	return res.RowsAffected, res.Error
}

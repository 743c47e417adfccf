package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
)

// Repository resolves webhook targets and records settled payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	ListSessionOrders(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error)
	PaymentExists(ctx context.Context, referenceNo string) (bool, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status enums.CheckoutSessionStatus) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("order_number = ? AND is_deleted = ?", orderNumber, false).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessionOrders returns the group in a stable order so allocation ties are deterministic.
func (r *repository) ListSessionOrders(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("checkout_session_id = ? AND is_deleted = ?", sessionID, false).
		Order("created_at ASC").
		Order("order_number ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) PaymentExists(ctx context.Context, referenceNo string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("reference_no = ?", referenceNo).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status enums.CheckoutSessionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

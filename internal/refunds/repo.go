package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

// Repository defines persistence for refund requests and the order reads they need.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.RefundRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	HasPending(ctx context.Context, orderID uuid.UUID) (bool, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.RefundRequest, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LatestPaymentDate(ctx context.Context, orderID uuid.UUID) (*time.Time, error)
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

func (r *repository) Create(ctx context.Context, req *models.RefundRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var req models.RefundRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var req models.RefundRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) HasPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("order_id = ? AND status = ?", orderID, enums.RefundRequestStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.RefundRequest, error) {
	q := r.db.WithContext(ctx).Model(&models.RefundRequest{})
	if filters.RequestedByID != nil {
		q = q.Where("requested_by_id = ?", *filters.RequestedByID)
	}
	if filters.OrderID != nil {
		q = q.Where("order_id = ?", *filters.OrderID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}

	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}

	var rows []models.RefundRequest
	err = q.Scopes(page).Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", orderID, false).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LatestPaymentDate returns the newest settled payment for the order, or nil.
func (r *repository) LatestPaymentDate(ctx context.Context, orderID uuid.UUID) (*time.Time, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("payment_date DESC").
		Limit(1).
		Find(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == uuid.Nil {
		return nil, nil
	}
	at := payment.PaymentDate
	return &at, nil
}

package vouchers

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

// Repository persists vouchers and their usage records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, voucher *models.Voucher) error
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Voucher, error)
	CountUserUsages(ctx context.Context, voucherID, userID uuid.UUID) (int64, error)
	IncrementUsage(ctx context.Context, voucherID uuid.UUID) (bool, error)
	CreateUsage(ctx context.Context, usage *models.VoucherUsage) error
}

// ListFilters narrows admin voucher listings.
type ListFilters struct {
	OrganizationID *uuid.UUID
	DiscountType   *enums.DiscountType
	AssignedTo     *uuid.UUID
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

func (r *repository) Create(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

// FindByCode matches case-insensitively and includes soft-deleted rows so the
// caller can report them as inactive.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Where("code = ?", NormalizeCode(code)).
		First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&voucher).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Voucher, error) {
	q := r.db.WithContext(ctx).Model(&models.Voucher{}).Where("is_deleted = ?", false)
	if filters.OrganizationID != nil {
		q = q.Where("organization_id = ?", *filters.OrganizationID)
	}
	if filters.DiscountType != nil {
		q = q.Where("discount_type = ?", *filters.DiscountType)
	}
	if filters.AssignedTo != nil {
		q = q.Where("assigned_to_user_id = ?", *filters.AssignedTo)
	}

	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}

	var rows []models.Voucher
	err = q.Scopes(page).Find(&rows).Error
	return rows, err
}

func (r *repository) CountUserUsages(ctx context.Context, voucherID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VoucherUsage{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		Count(&count).Error
	return count, err
}

// IncrementUsage bumps used_count only while the total limit allows it.
func (r *repository) IncrementUsage(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", voucherID).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.VoucherUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// NormalizeCode upper-cases and trims a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

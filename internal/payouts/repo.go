package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

// Repository covers invoices, adjustments, settings and the order and
// organization reads the batch needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetSettings(ctx context.Context) (*models.PayoutSettings, error)
	UpdateSettings(ctx context.Context, updates map[string]any) error

	ListOrganizations(ctx context.Context) ([]models.Organization, error)
	FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	UpdateOrganizationFee(ctx context.Context, id uuid.UUID, pct *decimal.Decimal) error

	InvoiceExists(ctx context.Context, orgID uuid.UUID, periodStart time.Time) (bool, error)
	CountOrganizationInvoices(ctx context.Context, orgID uuid.UUID) (int64, error)
	CollectPaidOrders(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]models.Order, error)
	AttachOrders(ctx context.Context, orderIDs []uuid.UUID, invoiceID uuid.UUID) error

	CreateInvoice(ctx context.Context, invoice *models.PayoutInvoice) error
	FindInvoice(ctx context.Context, id uuid.UUID) (*models.PayoutInvoice, error)
	FindInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*models.PayoutInvoice, error)
	UpdateInvoice(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListInvoices(ctx context.Context, filters InvoiceFilters, params pagination.Params) ([]models.PayoutInvoice, error)

	PendingAdjustments(ctx context.Context, orgID uuid.UUID) ([]models.PayoutAdjustment, error)
	CreateAdjustment(ctx context.Context, adj *models.PayoutAdjustment) error
	ApplyAdjustments(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID) error
	ListAdjustments(ctx context.Context, filters AdjustmentFilters, params pagination.Params) ([]models.PayoutAdjustment, error)
}

type InvoiceFilters struct {
	OrganizationID *uuid.UUID
	Status         *enums.PayoutInvoiceStatus
	PeriodStart    *time.Time
}

type AdjustmentFilters struct {
	OrganizationID *uuid.UUID
	Status         *enums.PayoutAdjustmentStatus
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

func (r *repository) GetSettings(ctx context.Context) (*models.PayoutSettings, error) {
	var settings models.PayoutSettings
	if err := r.db.WithContext(ctx).Where("id = ?", models.PayoutSettingsID).First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repository) UpdateSettings(ctx context.Context, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.PayoutSettings{}).
		Where("id = ?", models.PayoutSettingsID).
		Updates(updates).Error
}

func (r *repository) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	var rows []models.Organization
	err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) UpdateOrganizationFee(ctx context.Context, id uuid.UUID, pct *decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"custom_platform_fee_percentage": pct,
			"updated_at":                     time.Now().UTC(),
		}).Error
}

func (r *repository) InvoiceExists(ctx context.Context, orgID uuid.UUID, periodStart time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PayoutInvoice{}).
		Where("organization_id = ? AND period_start = ?", orgID, periodStart).
		Count(&count).Error
	return count > 0, err
}

// CountOrganizationInvoices feeds the per-org invoice sequence. The
// invoice_number unique key catches any race between two batches.
func (r *repository) CountOrganizationInvoices(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PayoutInvoice{}).
		Where("organization_id = ?", orgID).
		Count(&count).Error
	return count, err
}

// CollectPaidOrders returns PAID, non-cancelled orders dated in [from, to)
// that no invoice has claimed.
func (r *repository) CollectPaidOrders(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND is_deleted = ?", orgID, false).
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Where("status <> ?", enums.OrderStatusCancelled).
		Where("payout_invoice_id IS NULL").
		Where("order_date >= ? AND order_date < ?", from, to).
		Order("order_date ASC").
		Order("order_number ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) AttachOrders(ctx context.Context, orderIDs []uuid.UUID, invoiceID uuid.UUID) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		Updates(map[string]any{"payout_invoice_id": invoiceID, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.PayoutInvoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindInvoice(ctx context.Context, id uuid.UUID) (*models.PayoutInvoice, error) {
	var invoice models.PayoutInvoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*models.PayoutInvoice, error) {
	var invoice models.PayoutInvoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) UpdateInvoice(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.PayoutInvoice{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListInvoices(ctx context.Context, filters InvoiceFilters, params pagination.Params) ([]models.PayoutInvoice, error) {
	q := r.db.WithContext(ctx).Model(&models.PayoutInvoice{})
	if filters.OrganizationID != nil {
		q = q.Where("organization_id = ?", *filters.OrganizationID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.PeriodStart != nil {
		q = q.Where("period_start = ?", *filters.PeriodStart)
	}

	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}

	var rows []models.PayoutInvoice
	err = q.Scopes(page).Find(&rows).Error
	return rows, err
}

func (r *repository) PendingAdjustments(ctx context.Context, orgID uuid.UUID) ([]models.PayoutAdjustment, error) {
	var rows []models.PayoutAdjustment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND status = ?", orgID, enums.PayoutAdjustmentStatusPending).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateAdjustment(ctx context.Context, adj *models.PayoutAdjustment) error {
	return r.db.WithContext(ctx).Create(adj).Error
}

func (r *repository) ApplyAdjustments(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PayoutAdjustment{}).
		Where("id IN ? AND status = ?", ids, enums.PayoutAdjustmentStatusPending).
		Updates(map[string]any{
			"status":             enums.PayoutAdjustmentStatusApplied,
			"applied_invoice_id": invoiceID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repository) ListAdjustments(ctx context.Context, filters AdjustmentFilters, params pagination.Params) ([]models.PayoutAdjustment, error) {
	q := r.db.WithContext(ctx).Model(&models.PayoutAdjustment{})
	if filters.OrganizationID != nil {
		q = q.Where("organization_id = ?", *filters.OrganizationID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}

	page, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}

	var rows []models.PayoutAdjustment
	err = q.Scopes(page).Find(&rows).Error
	return rows, err
}

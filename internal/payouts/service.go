// Package payouts settles paid orders into weekly per-organization invoices.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/internal/activitylog"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/metrics"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/outbox/payloads"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type activityRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, entry activitylog.Entry) error
}

// documentDispatcher performs the best-effort side effects around an invoice.
type documentDispatcher interface {
	InvoiceCreated(ctx context.Context, invoice *models.PayoutInvoice) error
	InvoicePaid(ctx context.Context, invoice *models.PayoutInvoice) error
}

type Service interface {
	GeneratePayoutInvoices(ctx context.Context, input GenerateInput) (*RunResult, error)
	MarkInvoicePaid(ctx context.Context, input MarkPaidInput) (*models.PayoutInvoice, error)
	RevertPayoutStatus(ctx context.Context, input RevertInput) (*models.PayoutInvoice, error)
	GetInvoice(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PayoutInvoice, error)
	ListInvoices(ctx context.Context, actor auth.Actor, filters InvoiceFilters, params pagination.Params) (*InvoiceList, error)

	CreateAdjustment(ctx context.Context, input CreateAdjustmentInput) (*models.PayoutAdjustment, error)
	ListAdjustments(ctx context.Context, actor auth.Actor, filters AdjustmentFilters, params pagination.Params) (*AdjustmentList, error)

	UpdateOrgPlatformFee(ctx context.Context, input UpdateFeeInput) (*models.Organization, error)
	GetPayoutSettings(ctx context.Context, actor auth.Actor) (*models.PayoutSettings, error)
	UpdatePayoutSettings(ctx context.Context, input UpdateSettingsInput) (*models.PayoutSettings, error)
}

type MarkPaidInput struct {
	InvoiceID        uuid.UUID
	PaymentReference *string
	Note             *string
	Actor            auth.Actor
}

type RevertInput struct {
	InvoiceID uuid.UUID
	Reason    string
	Actor     auth.Actor
}

type CreateAdjustmentInput struct {
	OrganizationID uuid.UUID
	Amount         decimal.Decimal
	Description    string
	Actor          auth.Actor
}

// UpdateFeeInput sets an organization's fee override. A nil percentage
// falls back to the platform default.
type UpdateFeeInput struct {
	OrganizationID uuid.UUID
	Percentage     *decimal.Decimal
	Actor          auth.Actor
}

type UpdateSettingsInput struct {
	DefaultFeePercentage *decimal.Decimal
	CutoffDayOfWeek      *int
	PayoutDayOfWeek      *int
	MinimumPayoutAmount  *decimal.Decimal
	Actor                auth.Actor
}

type InvoiceList struct {
	Invoices   []models.PayoutInvoice `json:"invoices"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type AdjustmentList struct {
	Adjustments []models.PayoutAdjustment `json:"adjustments"`
	NextCursor  string                    `json:"next_cursor,omitempty"`
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	activity activityRecorder
	docs     documentDispatcher
	metrics  *metrics.PayoutMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the payout service. docs may be nil, in which case no
// PDFs or emails are produced.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, activity activityRecorder, docs documentDispatcher, m *metrics.PayoutMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if activity == nil {
		return nil, fmt.Errorf("activity recorder required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   outbox,
		activity: activity,
		docs:     docs,
		metrics:  m,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// MarkInvoicePaid records the operator's bank transfer. It is the only path
// that stamps paid_at and paid_by_id.
func (s *service) MarkInvoicePaid(ctx context.Context, input MarkPaidInput) (*models.PayoutInvoice, error) {
	if !input.Actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can confirm payouts")
	}

	var paid *models.PayoutInvoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := s.loadInvoiceForUpdate(ctx, repo, input.InvoiceID)
		if err != nil {
			return err
		}
		switch invoice.Status {
		case enums.PayoutInvoiceStatusPending, enums.PayoutInvoiceStatusProcessing:
		case enums.PayoutInvoiceStatusPaid:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is already paid")
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot pay a %s invoice", strings.ToLower(string(invoice.Status))))
		}

		now := s.now()
		note := "payout confirmed"
		if input.Note != nil && strings.TrimSpace(*input.Note) != "" {
			note = strings.TrimSpace(*input.Note)
		}
		history := invoice.StatusHistory.Append(string(enums.PayoutInvoiceStatusPaid), now, input.Actor.UserIDPtr(), note)
		reference := trimmedPtr(input.PaymentReference)
		err = repo.UpdateInvoice(ctx, invoice.ID, map[string]any{
			"status":            enums.PayoutInvoiceStatusPaid,
			"paid_at":           now,
			"paid_by_id":        input.Actor.UserIDPtr(),
			"payment_reference": reference,
			"status_history":    history,
			"updated_at":        now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice paid")
		}
		invoice.Status = enums.PayoutInvoiceStatusPaid
		invoice.PaidAt = &now
		invoice.PaidByID = input.Actor.UserIDPtr()
		invoice.PaymentReference = reference
		invoice.StatusHistory = history

		if err := s.audit(ctx, tx, invoice, "payout_invoice.paid", input.Actor, nil); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventPayoutInvoicePaid, invoice, input.Actor, ""); err != nil {
			return err
		}
		paid = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.docs != nil {
		if err := s.docs.InvoicePaid(ctx, paid); err != nil && s.logg != nil {
			ctx = s.logg.WithFields(ctx, map[string]any{"invoice_id": paid.ID.String()})
			s.logg.Error(ctx, "payout paid notification failed", err)
		}
	}
	return paid, nil
}

// RevertPayoutStatus moves a confirmed invoice back to PENDING and clears the
// confirmation fields. Auto-settled invoices have nothing to revert.
func (s *service) RevertPayoutStatus(ctx context.Context, input RevertInput) (*models.PayoutInvoice, error) {
	if !input.Actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can revert payouts")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var reverted *models.PayoutInvoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := s.loadInvoiceForUpdate(ctx, repo, input.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != enums.PayoutInvoiceStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paid invoices can be reverted")
		}
		if invoice.PaidAt == nil && invoice.NetAmount.IsZero() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auto-settled invoices cannot be reverted")
		}

		now := s.now()
		history := invoice.StatusHistory.Append(string(enums.PayoutInvoiceStatusPending), now, input.Actor.UserIDPtr(), reason)
		err = repo.UpdateInvoice(ctx, invoice.ID, map[string]any{
			"status":            enums.PayoutInvoiceStatusPending,
			"paid_at":           nil,
			"paid_by_id":        nil,
			"payment_reference": nil,
			"status_history":    history,
			"updated_at":        now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert invoice")
		}
		invoice.Status = enums.PayoutInvoiceStatusPending
		invoice.PaidAt = nil
		invoice.PaidByID = nil
		invoice.PaymentReference = nil
		invoice.StatusHistory = history

		if err := s.audit(ctx, tx, invoice, "payout_invoice.reverted", input.Actor, map[string]any{"reason": reason}); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventPayoutInvoiceReverted, invoice, input.Actor, reason); err != nil {
			return err
		}
		reverted = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reverted, nil
}

func (s *service) GetInvoice(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PayoutInvoice, error) {
	invoice, err := s.repo.FindInvoice(ctx, id)
	if err != nil {
		return nil, mapLoadError(err, "invoice not found")
	}
	if !canViewOrganization(actor, invoice.OrganizationID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return invoice, nil
}

func (s *service) ListInvoices(ctx context.Context, actor auth.Actor, filters InvoiceFilters, params pagination.Params) (*InvoiceList, error) {
	orgID, err := scopeOrganization(actor, filters.OrganizationID)
	if err != nil {
		return nil, err
	}
	filters.OrganizationID = orgID
	rows, err := s.repo.ListInvoices(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout invoices")
	}
	page, next := pagination.Trim(rows, params.Limit, func(inv models.PayoutInvoice) pagination.Cursor {
		return pagination.Cursor{CreatedAt: inv.CreatedAt, ID: inv.ID}
	})
	return &InvoiceList{Invoices: page, NextCursor: next}, nil
}

// CreateAdjustment records a MANUAL correction folded into the organization's
// next invoice.
func (s *service) CreateAdjustment(ctx context.Context, input CreateAdjustmentInput) (*models.PayoutAdjustment, error) {
	if !input.Actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can adjust payouts")
	}
	if input.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	amount := input.Amount.Round(2)
	if amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "adjustment amount must be non-zero")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description required")
	}

	var created *models.PayoutAdjustment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindOrganization(ctx, input.OrganizationID); err != nil {
			return mapLoadError(err, "organization not found")
		}
		now := s.now()
		adj := &models.PayoutAdjustment{
			ID:             uuid.New(),
			OrganizationID: input.OrganizationID,
			Type:           enums.PayoutAdjustmentManual,
			Amount:         amount,
			Status:         enums.PayoutAdjustmentStatusPending,
			Description:    &description,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.CreateAdjustment(ctx, adj); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout adjustment")
		}
		entry := activitylog.Entry{
			Type:       enums.ActivityLogAdminAction,
			Action:     "payout_adjustment.created",
			ActorID:    input.Actor.UserIDPtr(),
			EntityType: "payout_adjustment",
			EntityID:   &adj.ID,
			Message:    fmt.Sprintf("Manual payout adjustment of %s", amount.StringFixed(2)),
			Metadata: map[string]any{
				"organizationId": input.OrganizationID.String(),
				"amount":         amount.StringFixed(2),
			},
		}
		if err := s.activity.RecordTx(ctx, tx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
		}
		created = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) ListAdjustments(ctx context.Context, actor auth.Actor, filters AdjustmentFilters, params pagination.Params) (*AdjustmentList, error) {
	orgID, err := scopeOrganization(actor, filters.OrganizationID)
	if err != nil {
		return nil, err
	}
	filters.OrganizationID = orgID
	rows, err := s.repo.ListAdjustments(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout adjustments")
	}
	page, next := pagination.Trim(rows, params.Limit, func(adj models.PayoutAdjustment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: adj.CreatedAt, ID: adj.ID}
	})
	return &AdjustmentList{Adjustments: page, NextCursor: next}, nil
}

func (s *service) UpdateOrgPlatformFee(ctx context.Context, input UpdateFeeInput) (*models.Organization, error) {
	if !input.Actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can change platform fees")
	}
	var pct *decimal.Decimal
	if input.Percentage != nil {
		if err := validatePercentage(*input.Percentage); err != nil {
			return nil, err
		}
		rounded := input.Percentage.Round(2)
		pct = &rounded
	}

	var updated *models.Organization
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		org, err := repo.FindOrganization(ctx, input.OrganizationID)
		if err != nil {
			return mapLoadError(err, "organization not found")
		}
		if err := repo.UpdateOrganizationFee(ctx, org.ID, pct); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update platform fee")
		}
		org.CustomPlatformFeePercentage = pct

		value := "default"
		if pct != nil {
			value = pct.StringFixed(2)
		}
		entry := activitylog.Entry{
			Type:       enums.ActivityLogAdminAction,
			Action:     "organization.platform_fee_updated",
			ActorID:    input.Actor.UserIDPtr(),
			EntityType: "organization",
			EntityID:   &org.ID,
			Message:    fmt.Sprintf("Platform fee for %s set to %s", org.Name, value),
			Metadata:   map[string]any{"platformFeePercentage": value},
		}
		if err := s.activity.RecordTx(ctx, tx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
		}
		updated = org
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetPayoutSettings(ctx context.Context, actor auth.Actor) (*models.PayoutSettings, error) {
	if !actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can view payout settings")
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, mapLoadError(err, "payout settings not found")
	}
	return settings, nil
}

func (s *service) UpdatePayoutSettings(ctx context.Context, input UpdateSettingsInput) (*models.PayoutSettings, error) {
	if !input.Actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can change payout settings")
	}

	updates := map[string]any{}
	if input.DefaultFeePercentage != nil {
		if err := validatePercentage(*input.DefaultFeePercentage); err != nil {
			return nil, err
		}
		updates["default_fee_percentage"] = input.DefaultFeePercentage.Round(2)
	}
	if input.CutoffDayOfWeek != nil {
		if err := validateWeekday(*input.CutoffDayOfWeek); err != nil {
			return nil, err
		}
		updates["cutoff_day_of_week"] = *input.CutoffDayOfWeek
	}
	if input.PayoutDayOfWeek != nil {
		if err := validateWeekday(*input.PayoutDayOfWeek); err != nil {
			return nil, err
		}
		updates["payout_day_of_week"] = *input.PayoutDayOfWeek
	}
	if input.MinimumPayoutAmount != nil {
		if input.MinimumPayoutAmount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "minimum payout amount cannot be negative")
		}
		updates["minimum_payout_amount"] = input.MinimumPayoutAmount.Round(2)
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no settings to update")
	}
	updates["updated_by_id"] = input.Actor.UserIDPtr()
	updates["updated_at"] = s.now()

	var settings *models.PayoutSettings
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateSettings(ctx, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout settings")
		}
		loaded, err := repo.GetSettings(ctx)
		if err != nil {
			return mapLoadError(err, "payout settings not found")
		}
		entry := activitylog.Entry{
			Type:       enums.ActivityLogAdminAction,
			Action:     "payout_settings.updated",
			ActorID:    input.Actor.UserIDPtr(),
			EntityType: "payout_settings",
			Message:    "Payout settings updated",
			Metadata: map[string]any{
				"defaultFeePercentage": loaded.DefaultFeePercentage.StringFixed(2),
				"cutoffDayOfWeek":      loaded.CutoffDayOfWeek,
				"payoutDayOfWeek":      loaded.PayoutDayOfWeek,
				"minimumPayoutAmount":  loaded.MinimumPayoutAmount.StringFixed(2),
			},
		}
		if err := s.activity.RecordTx(ctx, tx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
		}
		settings = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *service) loadInvoiceForUpdate(ctx context.Context, repo Repository, id uuid.UUID) (*models.PayoutInvoice, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	invoice, err := repo.FindInvoiceForUpdate(ctx, id)
	if err != nil {
		return nil, mapLoadError(err, "invoice not found")
	}
	return invoice, nil
}

func (s *service) audit(ctx context.Context, tx *gorm.DB, invoice *models.PayoutInvoice, action string, actor auth.Actor, extra map[string]any) error {
	metadata := map[string]any{
		"invoiceNumber":  invoice.InvoiceNumber,
		"organizationId": invoice.OrganizationID.String(),
		"netAmount":      invoice.NetAmount.StringFixed(2),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	entry := activitylog.Entry{
		Type:       enums.ActivityLogAdminAction,
		Action:     action,
		ActorID:    actor.UserIDPtr(),
		EntityType: "payout_invoice",
		EntityID:   &invoice.ID,
		Message:    fmt.Sprintf("Payout invoice %s is now %s", invoice.InvoiceNumber, strings.ToLower(string(invoice.Status))),
		Metadata:   metadata,
	}
	if err := s.activity.RecordTx(ctx, tx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, invoice *models.PayoutInvoice, actor auth.Actor, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayoutInvoice,
		AggregateID:   invoice.ID,
		Actor:         actor.Ref(),
		Data: payloads.PayoutInvoiceEvent{
			InvoiceID:      invoice.ID,
			InvoiceNumber:  invoice.InvoiceNumber,
			OrganizationID: invoice.OrganizationID,
			Status:         invoice.Status,
			NetAmount:      invoice.NetAmount,
			Reason:         reason,
		},
	})
}

// scopeOrganization pins sellers to their own organization and keeps
// customers out entirely.
func scopeOrganization(actor auth.Actor, requested *uuid.UUID) (*uuid.UUID, error) {
	if actor.IsPrivileged() {
		return requested, nil
	}
	if actor.Role != enums.ActorRoleSeller || actor.OrganizationID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payouts are limited to sellers and operators")
	}
	if requested != nil && *requested != *actor.OrganizationID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot view another organization's payouts")
	}
	id := *actor.OrganizationID
	return &id, nil
}

func canViewOrganization(actor auth.Actor, orgID uuid.UUID) bool {
	if actor.IsPrivileged() {
		return true
	}
	return actor.Role == enums.ActorRoleSeller && actor.OwnsOrganization(&orgID)
}

func validatePercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage must be between 0 and 100")
	}
	return nil
}

func validateWeekday(day int) error {
	if day < int(time.Sunday) || day > int(time.Saturday) {
		return pkgerrors.New(pkgerrors.CodeValidation, "day of week must be between 0 (Sunday) and 6 (Saturday)")
	}
	return nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mapLoadError(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payouts data")
}

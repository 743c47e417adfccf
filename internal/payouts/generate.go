package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/money"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// Postgres reports the constraint name; sqlite reports the columns.
var invoicePeriodConstraints = []string{"payout_invoices_org_period_key", "payout_invoices.period_start"}

var errAlreadyInvoiced = errors.New("organization already invoiced for period")

// GenerateInput selects the settlement window. A nil Period uses the last
// complete week ending on the configured cutoff day.
type GenerateInput struct {
	Period *Period
	Actor  auth.Actor
}

type OrganizationFailure struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Error          string    `json:"error"`
}

type RunResult struct {
	Period           Period                 `json:"period"`
	Status           enums.PayoutRunStatus  `json:"status"`
	Invoices         []models.PayoutInvoice `json:"invoices"`
	Skipped          int                    `json:"skipped"`
	Failed           []OrganizationFailure  `json:"failed,omitempty"`
	DocumentFailures int                    `json:"document_failures"`
}

// settlement is the arithmetic outcome for one organization.
type settlement struct {
	Gross       decimal.Decimal
	FeePct      decimal.Decimal
	Fee         decimal.Decimal
	Adjustments decimal.Decimal
	Net         decimal.Decimal
	Status      enums.PayoutInvoiceStatus
	CarryOver   *decimal.Decimal
}

// settle folds fee and adjustments into a net payout. A negative remainder,
// or a positive one under the minimum, is carried forward and the invoice
// settles at zero. An exact zero stays PENDING for an operator to close.
func settle(gross, feePct, adjustments, minimum decimal.Decimal) settlement {
	fee := money.Percent(gross, feePct)
	raw := money.Round2(gross.Sub(fee).Add(adjustments))
	out := settlement{
		Gross:       money.Round2(gross),
		FeePct:      feePct,
		Fee:         fee,
		Adjustments: money.Round2(adjustments),
		Net:         raw,
		Status:      enums.PayoutInvoiceStatusPending,
	}
	switch {
	case raw.IsNegative():
		out.Net = decimal.Zero
		out.Status = enums.PayoutInvoiceStatusPaid
		out.CarryOver = &raw
	case minimum.IsPositive() && raw.LessThan(minimum):
		out.Net = decimal.Zero
		out.Status = enums.PayoutInvoiceStatusPaid
		out.CarryOver = &raw
	}
	return out
}

// GeneratePayoutInvoices runs the weekly batch. Each organization is settled in
// its own transaction; a failure is recorded and the batch moves on.
func (s *service) GeneratePayoutInvoices(ctx context.Context, input GenerateInput) (*RunResult, error) {
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators can generate payouts")
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, mapLoadError(err, "payout settings not found")
	}

	period := ComputePeriod(s.now(), time.Weekday(settings.CutoffDayOfWeek))
	if input.Period != nil {
		period = Period{Start: input.Period.Start.UTC(), End: input.Period.End.UTC()}
	}
	if err := period.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout period")
	}

	orgs, err := s.repo.ListOrganizations(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list organizations")
	}

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"period_start":  period.Start.Format(time.RFC3339),
			"period_end":    period.End.Format(time.RFC3339),
			"organizations": len(orgs),
		})
		s.logg.Info(ctx, "payout generation started")
	}

	result := &RunResult{Period: period, Invoices: []models.PayoutInvoice{}}
	var failures error
	for _, org := range orgs {
		invoice, err := s.generateForOrganization(ctx, org, period, settings, input.Actor)
		switch {
		case err != nil:
			failures = multierr.Append(failures, fmt.Errorf("organization %s: %w", org.ID, err))
			result.Failed = append(result.Failed, OrganizationFailure{OrganizationID: org.ID, Error: err.Error()})
			if s.logg != nil {
				orgCtx := s.logg.WithFields(ctx, map[string]any{"organization_id": org.ID.String()})
				s.logg.Error(orgCtx, "payout invoice generation failed", err)
			}
			continue
		case invoice == nil:
			result.Skipped++
			continue
		}

		if s.docs != nil {
			if err := s.docs.InvoiceCreated(ctx, invoice); err != nil {
				result.DocumentFailures++
				if s.logg != nil {
					docCtx := s.logg.WithFields(ctx, map[string]any{"invoice_id": invoice.ID.String()})
					s.logg.Warn(docCtx, "payout invoice documents incomplete: "+err.Error())
				}
			}
		}
		result.Invoices = append(result.Invoices, *invoice)
	}

	result.Status = runStatus(len(result.Invoices)+result.Skipped, len(result.Failed))
	s.metrics.AddInvoices("created", len(result.Invoices))
	s.metrics.AddInvoices("skipped", result.Skipped)
	s.metrics.AddInvoices("failed", len(result.Failed))

	s.recordRun(ctx, period, result.Status)

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"status":  string(result.Status),
			"created": len(result.Invoices),
			"skipped": result.Skipped,
			"failed":  len(result.Failed),
		})
		s.logg.Info(ctx, "payout generation finished")
	}

	if result.Status == enums.PayoutRunStatusFailed {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, failures, "payout generation failed for every organization")
	}
	return result, nil
}

func runStatus(succeeded, failed int) enums.PayoutRunStatus {
	switch {
	case failed == 0:
		return enums.PayoutRunStatusSuccess
	case succeeded > 0:
		return enums.PayoutRunStatusPartial
	default:
		return enums.PayoutRunStatusFailed
	}
}

func (s *service) recordRun(ctx context.Context, period Period, status enums.PayoutRunStatus) {
	err := s.repo.UpdateSettings(ctx, map[string]any{
		"last_run_at":           s.now(),
		"last_run_period_start": period.Start,
		"last_run_status":       status,
	})
	if err != nil && s.logg != nil {
		s.logg.Error(ctx, "record payout run", err)
	}
}

// generateForOrganization returns a nil invoice when there is nothing to settle.
func (s *service) generateForOrganization(ctx context.Context, org models.Organization, period Period, settings *models.PayoutSettings, actor auth.Actor) (*models.PayoutInvoice, error) {
	var created *models.PayoutInvoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		exists, err := repo.InvoiceExists(ctx, org.ID, period.Start)
		if err != nil {
			return fmt.Errorf("check existing invoice: %w", err)
		}
		if exists {
			return errAlreadyInvoiced
		}

		orders, err := repo.CollectPaidOrders(ctx, org.ID, period.Start, period.endExclusive())
		if err != nil {
			return fmt.Errorf("collect paid orders: %w", err)
		}
		if len(orders) == 0 {
			return nil
		}

		adjustments, err := repo.PendingAdjustments(ctx, org.ID)
		if err != nil {
			return fmt.Errorf("load pending adjustments: %w", err)
		}

		feePct := settings.DefaultFeePercentage
		if org.CustomPlatformFeePercentage != nil {
			feePct = *org.CustomPlatformFeePercentage
		}

		summary := types.PayoutOrderSummary{Orders: make([]types.PayoutOrderLine, 0, len(orders))}
		orderIDs := make([]uuid.UUID, 0, len(orders))
		totals := make([]decimal.Decimal, 0, len(orders))
		itemCount := 0
		for _, o := range orders {
			orderIDs = append(orderIDs, o.ID)
			totals = append(totals, o.TotalAmount)
			itemCount += o.ItemCount
			summary.Orders = append(summary.Orders, types.PayoutOrderLine{
				OrderID:     o.ID,
				OrderNumber: o.OrderNumber,
				OrderDate:   o.OrderDate,
				ItemCount:   o.ItemCount,
				TotalAmount: o.TotalAmount,
			})
		}

		adjustmentIDs := make([]uuid.UUID, 0, len(adjustments))
		adjustmentAmounts := make([]decimal.Decimal, 0, len(adjustments))
		for _, adj := range adjustments {
			adjustmentIDs = append(adjustmentIDs, adj.ID)
			adjustmentAmounts = append(adjustmentAmounts, adj.Amount)
			line := types.PayoutAdjustmentLine{AdjustmentID: adj.ID, Type: string(adj.Type), Amount: adj.Amount}
			if adj.Description != nil {
				line.Description = *adj.Description
			}
			summary.Adjustments = append(summary.Adjustments, line)
		}

		result := settle(money.Sum(totals...), feePct, money.Sum(adjustmentAmounts...), settings.MinimumPayoutAmount)

		seq, err := repo.CountOrganizationInvoices(ctx, org.ID)
		if err != nil {
			return fmt.Errorf("count invoices: %w", err)
		}
		number := InvoiceNumber(period.End, org.Slug, int(seq)+1)

		now := s.now()
		history := types.StatusHistory{}.Append(string(enums.PayoutInvoiceStatusPending), now, nil, "invoice generated")
		if result.Status == enums.PayoutInvoiceStatusPaid {
			history = history.Append(string(enums.PayoutInvoiceStatusPaid), now, nil, "auto-settled: nothing to transfer")
		}

		snapshot := types.OrganizationSnapshot{ID: org.ID, Name: org.Name, Slug: org.Slug}
		if org.PayoutEmail != nil {
			snapshot.PayoutEmail = *org.PayoutEmail
		}

		invoice := &models.PayoutInvoice{
			ID:                    uuid.New(),
			InvoiceNumber:         number,
			OrganizationID:        org.ID,
			OrganizationSnapshot:  snapshot,
			PeriodStart:           period.Start,
			PeriodEnd:             period.End,
			GrossAmount:           result.Gross,
			PlatformFeePercentage: result.FeePct,
			PlatformFeeAmount:     result.Fee,
			AdjustmentsAmount:     result.Adjustments,
			NetAmount:             result.Net,
			OrderCount:            len(orders),
			ItemCount:             itemCount,
			OrderSummary:          summary,
			Status:                result.Status,
			StatusHistory:         history,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := repo.CreateInvoice(ctx, invoice); err != nil {
			for _, name := range invoicePeriodConstraints {
				if db.IsUniqueViolation(err, name) {
					return errAlreadyInvoiced
				}
			}
			return fmt.Errorf("create invoice: %w", err)
		}

		if result.CarryOver != nil {
			description := fmt.Sprintf("Carried over from %s", number)
			carry := &models.PayoutAdjustment{
				ID:                     uuid.New(),
				OrganizationID:         org.ID,
				Type:                   enums.PayoutAdjustmentCarryOver,
				Amount:                 *result.CarryOver,
				Status:                 enums.PayoutAdjustmentStatusPending,
				Description:            &description,
				ReferenceInvoiceNumber: &number,
				CreatedAt:              now,
				UpdatedAt:              now,
			}
			if err := repo.CreateAdjustment(ctx, carry); err != nil {
				return fmt.Errorf("create carry-over adjustment: %w", err)
			}
		}

		if err := repo.ApplyAdjustments(ctx, adjustmentIDs, invoice.ID); err != nil {
			return fmt.Errorf("apply adjustments: %w", err)
		}
		if err := repo.AttachOrders(ctx, orderIDs, invoice.ID); err != nil {
			return fmt.Errorf("attach orders: %w", err)
		}
		if err := s.emit(ctx, tx, enums.EventPayoutInvoiceCreated, invoice, actor, ""); err != nil {
			return fmt.Errorf("emit invoice created: %w", err)
		}
		created = invoice
		return nil
	})
	if errors.Is(err, errAlreadyInvoiced) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tindahub/marketplace-backend/internal/payouts"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

type payoutGenerator interface {
	GetPayoutSettings(ctx context.Context, actor auth.Actor) (*models.PayoutSettings, error)
	GeneratePayoutInvoices(ctx context.Context, input payouts.GenerateInput) (*payouts.RunResult, error)
}

type PayoutInvoiceJobParams struct {
	Logger  *logger.Logger
	Payouts payoutGenerator
}

// NewPayoutInvoiceJob settles the previous week on the configured payout
// weekday. Ticks on other days, or after a fully successful run for the same
// period, do nothing.
func NewPayoutInvoiceJob(params PayoutInvoiceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutInvoiceJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		now:     time.Now,
	}, nil
}

type payoutInvoiceJob struct {
	logg    *logger.Logger
	payouts payoutGenerator
	now     func() time.Time
}

func (j *payoutInvoiceJob) Name() string { return "payout-invoices" }

func (j *payoutInvoiceJob) Run(ctx context.Context) error {
	actor := auth.SystemActor()
	settings, err := j.payouts.GetPayoutSettings(ctx, actor)
	if err != nil {
		return fmt.Errorf("load payout settings: %w", err)
	}

	now := j.now().UTC()
	if int(now.Weekday()) != settings.PayoutDayOfWeek {
		return nil
	}
	period := payouts.ComputePeriod(now, time.Weekday(settings.CutoffDayOfWeek))
	if alreadySettled(settings, period) {
		j.logg.Info(j.logg.WithField(ctx, "period_start", period.Start), "payout period already settled")
		return nil
	}

	result, err := j.payouts.GeneratePayoutInvoices(ctx, payouts.GenerateInput{Period: &period, Actor: actor})
	if result != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"period_start":      period.Start,
			"period_end":        period.End,
			"status":            result.Status,
			"invoices":          len(result.Invoices),
			"skipped":           result.Skipped,
			"failed":            len(result.Failed),
			"document_failures": result.DocumentFailures,
		})
		j.logg.Info(logCtx, "payout invoice run finished")
	}
	if err != nil {
		return fmt.Errorf("generate payout invoices: %w", err)
	}
	if result.Status == enums.PayoutRunStatusPartial {
		return fmt.Errorf("payout run partial: %d organizations failed", len(result.Failed))
	}
	return nil
}

func alreadySettled(settings *models.PayoutSettings, period payouts.Period) bool {
	if settings.LastRunPeriodStart == nil || settings.LastRunStatus == nil {
		return false
	}
	return settings.LastRunPeriodStart.Equal(period.Start) && *settings.LastRunStatus == enums.PayoutRunStatusSuccess
}

package payouts

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/api/controllers/dto"
	"github.com/tindahub/marketplace-backend/api/middleware"
	"github.com/tindahub/marketplace-backend/api/responses"
	"github.com/tindahub/marketplace-backend/api/validators"
	internalpayouts "github.com/tindahub/marketplace-backend/internal/payouts"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

type generateRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

type markPaidRequest struct {
	PaymentReference *string `json:"payment_reference" validate:"omitempty,max=120"`
	Note             *string `json:"note" validate:"omitempty,max=500"`
}

type revertRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type adjustmentRequest struct {
	OrganizationID uuid.UUID       `json:"organization_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"money"`
	Description    string          `json:"description" validate:"required,max=500"`
}

type feeRequest struct {
	Percentage *decimal.Decimal `json:"percentage" validate:"omitempty,percentage"`
}

type settingsRequest struct {
	DefaultFeePercentage *decimal.Decimal `json:"default_fee_percentage" validate:"omitempty,percentage"`
	CutoffDayOfWeek      *int             `json:"cutoff_day_of_week" validate:"omitempty,min=0,max=6"`
	PayoutDayOfWeek      *int             `json:"payout_day_of_week" validate:"omitempty,min=0,max=6"`
	MinimumPayoutAmount  *decimal.Decimal `json:"minimum_payout_amount" validate:"omitempty,money_nonneg"`
}

type runResponse struct {
	PeriodStart      time.Time                             `json:"period_start"`
	PeriodEnd        time.Time                             `json:"period_end"`
	Status           enums.PayoutRunStatus                 `json:"status"`
	Invoices         []dto.PayoutInvoice                   `json:"invoices"`
	Skipped          int                                   `json:"skipped"`
	Failed           []internalpayouts.OrganizationFailure `json:"failed,omitempty"`
	DocumentFailures int                                   `json:"document_failures"`
}

// Generate runs invoice generation for an explicit period, or the last
// complete week when no period is given.
func Generate(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload generateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := parsePeriod(payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.GeneratePayoutInvoices(r.Context(), internalpayouts.GenerateInput{Period: period, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, runResponse{
			PeriodStart:      result.Period.Start,
			PeriodEnd:        result.Period.End,
			Status:           result.Status,
			Invoices:         dto.NewPayoutInvoices(result.Invoices),
			Skipped:          result.Skipped,
			Failed:           result.Failed,
			DocumentFailures: result.DocumentFailures,
		})
	}
}

func ListInvoices(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.ParsePayoutInvoiceStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orgID, err := validators.ParseQueryUUID(r, "organization_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		periodStart, err := validators.ParseQueryEnum(r, "period_start", parseDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters := internalpayouts.InvoiceFilters{OrganizationID: orgID, Status: status, PeriodStart: periodStart}
		list, err := svc.ListInvoices(r.Context(), actor, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.PayoutInvoiceList{Invoices: dto.NewPayoutInvoices(list.Invoices), NextCursor: list.NextCursor})
	}
}

func InvoiceDetail(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.GetInvoice(r.Context(), invoiceID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayoutInvoice(invoice))
	}
}

// MarkPaid records that the organization's payout was transferred.
func MarkPaid(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload markPaidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalpayouts.MarkPaidInput{InvoiceID: invoiceID, Actor: actor}
		if payload.PaymentReference != nil {
			ref := validators.SanitizeString(*payload.PaymentReference, 120)
			input.PaymentReference = &ref
		}
		if payload.Note != nil {
			note := validators.SanitizeString(*payload.Note, 500)
			input.Note = &note
		}

		invoice, err := svc.MarkInvoicePaid(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayoutInvoice(invoice))
	}
}

// Revert returns a paid invoice to PENDING.
func Revert(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload revertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.RevertPayoutStatus(r.Context(), internalpayouts.RevertInput{
			InvoiceID: invoiceID,
			Reason:    validators.SanitizeString(payload.Reason, 500),
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayoutInvoice(invoice))
	}
}

func CreateAdjustment(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		adj, err := svc.CreateAdjustment(r.Context(), internalpayouts.CreateAdjustmentInput{
			OrganizationID: payload.OrganizationID,
			Amount:         payload.Amount,
			Description:    validators.SanitizeString(payload.Description, 500),
			Actor:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewPayoutAdjustment(adj))
	}
}

func ListAdjustments(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orgID, err := validators.ParseQueryUUID(r, "organization_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", parseAdjustmentStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListAdjustments(r.Context(), actor, internalpayouts.AdjustmentFilters{OrganizationID: orgID, Status: status}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.PayoutAdjustmentList{Adjustments: dto.NewPayoutAdjustments(list.Adjustments), NextCursor: list.NextCursor})
	}
}

// UpdatePlatformFee sets or clears an organization's fee override.
func UpdatePlatformFee(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orgID, err := validators.ParseUUIDParam(r, "organizationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload feeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := svc.UpdateOrgPlatformFee(r.Context(), internalpayouts.UpdateFeeInput{
			OrganizationID: orgID,
			Percentage:     payload.Percentage,
			Actor:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"organization_id":         org.ID,
			"custom_platform_fee_percentage": org.CustomPlatformFeePercentage,
		})
	}
}

func GetSettings(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settings, err := svc.GetPayoutSettings(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayoutSettings(settings))
	}
}

func UpdateSettings(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload settingsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settings, err := svc.UpdatePayoutSettings(r.Context(), internalpayouts.UpdateSettingsInput{
			DefaultFeePercentage: payload.DefaultFeePercentage,
			CutoffDayOfWeek:      payload.CutoffDayOfWeek,
			PayoutDayOfWeek:      payload.PayoutDayOfWeek,
			MinimumPayoutAmount:  payload.MinimumPayoutAmount,
			Actor:                actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayoutSettings(settings))
	}
}

func parsePeriod(payload generateRequest) (*internalpayouts.Period, error) {
	rawStart := strings.TrimSpace(payload.PeriodStart)
	rawEnd := strings.TrimSpace(payload.PeriodEnd)
	if rawStart == "" && rawEnd == "" {
		return nil, nil
	}
	if rawStart == "" || rawEnd == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period_start and period_end must be given together")
	}
	start, err := parseDate(rawStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period_start")
	}
	end, err := parseDate(rawEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period_end")
	}
	period := internalpayouts.PeriodFromDates(start, end)
	return &period, nil
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

func parseAdjustmentStatus(value string) (enums.PayoutAdjustmentStatus, error) {
	switch status := enums.PayoutAdjustmentStatus(strings.ToUpper(value)); status {
	case enums.PayoutAdjustmentStatusPending, enums.PayoutAdjustmentStatusApplied:
		return status, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid adjustment status")
}

package vouchers

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
	internalvouchers "github.com/tindahub/marketplace-backend/internal/vouchers"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

type validateRequest struct {
	Code           string          `json:"code" validate:"required,max=64"`
	OrganizationID *uuid.UUID      `json:"organization_id"`
	OrderAmount    decimal.Decimal `json:"order_amount" validate:"money_nonneg"`
}

type createRequest struct {
	Code              string           `json:"code" validate:"required,min=3,max=64"`
	Description       *string          `json:"description" validate:"omitempty,max=500"`
	DiscountType      string           `json:"discount_type" validate:"required"`
	DiscountValue     decimal.Decimal  `json:"discount_value" validate:"money_nonneg"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount" validate:"omitempty,money_nonneg"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount" validate:"omitempty,money_nonneg"`
	UsageLimit        *int             `json:"usage_limit" validate:"omitempty,min=1"`
	UsageLimitPerUser *int             `json:"usage_limit_per_user" validate:"omitempty,min=1"`
	ValidFrom         *time.Time       `json:"valid_from"`
	ValidUntil        *time.Time       `json:"valid_until"`
	OrganizationID    *uuid.UUID       `json:"organization_id"`
}

// Validate previews a voucher against an order amount without redeeming it.
// Failures come back as a 200 with a closed-taxonomy code.
func Validate(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload validateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID := actor.UserID
		result, err := svc.Validate(r.Context(), internalvouchers.ValidateInput{
			Code:           strings.TrimSpace(payload.Code),
			UserID:         &userID,
			OrganizationID: payload.OrganizationID,
			OrderAmount:    payload.OrderAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Create registers a platform or organization voucher.
func Create(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		discountType, err := enums.ParseDiscountType(strings.ToUpper(strings.TrimSpace(payload.DiscountType)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount_type"))
			return
		}

		input := internalvouchers.CreateVoucherInput{
			Code:              strings.TrimSpace(payload.Code),
			DiscountType:      discountType,
			DiscountValue:     payload.DiscountValue,
			MinOrderAmount:    payload.MinOrderAmount,
			MaxDiscountAmount: payload.MaxDiscountAmount,
			UsageLimit:        payload.UsageLimit,
			UsageLimitPerUser: payload.UsageLimitPerUser,
			ValidFrom:         payload.ValidFrom,
			ValidUntil:        payload.ValidUntil,
			OrganizationID:    payload.OrganizationID,
			Actor:             actor,
		}
		if payload.Description != nil {
			desc := validators.SanitizeString(*payload.Description, 500)
			input.Description = &desc
		}

		voucher, err := svc.CreateVoucher(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewVoucher(voucher))
	}
}

func Detail(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		voucherID, err := validators.ParseUUIDParam(r, "voucherId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		voucher, err := svc.GetVoucher(r.Context(), voucherID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewVoucher(voucher))
	}
}

// List returns vouchers in the caller's scope; customers only see refund
// vouchers assigned to them.
func List(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
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
		discountType, err := validators.ParseQueryEnum(r, "discount_type", enums.ParseDiscountType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orgID, err := validators.ParseQueryUUID(r, "organization_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListVouchers(r.Context(), actor, internalvouchers.ListFilters{OrganizationID: orgID, DiscountType: discountType}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.VoucherList{Vouchers: dto.NewVouchers(list.Vouchers), NextCursor: list.NextCursor})
	}
}

package refunds

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tindahub/marketplace-backend/api/controllers/dto"
	"github.com/tindahub/marketplace-backend/api/middleware"
	"github.com/tindahub/marketplace-backend/api/responses"
	"github.com/tindahub/marketplace-backend/api/validators"
	internalrefunds "github.com/tindahub/marketplace-backend/internal/refunds"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

const maxMessageLength = 1000

type createRequest struct {
	OrderID         uuid.UUID `json:"order_id" validate:"required"`
	Reason          string    `json:"reason" validate:"required,max=200"`
	CustomerMessage *string   `json:"customer_message" validate:"omitempty,max=1000"`
}

type reviewRequest struct {
	Message *string `json:"message" validate:"omitempty,max=1000"`
}

// Create opens a refund request on a paid order.
func Create(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
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

		input := internalrefunds.CreateRequestInput{
			OrderID: payload.OrderID,
			Reason:  validators.SanitizeString(payload.Reason, 200),
			Actor:   actor,
		}
		if payload.CustomerMessage != nil {
			msg := validators.SanitizeString(*payload.CustomerMessage, maxMessageLength)
			input.CustomerMessage = &msg
		}

		req, err := svc.CreateRequest(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewRefundRequest(req))
	}
}

func List(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
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
		status, err := validators.ParseQueryEnum(r, "status", enums.ParseRefundRequestStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListRequests(r.Context(), actor, internalrefunds.ListFilters{OrderID: orderID, Status: status}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.RefundRequestList{Requests: dto.NewRefundRequests(list.Requests), NextCursor: list.NextCursor})
	}
}

func Detail(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.GetRequest(r.Context(), requestID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewRefundRequest(req))
	}
}

// Approve accepts a pending request, cancels the order and issues a refund voucher.
func Approve(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}
		input, err := reviewInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ApproveRequest(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.RefundReview{
			Request: dto.NewRefundRequest(result.Request),
			Voucher: dto.NewVoucher(result.Voucher),
		})
	}
}

// Reject closes a pending request; a message for the customer is required.
func Reject(svc internalrefunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}
		input, err := reviewInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.RejectRequest(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewRefundRequest(req))
	}
}

func reviewInput(r *http.Request) (internalrefunds.ReviewInput, error) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		return internalrefunds.ReviewInput{}, err
	}
	requestID, err := validators.ParseUUIDParam(r, "requestId")
	if err != nil {
		return internalrefunds.ReviewInput{}, err
	}
	var payload reviewRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return internalrefunds.ReviewInput{}, err
	}
	input := internalrefunds.ReviewInput{RequestID: requestID, Actor: actor}
	if payload.Message != nil {
		msg := validators.SanitizeString(*payload.Message, maxMessageLength)
		input.Message = &msg
	}
	return input, nil
}

package orders

import (
	"net/http"
	"strings"

	"github.com/tindahub/marketplace-backend/api/controllers/dto"
	"github.com/tindahub/marketplace-backend/api/middleware"
	"github.com/tindahub/marketplace-backend/api/responses"
	"github.com/tindahub/marketplace-backend/api/validators"
	internalorders "github.com/tindahub/marketplace-backend/internal/orders"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

type updateOrderRequest struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"payment_status"`
	Note          *string `json:"note" validate:"omitempty,max=500"`
}

type cancelOrderRequest struct {
	Reason    string  `json:"reason" validate:"required"`
	Note      *string `json:"note" validate:"omitempty,max=500"`
	Initiator string  `json:"initiator"`
}

type cancelOrderResponse struct {
	Order         dto.Order             `json:"order"`
	RefundVoucher *dto.Voucher          `json:"refund_voucher,omitempty"`
	Adjustment    *dto.PayoutAdjustment `json:"adjustment,omitempty"`
}

// List returns the orders visible to the caller. Customers see their own,
// sellers their organization's, admins everything.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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
		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListOrders(r.Context(), actor, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OrderList{Orders: dto.NewOrders(list.Orders), NextCursor: list.NextCursor})
	}
}

// Detail returns the order with its payments and recent history.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.OrderDetail{
			Order:         dto.NewOrder(detail.Order),
			Payments:      dto.NewPayments(detail.Payments),
			RecentHistory: dto.NewStatusEvents(detail.RecentHistory),
		})
	}
}

// History returns the full status trail of an order, oldest first.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := svc.ListOrderHistory(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"history": dto.NewStatusEvents(events)})
	}
}

// Update moves an order along its fulfilment or payment state machine.
func Update(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalorders.UpdateOrderInput{OrderID: orderID, Actor: actor}
		if payload.Status != nil {
			status, err := enums.ParseOrderStatus(strings.TrimSpace(*payload.Status))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		if payload.PaymentStatus != nil {
			status, err := enums.ParsePaymentStatus(strings.TrimSpace(*payload.PaymentStatus))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
				return
			}
			input.PaymentStatus = &status
		}
		if input.Status == nil && input.PaymentStatus == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status or payment_status required"))
			return
		}
		if payload.Note != nil {
			note := validators.SanitizeString(*payload.Note, 500)
			input.Note = &note
		}

		order, err := svc.UpdateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewOrder(*order))
	}
}

// Cancel cancels an order, restocking items and issuing compensation for paid orders.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := enums.ParseCancellationReason(strings.TrimSpace(payload.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
			return
		}

		input := internalorders.CancelOrderInput{OrderID: orderID, Reason: reason, Actor: actor}
		if raw := strings.TrimSpace(payload.Initiator); raw != "" {
			initiator := enums.CancellationInitiator(strings.ToUpper(raw))
			if !initiator.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid initiator"))
				return
			}
			input.Initiator = initiator
		}
		if payload.Note != nil {
			note := validators.SanitizeString(*payload.Note, 500)
			input.Note = &note
		}

		result, err := svc.CancelOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := cancelOrderResponse{
			Order:         dto.NewOrder(*result.Order),
			RefundVoucher: dto.NewVoucher(result.RefundVoucher),
		}
		if result.Adjustment != nil {
			adj := dto.NewPayoutAdjustment(result.Adjustment)
			resp.Adjustment = &adj
		}
		responses.WriteSuccess(w, resp)
	}
}

func buildListFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	status, err := validators.ParseQueryEnum(r, "status", enums.ParseOrderStatus)
	if err != nil {
		return filters, err
	}
	paymentStatus, err := validators.ParseQueryEnum(r, "payment_status", enums.ParsePaymentStatus)
	if err != nil {
		return filters, err
	}
	orgID, err := validators.ParseQueryUUID(r, "organization_id")
	if err != nil {
		return filters, err
	}
	filters.Status = status
	filters.PaymentStatus = paymentStatus
	filters.OrganizationID = orgID
	return filters, nil
}

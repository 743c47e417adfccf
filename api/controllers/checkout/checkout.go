package checkout

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tindahub/marketplace-backend/api/controllers/dto"
	"github.com/tindahub/marketplace-backend/api/middleware"
	"github.com/tindahub/marketplace-backend/api/responses"
	"github.com/tindahub/marketplace-backend/api/validators"
	checkoutsvc "github.com/tindahub/marketplace-backend/internal/checkout"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

type placeOrderRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Email       string  `json:"email" validate:"required,email"`
	Phone       string  `json:"phone" validate:"omitempty,max=32"`
	VoucherCode *string `json:"voucher_code" validate:"omitempty,max=64"`
}

type placeOrderResponse struct {
	Session          *dto.CheckoutSession `json:"session,omitempty"`
	Orders           []dto.Order          `json:"orders"`
	Total            decimal.Decimal      `json:"total"`
	PaymentReference string               `json:"payment_reference"`
}

// PlaceOrder converts the caller's cart into pending orders.
func PlaceOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var voucherCode *string
		if payload.VoucherCode != nil {
			if code := strings.TrimSpace(*payload.VoucherCode); code != "" {
				voucherCode = &code
			}
		}

		result, err := svc.PlaceOrder(r.Context(), checkoutsvc.PlaceOrderInput{
			Actor: actor,
			Customer: types.CustomerSnapshot{
				ID:    actor.UserID,
				Name:  validators.SanitizeString(payload.Name, 200),
				Email: strings.ToLower(validators.SanitizeString(payload.Email, 254)),
				Phone: validators.SanitizeString(payload.Phone, 32),
			},
			VoucherCode: voucherCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, placeOrderResponse{
			Session:          dto.NewCheckoutSession(result.Session),
			Orders:           dto.NewOrders(result.Orders),
			Total:            result.Total,
			PaymentReference: result.PaymentReference,
		})
	}
}

package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/tindahub/marketplace-backend/api/responses"
	"github.com/tindahub/marketplace-backend/internal/payments"
	gatewaywebhook "github.com/tindahub/marketplace-backend/internal/webhooks/gateway"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

const maxPayloadBytes = 1 << 20

type PaymentEventHandler interface {
	HandleEvent(ctx context.Context, event payments.Event) (*payments.Result, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type signatureVerifier interface {
	Verify(payload []byte, header string) error
}

// GatewayWebhook applies signed payment gateway deliveries. Each delivery id
// is processed at most once; a failed delivery releases its mark so the
// gateway retry can run it again.
func GatewayWebhook(svc PaymentEventHandler, verifier signatureVerifier, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment processor unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := verifier.Verify(payload, r.Header.Get(gatewaywebhook.SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid signature"))
			return
		}

		delivery, event, ok, err := gatewaywebhook.Parse(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"delivery_id": delivery.ID, "delivery_type": delivery.Type})
		}
		if !ok {
			if logg != nil {
				logg.Info(ctx, "gateway delivery ignored")
			}
			responses.WriteSuccess(w, payments.Result{Processed: false, Reason: "Unhandled event type"})
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, delivery.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, payments.Result{Processed: true, Reason: "Duplicate delivery"})
			return
		}

		result, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if delErr := guard.Delete(ctx, delivery.ID); delErr != nil && logg != nil {
				logg.Error(ctx, "release delivery mark", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"processed": result.Processed,
				"reason":    result.Reason,
			}), "gateway delivery handled")
		}
		responses.WriteSuccess(w, result)
	}
}

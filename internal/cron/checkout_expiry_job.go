package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/tindahub/marketplace-backend/internal/orders"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
)

const checkoutExpiryBatch = 200

type expiredCheckoutReader interface {
	ListExpiredOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ExpireSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

type orderCanceller interface {
	CancelOrder(ctx context.Context, input orders.CancelOrderInput) (*orders.CancelResult, error)
}

type CheckoutExpiryJobParams struct {
	Logger    *logger.Logger
	Checkouts expiredCheckoutReader
	Orders    orderCanceller
}

// NewCheckoutExpiryJob cancels unpaid orders whose checkout window closed,
// returning their stock, and marks the matching sessions EXPIRED.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checkouts == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	return &checkoutExpiryJob{
		logg:      params.Logger,
		checkouts: params.Checkouts,
		orders:    params.Orders,
		now:       time.Now,
	}, nil
}

type checkoutExpiryJob struct {
	logg      *logger.Logger
	checkouts expiredCheckoutReader
	orders    orderCanceller
	now       func() time.Time
}

func (j *checkoutExpiryJob) Name() string { return "checkout-expiry" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	expired, err := j.checkouts.ListExpiredOrders(ctx, cutoff, checkoutExpiryBatch)
	if err != nil {
		return fmt.Errorf("query expired checkouts: %w", err)
	}

	note := "checkout expired before payment"
	var errs error
	cancelled := 0
	for _, order := range expired {
		_, err := j.orders.CancelOrder(ctx, orders.CancelOrderInput{
			OrderID:   order.ID,
			Reason:    enums.CancellationReasonOther,
			Note:      &note,
			Initiator: enums.CancellationInitiatorCustomer,
			Actor:     auth.SystemActor(),
		})
		switch {
		case err == nil:
			cancelled++
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyCancelled), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// paid or cancelled since the query ran
		default:
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.OrderNumber, err))
		}
	}

	sessions, err := j.checkouts.ExpireSessions(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire sessions: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates":       len(expired),
		"orders_cancelled": cancelled,
		"sessions_expired": sessions,
	})
	j.logg.Info(logCtx, "checkout expiry complete")
	return errs
}

// Package payments applies gateway payment events to orders.
package payments

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
	"github.com/tindahub/marketplace-backend/internal/orders"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/metrics"
	"github.com/tindahub/marketplace-backend/pkg/money"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

const (
	ReasonPaymentExists    = "Payment already exists"
	ReasonAlreadyCancelled = "Order already cancelled"
	ReasonUnknownTarget    = "No matching order"
)

// Event is the gateway-neutral form of a payment webhook.
type Event struct {
	Type       enums.PaymentEventType
	ExternalID string
	PaymentID  string
	Amount     decimal.Decimal
	CheckoutID string
	OccurredAt time.Time
}

// Result reports what a delivery did. Processed is true for replays too.
type Result struct {
	Processed bool        `json:"processed"`
	Reason    string      `json:"reason,omitempty"`
	OrderIDs  []uuid.UUID `json:"order_ids,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderTransitions interface {
	MarkPaidTx(ctx context.Context, tx *gorm.DB, input orders.MarkPaidInput) (*models.Order, error)
	CancelOrderTx(ctx context.Context, tx *gorm.DB, input orders.CancelOrderInput) (*orders.CancelResult, error)
}

type activityRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, entry activitylog.Entry) error
}

type Processor interface {
	HandleEvent(ctx context.Context, event Event) (*Result, error)
}

type processor struct {
	repo     Repository
	tx       txRunner
	orders   orderTransitions
	activity activityRecorder
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewProcessor(repo Repository, tx txRunner, orderSvc orderTransitions, activity activityRecorder, m *metrics.WebhookMetrics, logg *logger.Logger) (Processor, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if activity == nil {
		return nil, fmt.Errorf("activity recorder required")
	}
	return &processor{
		repo:     repo,
		tx:       tx,
		orders:   orderSvc,
		activity: activity,
		metrics:  m,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// target is the resolved subject of a webhook: one order, or a checkout
// session and its orders.
type target struct {
	session *models.CheckoutSession
	orders  []models.Order
}

func (p *processor) HandleEvent(ctx context.Context, event Event) (*Result, error) {
	if err := validateEvent(event); err != nil {
		p.metrics.Observe(string(event.Type), "failed")
		return nil, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}

	var (
		result *Result
		err    error
	)
	switch event.Type {
	case enums.PaymentEventCheckoutPaid:
		result, err = p.handlePaid(ctx, event)
	case enums.PaymentEventPaymentFailed:
		result, err = p.handleFailed(ctx, event)
	}

	outcome := "processed"
	switch {
	case err != nil:
		outcome = "failed"
	case result.Reason == ReasonPaymentExists || result.Reason == ReasonAlreadyCancelled:
		outcome = "duplicate"
	case !result.Processed:
		outcome = "ignored"
	}
	p.metrics.Observe(string(event.Type), outcome)

	if p.logg != nil {
		logCtx := p.logg.WithFields(ctx, map[string]any{
			"event_type":  string(event.Type),
			"external_id": event.ExternalID,
			"payment_id":  event.PaymentID,
			"outcome":     outcome,
		})
		if err != nil {
			p.logg.Error(logCtx, "payment webhook failed", err)
		} else {
			p.logg.Info(logCtx, "payment webhook handled")
		}
	}
	return result, err
}

func validateEvent(event Event) error {
	if !event.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment event type").
			WithDetails(map[string]any{"type": event.Type})
	}
	if strings.TrimSpace(event.ExternalID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external id required")
	}
	if event.Type == enums.PaymentEventCheckoutPaid {
		if strings.TrimSpace(event.PaymentID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
		}
		if event.Amount.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment amount must not be negative")
		}
	}
	return nil
}

func (p *processor) handlePaid(ctx context.Context, event Event) (*Result, error) {
	var result *Result
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)

		exists, err := repo.PaymentExists(ctx, event.PaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payments")
		}
		if exists {
			result = &Result{Processed: true, Reason: ReasonPaymentExists}
			return nil
		}

		tgt, err := p.resolve(ctx, repo, event.ExternalID)
		if err != nil {
			return err
		}
		if tgt == nil {
			result = &Result{Processed: false, Reason: ReasonUnknownTarget}
			return nil
		}

		shares, err := allocate(event.Amount, tgt.orders)
		if err != nil {
			return err
		}
		reconciliation := enums.ReconciliationStatusReconciled
		if !event.Amount.Equal(orderTotal(tgt.orders)) {
			reconciliation = enums.ReconciliationStatusMismatch
		}

		ids := make([]uuid.UUID, 0, len(tgt.orders))
		for i := range tgt.orders {
			order := &tgt.orders[i]
			payment := &models.Payment{
				ID:                   uuid.New(),
				OrderID:              order.ID,
				Amount:               shares[i],
				PaymentStatus:        enums.PaymentStatusPaid,
				ReferenceNo:          event.PaymentID,
				CheckoutID:           optional(event.CheckoutID),
				ReconciliationStatus: reconciliation,
				StatusHistory:        types.StatusHistory{}.Append(string(enums.PaymentStatusPaid), event.OccurredAt, nil, "gateway "+string(event.Type)),
				PaymentDate:          event.OccurredAt,
			}
			if err := repo.CreatePayment(ctx, payment); err != nil {
				return err
			}
			if _, err := p.orders.MarkPaidTx(ctx, tx, orders.MarkPaidInput{
				OrderID:    order.ID,
				PaymentRef: event.PaymentID,
				Amount:     shares[i],
				PaidAt:     event.OccurredAt,
				Actor:      auth.SystemActor(),
			}); err != nil {
				return err
			}
			ids = append(ids, order.ID)
		}

		if tgt.session != nil {
			if err := repo.UpdateSessionStatus(ctx, tgt.session.ID, enums.CheckoutSessionStatusPaid); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update checkout session")
			}
		}
		result = &Result{Processed: true, OrderIDs: ids}
		return nil
	})
	if err != nil {
		// a concurrent delivery won the (order, reference) unique key
		if db.IsUniqueViolation(err, "") {
			return &Result{Processed: true, Reason: ReasonPaymentExists}, nil
		}
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}
		return nil, err
	}
	return result, nil
}

func (p *processor) handleFailed(ctx context.Context, event Event) (*Result, error) {
	var result *Result
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)
		tgt, err := p.resolve(ctx, repo, event.ExternalID)
		if err != nil {
			return err
		}
		if tgt == nil {
			result = &Result{Processed: false, Reason: ReasonUnknownTarget}
			return nil
		}

		if tgt.session != nil && tgt.session.Status != enums.CheckoutSessionStatusFailed {
			if err := repo.UpdateSessionStatus(ctx, tgt.session.ID, enums.CheckoutSessionStatusFailed); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update checkout session")
			}
		}

		order := tgt.orders[0]
		if order.Status == enums.OrderStatusCancelled {
			result = &Result{Processed: true, Reason: ReasonAlreadyCancelled, OrderIDs: []uuid.UUID{order.ID}}
			return nil
		}

		note := "payment failed at gateway"
		if _, err := p.orders.CancelOrderTx(ctx, tx, orders.CancelOrderInput{
			OrderID:   order.ID,
			Reason:    enums.CancellationReasonPaymentFailed,
			Note:      &note,
			Initiator: enums.CancellationInitiatorCustomer,
			Actor:     auth.SystemActor(),
		}); err != nil {
			return err
		}

		metadata := map[string]any{
			"orderId":     order.ID.String(),
			"orderNumber": order.OrderNumber,
		}
		if event.PaymentID != "" {
			metadata["paymentId"] = event.PaymentID
		}
		if tgt.session != nil {
			metadata["checkoutSessionId"] = tgt.session.ID.String()
		}
		if err := p.activity.RecordTx(ctx, tx, activitylog.Entry{
			Type:       enums.ActivityLogSystemEvent,
			Action:     "order.payment_failed",
			EntityType: "order",
			EntityID:   &order.ID,
			Message:    fmt.Sprintf("Order %s cancelled after failed payment", order.OrderNumber),
			Metadata:   metadata,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
		}

		result = &Result{Processed: true, OrderIDs: []uuid.UUID{order.ID}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolve maps the external id to a checkout session (uuid) or an order
// number. A nil target means nothing matched.
func (p *processor) resolve(ctx context.Context, repo Repository, externalID string) (*target, error) {
	externalID = strings.TrimSpace(externalID)
	if id, err := uuid.Parse(externalID); err == nil {
		session, err := repo.FindSession(ctx, id)
		switch {
		case err == nil:
			rows, err := repo.ListSessionOrders(ctx, session.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout orders")
			}
			if len(rows) == 0 {
				return nil, nil
			}
			return &target{session: session, orders: rows}, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
		}
	}

	order, err := repo.FindOrderByNumber(ctx, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &target{orders: []models.Order{*order}}, nil
}

// allocate splits amount across orders in proportion to their totals using
// the largest-remainder method in minor units.
func allocate(amount decimal.Decimal, rows []models.Order) ([]decimal.Decimal, error) {
	weights := make([]int64, len(rows))
	for i, o := range rows {
		weights[i] = money.ToMinor(o.TotalAmount)
	}
	minor, err := money.AllocateLargestRemainder(money.ToMinor(amount), weights)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "allocate payment")
	}
	shares := make([]decimal.Decimal, len(minor))
	for i, m := range minor {
		shares[i] = money.FromMinor(m)
	}
	return shares, nil
}

func orderTotal(rows []models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range rows {
		total = total.Add(o.TotalAmount)
	}
	return total
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

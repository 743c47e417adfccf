// Package checkout turns a customer's cart into PENDING orders, one per
// selling organization.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/internal/cart"
	"github.com/tindahub/marketplace-backend/internal/vouchers"
	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/config"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/money"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/outbox/payloads"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// voucherEngine is the slice of the voucher service checkout relies on.
type voucherEngine interface {
	ValidateTx(ctx context.Context, tx *gorm.DB, input vouchers.ValidateInput) (*vouchers.ValidationResult, error)
	RedeemTx(ctx context.Context, tx *gorm.DB, input vouchers.RedeemInput) error
}

// Service executes checkout orchestration.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
}

// PlaceOrderInput captures the buyer and optional voucher for a checkout.
type PlaceOrderInput struct {
	Actor       auth.Actor
	Customer    types.CustomerSnapshot
	VoucherCode *string
}

// PlaceOrderResult lists the created orders. Session is nil when the cart held
// a single organization; PaymentReference is the id the gateway is told to
// report back in its webhook.
type PlaceOrderResult struct {
	Session          *models.CheckoutSession `json:"session,omitempty"`
	Orders           []models.Order          `json:"orders"`
	Total            decimal.Decimal         `json:"total"`
	PaymentReference string                  `json:"payment_reference"`
}

type service struct {
	repo     Repository
	tx       txRunner
	vouchers voucherEngine
	outbox   outboxPublisher
	cfg      config.CheckoutConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(
	repo Repository,
	tx txRunner,
	voucherSvc voucherEngine,
	publisher outboxPublisher,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if voucherSvc == nil {
		return nil, fmt.Errorf("voucher service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.ShippingFee.IsNegative() {
		return nil, fmt.Errorf("shipping fee must not be negative")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("checkout session ttl must be positive")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		vouchers: voucherSvc,
		outbox:   publisher,
		cfg:      cfg,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// draft is one organization's order while it is being priced.
type draft struct {
	group    cart.Group
	shipping decimal.Decimal
	discount decimal.Decimal
}

func (d *draft) total() decimal.Decimal {
	return money.MaxZero(d.group.Subtotal.Add(d.shipping).Sub(d.discount))
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	actor := input.Actor
	if actor.UserID == uuid.Nil || actor.IsSystem() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customer context required")
	}
	customer := input.Customer
	customer.ID = actor.UserID
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Email = strings.TrimSpace(customer.Email)
	if customer.Name == "" || customer.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name and email are required")
	}

	var result *PlaceOrderResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		items, err := repo.ListCartItems(ctx, actor.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		view := cart.BuildView(items)
		if len(view.Groups) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		if missing := unavailable(view); len(missing) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "some cart items are no longer available").
				WithDetails(map[string]any{"product_ids": missing})
		}

		drafts := make([]*draft, 0, len(view.Groups))
		for _, g := range view.Groups {
			drafts = append(drafts, &draft{group: g, shipping: money.Round2(s.cfg.ShippingFee), discount: decimal.Zero})
		}

		var voucher *models.Voucher
		if input.VoucherCode != nil && strings.TrimSpace(*input.VoucherCode) != "" {
			voucher, err = s.applyVoucher(ctx, tx, *input.VoucherCode, actor.UserID, drafts)
			if err != nil {
				return err
			}
		}

		for _, d := range drafts {
			for _, line := range d.group.Lines {
				if line.InventoryType != enums.InventoryTypeStock {
					continue
				}
				ok, err := repo.DecrementStock(ctx, line.ProductID, line.Quantity)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
				}
				if !ok {
					return pkgerrors.New(pkgerrors.CodeConflict, "not enough stock").
						WithDetails(map[string]any{"product_id": line.ProductID})
				}
			}
		}

		now := s.now()
		expiresAt := now.Add(s.cfg.SessionTTL)
		grand := decimal.Zero
		for _, d := range drafts {
			grand = grand.Add(d.total())
		}

		var session *models.CheckoutSession
		if len(drafts) > 1 {
			session = &models.CheckoutSession{
				ID:          uuid.New(),
				Reference:   newSessionReference(),
				CustomerID:  actor.UserID,
				TotalAmount: grand,
				Status:      enums.CheckoutSessionStatusPending,
				ExpiresAt:   &expiresAt,
			}
			if err := repo.CreateSession(ctx, session); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
			}
		}

		created := make([]models.Order, 0, len(drafts))
		var redeemOrder *uuid.UUID
		for _, d := range drafts {
			order := buildOrder(d, customer, now, expiresAt)
			if session != nil {
				order.CheckoutSessionID = &session.ID
			}
			if voucher != nil && d.discount.IsPositive() {
				order.VoucherID = &voucher.ID
				if redeemOrder == nil {
					id := order.ID
					redeemOrder = &id
				}
			}
			if err := repo.CreateOrder(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
			}
			if err := repo.CreateStatusEvent(ctx, &models.OrderStatusEvent{
				ID:            uuid.New(),
				OrderID:       order.ID,
				ToStatus:      order.Status,
				PaymentStatus: order.PaymentStatus,
				Note:          strPtr("order placed"),
				ActorID:       actor.UserIDPtr(),
				ActorRole:     string(actor.Role),
				CreatedAt:     now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order status")
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor.Ref(),
				Data: payloads.OrderCreatedEvent{
					OrderID:           order.ID,
					OrderNumber:       order.OrderNumber,
					OrganizationID:    order.OrganizationID,
					CheckoutSessionID: order.CheckoutSessionID,
					TotalAmount:       order.TotalAmount,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
			created = append(created, *order)
		}

		if voucher != nil {
			target := created[0].ID
			if redeemOrder != nil {
				target = *redeemOrder
			}
			discount := decimal.Zero
			for _, d := range drafts {
				discount = discount.Add(d.discount)
			}
			if err := s.vouchers.RedeemTx(ctx, tx, vouchers.RedeemInput{
				Voucher:        voucher,
				OrderID:        target,
				UserID:         actor.UserID,
				DiscountAmount: discount,
			}); err != nil {
				return err
			}
		}

		if err := repo.ClearCart(ctx, actor.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		reference := created[0].OrderNumber
		if session != nil {
			reference = session.ID.String()
		}
		result = &PlaceOrderResult{Session: session, Orders: created, Total: grand, PaymentReference: reference}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"customer_id":       actor.UserID.String(),
			"orders":            len(result.Orders),
			"payment_reference": result.PaymentReference,
		})
		s.logg.Info(ctx, "checkout placed")
	}
	return result, nil
}

// applyVoucher validates code against the cart and spreads the discount over
// the eligible drafts. Organization vouchers only touch that organization's
// order; platform vouchers cover the whole cart.
func (s *service) applyVoucher(ctx context.Context, tx *gorm.DB, code string, userID uuid.UUID, drafts []*draft) (*models.Voucher, error) {
	subtotal := decimal.Zero
	for _, d := range drafts {
		subtotal = subtotal.Add(d.group.Subtotal)
	}

	res, err := s.vouchers.ValidateTx(ctx, tx, vouchers.ValidateInput{Code: code, UserID: &userID, OrderAmount: subtotal})
	if err != nil {
		return nil, err
	}
	eligible := drafts
	if !res.Valid && res.Code == enums.VoucherOrganizationMismatch {
		for _, d := range drafts {
			orgID := d.group.OrganizationID
			scoped, err := s.vouchers.ValidateTx(ctx, tx, vouchers.ValidateInput{
				Code:           code,
				UserID:         &userID,
				OrganizationID: &orgID,
				OrderAmount:    d.group.Subtotal,
			})
			if err != nil {
				return nil, err
			}
			if scoped.Code == enums.VoucherOrganizationMismatch {
				continue
			}
			res = scoped
			eligible = []*draft{d}
			break
		}
	}
	if !res.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, res.Message).
			WithDetails(map[string]any{"code": res.Code})
	}

	switch res.DiscountType {
	case enums.DiscountTypeFreeItem:
		var target *draft
		cheapest := decimal.Zero
		for _, d := range eligible {
			for _, line := range d.group.Lines {
				if target == nil || line.UnitPrice.LessThan(cheapest) {
					target = d
					cheapest = line.UnitPrice
				}
			}
		}
		if target != nil {
			target.discount = money.Min(cheapest, target.group.Subtotal)
		}
	case enums.DiscountTypeFreeShipping:
		for _, d := range eligible {
			d.discount = d.shipping
		}
	default:
		base := func(d *draft) decimal.Decimal { return d.group.Subtotal }
		if res.DiscountType == enums.DiscountTypeRefund {
			base = func(d *draft) decimal.Decimal { return d.group.Subtotal.Add(d.shipping) }
		}
		capAt := decimal.Zero
		weights := make([]int64, len(eligible))
		for i, d := range eligible {
			capAt = capAt.Add(base(d))
			weights[i] = money.ToMinor(base(d))
		}
		amount := money.Min(res.DiscountAmount, capAt)
		shares, err := money.AllocateLargestRemainder(money.ToMinor(amount), weights)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate voucher discount")
		}
		for i, d := range eligible {
			d.discount = money.FromMinor(shares[i])
		}
	}
	return res.Voucher, nil
}

func buildOrder(d *draft, customer types.CustomerSnapshot, now, expiresAt time.Time) *models.Order {
	orgID := d.group.OrganizationID
	order := &models.Order{
		ID:                uuid.New(),
		OrderNumber:       newOrderNumber(now),
		OrganizationID:    &orgID,
		CustomerID:        customer.ID,
		CustomerInfo:      customer,
		Status:            enums.OrderStatusPending,
		PaymentStatus:     enums.PaymentStatusPending,
		SubtotalAmount:    d.group.Subtotal,
		ShippingFee:       d.shipping,
		DiscountAmount:    d.discount,
		VoucherDiscount:   d.discount,
		TotalAmount:       d.total(),
		ItemCount:         d.group.ItemCount,
		CheckoutExpiresAt: &expiresAt,
		OrderDate:         now,
	}
	for _, line := range d.group.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:            uuid.New(),
			OrderID:       order.ID,
			ProductID:     line.ProductID,
			ProductName:   line.ProductName,
			InventoryType: line.InventoryType,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			LineTotal:     line.LineTotal,
		})
	}
	return order
}

func unavailable(view *cart.View) []uuid.UUID {
	var ids []uuid.UUID
	for _, g := range view.Groups {
		for _, line := range g.Lines {
			if !line.Available {
				ids = append(ids, line.ProductID)
			}
		}
	}
	return ids
}

func newOrderNumber(now time.Time) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), raw[:6])
}

func newSessionReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "CS-" + raw[:10]
}

func strPtr(v string) *string {
	return &v
}

package vouchers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/logger"
	"github.com/tindahub/marketplace-backend/pkg/money"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/outbox/payloads"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
	"github.com/tindahub/marketplace-backend/pkg/types"
)

// SellerRefundEligibilityDelay is how long a seller-initiated refund voucher
// stays store credit before it may be paid out in currency.
const SellerRefundEligibilityDelay = 14 * 24 * time.Hour

const refundCodePrefix = "RF-"

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the voucher engine.
type Service interface {
	Validate(ctx context.Context, input ValidateInput) (*ValidationResult, error)
	ValidateTx(ctx context.Context, tx *gorm.DB, input ValidateInput) (*ValidationResult, error)
	CreateVoucher(ctx context.Context, input CreateVoucherInput) (*models.Voucher, error)
	GetVoucher(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Voucher, error)
	ListVouchers(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*VoucherList, error)
	IssueRefundVoucherTx(ctx context.Context, tx *gorm.DB, input IssueRefundInput) (*models.Voucher, error)
	RedeemTx(ctx context.Context, tx *gorm.DB, input RedeemInput) error
}

// ValidateInput is a read-only validation request. UserID and OrganizationID
// are optional.
type ValidateInput struct {
	Code           string
	UserID         *uuid.UUID
	OrganizationID *uuid.UUID
	OrderAmount    decimal.Decimal
}

// ValidationResult carries either a discount or a closed-taxonomy failure code.
type ValidationResult struct {
	Valid          bool                        `json:"valid"`
	Code           enums.VoucherValidationCode `json:"code,omitempty"`
	Message        string                      `json:"message,omitempty"`
	DiscountAmount decimal.Decimal             `json:"discount_amount"`
	DiscountType   enums.DiscountType          `json:"discount_type,omitempty"`
	Voucher        *models.Voucher             `json:"-"`
}

type CreateVoucherInput struct {
	Code              string
	Description       *string
	DiscountType      enums.DiscountType
	DiscountValue     decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        *int
	UsageLimitPerUser *int
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	OrganizationID    *uuid.UUID
	Actor             auth.Actor
}

type IssueRefundInput struct {
	OrderID          uuid.UUID
	Amount           decimal.Decimal
	AssignedToUserID uuid.UUID
	CreatedByID      *uuid.UUID
	Initiator        enums.CancellationInitiator
	Actor            auth.Actor
}

type RedeemInput struct {
	Voucher        *models.Voucher
	OrderID        uuid.UUID
	UserID         uuid.UUID
	DiscountAmount decimal.Decimal
}

type VoucherList struct {
	Vouchers   []models.Voucher
	NextCursor string
}

type service struct {
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vouchers repository required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		outbox: outbox,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Validate(ctx context.Context, input ValidateInput) (*ValidationResult, error) {
	return s.validate(ctx, s.repo, input)
}

func (s *service) ValidateTx(ctx context.Context, tx *gorm.DB, input ValidateInput) (*ValidationResult, error) {
	return s.validate(ctx, s.repo.WithTx(tx), input)
}

// validate applies the checks in order; the first failure wins.
func (s *service) validate(ctx context.Context, repo Repository, input ValidateInput) (*ValidationResult, error) {
	if input.OrderAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must not be negative")
	}
	code := NormalizeCode(input.Code)
	if code == "" {
		return invalid(enums.VoucherNotFound, "voucher not found"), nil
	}

	voucher, err := repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid(enums.VoucherNotFound, "voucher not found"), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}

	if voucher.IsDeleted || !voucher.IsActive {
		return invalid(enums.VoucherInactive, "voucher is not active"), nil
	}

	now := s.now()
	if now.Before(voucher.ValidFrom) {
		return invalid(enums.VoucherNotStarted, "voucher is not yet valid"), nil
	}
	if voucher.ValidUntil != nil && now.After(*voucher.ValidUntil) {
		return invalid(enums.VoucherExpired, "voucher has expired"), nil
	}

	if voucher.OrganizationID != nil {
		if input.OrganizationID == nil || *input.OrganizationID != *voucher.OrganizationID {
			return invalid(enums.VoucherOrganizationMismatch, "voucher is not valid for this store"), nil
		}
	}

	if voucher.UsageLimit != nil && voucher.UsedCount >= *voucher.UsageLimit {
		return invalid(enums.VoucherUsageLimitReached, "voucher usage limit reached"), nil
	}

	if voucher.UsageLimitPerUser != nil && input.UserID != nil {
		used, err := repo.CountUserUsages(ctx, voucher.ID, *input.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count voucher usages")
		}
		if used >= int64(*voucher.UsageLimitPerUser) {
			return invalid(enums.VoucherUserUsageLimitReached, "you have already used this voucher"), nil
		}
	}

	if voucher.MinOrderAmount != nil && input.OrderAmount.LessThan(*voucher.MinOrderAmount) {
		return invalid(enums.VoucherMinOrderNotMet, fmt.Sprintf("minimum order amount is %s", voucher.MinOrderAmount.StringFixed(2))), nil
	}

	// refund credit is personal; a mismatch reads as exhausted so the code's existence is not leaked
	if voucher.DiscountType == enums.DiscountTypeRefund {
		if voucher.AssignedToUserID == nil || input.UserID == nil || *voucher.AssignedToUserID != *input.UserID {
			return invalid(enums.VoucherUsageLimitReached, "voucher usage limit reached"), nil
		}
	}

	return &ValidationResult{
		Valid:          true,
		DiscountAmount: ComputeDiscount(voucher, input.OrderAmount),
		DiscountType:   voucher.DiscountType,
		Voucher:        voucher,
	}, nil
}

func invalid(code enums.VoucherValidationCode, message string) *ValidationResult {
	return &ValidationResult{Valid: false, Code: code, Message: message, DiscountAmount: decimal.Zero}
}

// ComputeDiscount returns the discount a voucher grants on orderAmount.
// FREE_ITEM and FREE_SHIPPING are priced by the caller and yield zero here.
func ComputeDiscount(voucher *models.Voucher, orderAmount decimal.Decimal) decimal.Decimal {
	if voucher == nil {
		return decimal.Zero
	}
	switch voucher.DiscountType {
	case enums.DiscountTypePercentage:
		discount := money.Percent(orderAmount, voucher.DiscountValue)
		if voucher.MaxDiscountAmount != nil {
			discount = money.Min(discount, *voucher.MaxDiscountAmount)
		}
		return money.MaxZero(discount)
	case enums.DiscountTypeFixedAmount:
		return money.MaxZero(money.Min(voucher.DiscountValue, orderAmount))
	case enums.DiscountTypeRefund:
		return money.Round2(voucher.DiscountValue)
	default:
		return decimal.Zero
	}
}

func (s *service) CreateVoucher(ctx context.Context, input CreateVoucherInput) (*models.Voucher, error) {
	orgID, err := authorizeVoucherScope(input.Actor, input.OrganizationID)
	if err != nil {
		return nil, err
	}

	code := NormalizeCode(input.Code)
	if !codePattern.MatchString(code) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code must be 3-32 letters, digits, dashes or underscores")
	}
	if strings.HasPrefix(code, refundCodePrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code prefix is reserved")
	}
	if !input.DiscountType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}
	if input.DiscountType == enums.DiscountTypeRefund {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund vouchers are issued by the platform")
	}
	if input.DiscountType == enums.DiscountTypePercentage || input.DiscountType == enums.DiscountTypeFixedAmount {
		if !input.DiscountValue.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "discount value must be greater than zero").
				WithDetails(map[string]any{"discount_value": input.DiscountValue.String()})
		}
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	if input.MinOrderAmount != nil && input.MinOrderAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum order amount must not be negative")
	}
	if input.MaxDiscountAmount != nil && !input.MaxDiscountAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "maximum discount must be greater than zero")
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage limit must be positive")
	}
	if input.UsageLimitPerUser != nil && *input.UsageLimitPerUser <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "per-user usage limit must be positive")
	}

	now := s.now()
	validFrom := now
	if input.ValidFrom != nil {
		validFrom = input.ValidFrom.UTC()
	}
	var validUntil *time.Time
	if input.ValidUntil != nil {
		until := input.ValidUntil.UTC()
		if !until.After(validFrom) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid_until must be after valid_from")
		}
		validUntil = &until
	}

	voucher := &models.Voucher{
		ID:                uuid.New(),
		Code:              code,
		Description:       input.Description,
		DiscountType:      input.DiscountType,
		DiscountValue:     money.Round2(input.DiscountValue),
		MinOrderAmount:    input.MinOrderAmount,
		MaxDiscountAmount: input.MaxDiscountAmount,
		UsageLimit:        input.UsageLimit,
		UsageLimitPerUser: input.UsageLimitPerUser,
		ValidFrom:         validFrom,
		ValidUntil:        validUntil,
		OrganizationID:    orgID,
		IsActive:          true,
		CreatedByID:       input.Actor.UserIDPtr(),
	}

	if err := s.repo.Create(ctx, voucher); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "voucher code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create voucher")
	}
	return voucher, nil
}

// authorizeVoucherScope resolves which organization a new voucher belongs to.
func authorizeVoucherScope(actor auth.Actor, requested *uuid.UUID) (*uuid.UUID, error) {
	switch {
	case actor.Role.IsPrivileged():
		return requested, nil
	case actor.Role == enums.ActorRoleSeller:
		if actor.OrganizationID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organization context missing")
		}
		if requested != nil && *requested != *actor.OrganizationID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot create vouchers for another organization")
		}
		return actor.OrganizationID, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to create vouchers")
	}
}

func (s *service) GetVoucher(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Voucher, error) {
	voucher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if !canView(actor, voucher) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	}
	return voucher, nil
}

func canView(actor auth.Actor, v *models.Voucher) bool {
	if actor.IsPrivileged() {
		return true
	}
	if v.AssignedToUserID != nil && *v.AssignedToUserID == actor.UserID {
		return true
	}
	return actor.Role == enums.ActorRoleSeller && actor.OwnsOrganization(v.OrganizationID)
}

func (s *service) ListVouchers(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*VoucherList, error) {
	switch {
	case actor.IsPrivileged():
	case actor.Role == enums.ActorRoleSeller:
		filters.OrganizationID = actor.OrganizationID
		filters.AssignedTo = nil
	default:
		id := actor.UserID
		filters = ListFilters{AssignedTo: &id}
	}

	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vouchers")
	}
	page, next := pagination.Trim(rows, params.Limit, func(v models.Voucher) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &VoucherList{Vouchers: page, NextCursor: next}, nil
}

// IssueRefundVoucherTx creates a single-use, platform-wide REFUND voucher for
// the customer of a refunded order.
func (s *service) IssueRefundVoucherTx(ctx context.Context, tx *gorm.DB, input IssueRefundInput) (*models.Voucher, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "refund amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount.String()})
	}
	if !input.Initiator.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation initiator")
	}
	if input.AssignedToUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund voucher requires a recipient")
	}

	now := s.now()
	one := 1
	initiator := input.Initiator
	orderID := input.OrderID
	description := fmt.Sprintf("Refund credit for order %s", input.OrderID)

	voucher := &models.Voucher{
		ID:                    uuid.New(),
		Code:                  newRefundCode(),
		Description:           &description,
		DiscountType:          enums.DiscountTypeRefund,
		DiscountValue:         money.Round2(input.Amount),
		UsageLimit:            &one,
		UsageLimitPerUser:     &one,
		ValidFrom:             now,
		IsActive:              true,
		AssignedToUserID:      &input.AssignedToUserID,
		CancellationInitiator: &initiator,
		SourceOrderID:         &orderID,
		CreatedByID:           input.CreatedByID,
	}
	if initiator == enums.CancellationInitiatorSeller {
		eligible := now.Add(SellerRefundEligibilityDelay)
		voucher.MonetaryRefundEligibleAt = &eligible
	}

	if err := s.repo.WithTx(tx).Create(ctx, voucher); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund voucher")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventRefundVoucherIssued,
		AggregateType: enums.AggregateVoucher,
		AggregateID:   voucher.ID,
		Actor:         input.Actor.Ref(),
		Data: payloads.RefundVoucherIssuedEvent{
			VoucherID:  voucher.ID,
			Code:       voucher.Code,
			OrderID:    input.OrderID,
			Amount:     voucher.DiscountValue,
			AssignedTo: input.AssignedToUserID,
			Initiator:  initiator,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund voucher event")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"voucher_id": voucher.ID.String(),
			"order_id":   input.OrderID.String(),
			"initiator":  string(initiator),
		})
		s.logg.Info(logCtx, "refund voucher issued")
	}
	return voucher, nil
}

// RedeemTx commits a validated voucher to an order. The used_count increment is
// conditional so concurrent redemptions of the last use cannot both succeed.
func (s *service) RedeemTx(ctx context.Context, tx *gorm.DB, input RedeemInput) error {
	if input.Voucher == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "voucher required")
	}
	repo := s.repo.WithTx(tx)
	v := input.Voucher

	ok, err := repo.IncrementUsage(ctx, v.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment voucher usage")
	}
	if !ok {
		return usageConflict(enums.VoucherUsageLimitReached)
	}

	usage := &models.VoucherUsage{
		ID:             uuid.New(),
		VoucherID:      v.ID,
		OrderID:        input.OrderID,
		UserID:         input.UserID,
		DiscountAmount: money.Round2(input.DiscountAmount),
		VoucherSnapshot: types.VoucherSnapshot{
			Code:          v.Code,
			DiscountType:  string(v.DiscountType),
			DiscountValue: v.DiscountValue,
		},
	}
	if v.UsageLimitPerUser != nil && *v.UsageLimitPerUser == 1 {
		key := fmt.Sprintf("%s:%s", v.ID, input.UserID)
		usage.UniqueKey = &key
	}
	if err := repo.CreateUsage(ctx, usage); err != nil {
		if db.IsUniqueViolation(err, "") {
			return usageConflict(enums.VoucherUserUsageLimitReached)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record voucher usage")
	}
	v.UsedCount++
	return nil
}

func usageConflict(code enums.VoucherValidationCode) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "voucher can no longer be used").
		WithDetails(map[string]any{"code": code})
}

func newRefundCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return refundCodePrefix + strings.ToUpper(raw[:12])
}

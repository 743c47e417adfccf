package vouchers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tindahub/marketplace-backend/pkg/auth"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/outbox"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

type stubVoucherRepo struct {
	byCode     map[string]*models.Voucher
	created    []*models.Voucher
	usageCount int64
	createErr  error
	findErr    error
}

func (s *stubVoucherRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubVoucherRepo) Create(ctx context.Context, v *models.Voucher) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, v)
	return nil
}

func (s *stubVoucherRepo) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if v, ok := s.byCode[NormalizeCode(code)]; ok {
		return v, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubVoucherRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	for _, v := range s.byCode {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubVoucherRepo) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Voucher, error) {
	return nil, nil
}

func (s *stubVoucherRepo) CountUserUsages(ctx context.Context, voucherID, userID uuid.UUID) (int64, error) {
	return s.usageCount, nil
}

func (s *stubVoucherRepo) IncrementUsage(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	return true, nil
}

func (s *stubVoucherRepo) CreateUsage(ctx context.Context, usage *models.VoucherUsage) error {
	return nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo *stubVoucherRepo) (*service, *stubOutbox) {
	t.Helper()
	ob := &stubOutbox{}
	svc, err := NewService(repo, ob, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	s := svc.(*service)
	s.now = func() time.Time { return fixedNow }
	return s, ob
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func intPtr(v int) *int { return &v }

func baseVoucher(code string, typ enums.DiscountType, value string) *models.Voucher {
	return &models.Voucher{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  typ,
		DiscountValue: dec(value),
		ValidFrom:     fixedNow.Add(-time.Hour),
		IsActive:      true,
	}
}

func TestValidatePercentageCappedAtMaxDiscount(t *testing.T) {
	v := baseVoucher("HALF", enums.DiscountTypePercentage, "50")
	v.MaxDiscountAmount = decPtr("200")
	svc, _ := newTestService(t, &stubVoucherRepo{byCode: map[string]*models.Voucher{"HALF": v}})

	res, err := svc.Validate(context.Background(), ValidateInput{Code: "half", OrderAmount: dec("1000")})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid || !res.DiscountAmount.Equal(dec("200")) {
		t.Fatalf("expected 200 discount, got %+v", res)
	}
}

func TestValidateFixedAmountCappedAtOrderTotal(t *testing.T) {
	v := baseVoucher("FLAT", enums.DiscountTypeFixedAmount, "1000")
	svc, _ := newTestService(t, &stubVoucherRepo{byCode: map[string]*models.Voucher{"FLAT": v}})

	res, err := svc.Validate(context.Background(), ValidateInput{Code: "FLAT", OrderAmount: dec("500")})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.DiscountAmount.Equal(dec("500")) {
		t.Fatalf("expected 500, got %s", res.DiscountAmount)
	}
}

func TestValidateFailureCodes(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	otherOrg := uuid.New()
	past := fixedNow.Add(-time.Minute)

	cases := []struct {
		name    string
		mutate  func(v *models.Voucher)
		input   ValidateInput
		usages  int64
		want    enums.VoucherValidationCode
		missing bool
	}{
		{name: "not found", missing: true, want: enums.VoucherNotFound},
		{name: "deleted", mutate: func(v *models.Voucher) { v.IsDeleted = true }, want: enums.VoucherInactive},
		{name: "inactive", mutate: func(v *models.Voucher) { v.IsActive = false }, want: enums.VoucherInactive},
		{name: "not started", mutate: func(v *models.Voucher) { v.ValidFrom = fixedNow.Add(time.Hour) }, want: enums.VoucherNotStarted},
		{name: "expired", mutate: func(v *models.Voucher) { v.ValidUntil = &past }, want: enums.VoucherExpired},
		{name: "org mismatch", mutate: func(v *models.Voucher) { v.OrganizationID = &orgID }, input: ValidateInput{OrganizationID: &otherOrg}, want: enums.VoucherOrganizationMismatch},
		{name: "org missing", mutate: func(v *models.Voucher) { v.OrganizationID = &orgID }, want: enums.VoucherOrganizationMismatch},
		{name: "usage limit", mutate: func(v *models.Voucher) { v.UsageLimit = intPtr(3); v.UsedCount = 3 }, want: enums.VoucherUsageLimitReached},
		{name: "per user", mutate: func(v *models.Voucher) { v.UsageLimitPerUser = intPtr(1) }, input: ValidateInput{UserID: &userID}, usages: 1, want: enums.VoucherUserUsageLimitReached},
		{name: "min order", mutate: func(v *models.Voucher) { v.MinOrderAmount = decPtr("5000") }, want: enums.VoucherMinOrderNotMet},
		// an expired voucher that is also over its limit reports the earlier check
		{name: "first failure wins", mutate: func(v *models.Voucher) { v.ValidUntil = &past; v.UsageLimit = intPtr(1); v.UsedCount = 1 }, want: enums.VoucherExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubVoucherRepo{byCode: map[string]*models.Voucher{}, usageCount: tc.usages}
			if !tc.missing {
				v := baseVoucher("CODE", enums.DiscountTypeFixedAmount, "10")
				if tc.mutate != nil {
					tc.mutate(v)
				}
				repo.byCode["CODE"] = v
			}
			svc, _ := newTestService(t, repo)

			input := tc.input
			input.Code = "CODE"
			input.OrderAmount = dec("100")
			res, err := svc.Validate(context.Background(), input)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if res.Valid || res.Code != tc.want {
				t.Fatalf("expected %s, got valid=%v code=%s", tc.want, res.Valid, res.Code)
			}
			if !res.DiscountAmount.IsZero() {
				t.Fatalf("expected zero discount on failure")
			}
		})
	}
}

func TestValidateRefundOwnership(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	v := baseVoucher("RF-ABC", enums.DiscountTypeRefund, "750")
	v.AssignedToUserID = &owner
	svc, _ := newTestService(t, &stubVoucherRepo{byCode: map[string]*models.Voucher{"RF-ABC": v}})

	res, err := svc.Validate(context.Background(), ValidateInput{Code: "RF-ABC", UserID: &stranger, OrderAmount: dec("100")})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid || res.Code != enums.VoucherUsageLimitReached {
		t.Fatalf("expected usage-limit style rejection, got %+v", res)
	}

	res, err = svc.Validate(context.Background(), ValidateInput{Code: "RF-ABC", UserID: &owner, OrderAmount: dec("100")})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid || !res.DiscountAmount.Equal(dec("750")) {
		t.Fatalf("expected full refund value, got %+v", res)
	}
}

func TestValidateDependencyError(t *testing.T) {
	svc, _ := newTestService(t, &stubVoucherRepo{findErr: errors.New("db down")})
	_, err := svc.Validate(context.Background(), ValidateInput{Code: "X", OrderAmount: dec("1")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestComputeDiscountFreeTypesAreCallerPriced(t *testing.T) {
	for _, typ := range []enums.DiscountType{enums.DiscountTypeFreeItem, enums.DiscountTypeFreeShipping} {
		if d := ComputeDiscount(baseVoucher("F", typ, "0"), dec("100")); !d.IsZero() {
			t.Fatalf("%s: expected zero, got %s", typ, d)
		}
	}
	pct := baseVoucher("P", enums.DiscountTypePercentage, "12.5")
	if d := ComputeDiscount(pct, dec("99.99")); !d.Equal(dec("12.50")) {
		t.Fatalf("expected rounded 12.50, got %s", d)
	}
}

func TestIssueRefundVoucherSellerEligibility(t *testing.T) {
	repo := &stubVoucherRepo{}
	svc, ob := newTestService(t, repo)
	customer := uuid.New()

	v, err := svc.IssueRefundVoucherTx(context.Background(), nil, IssueRefundInput{
		OrderID:          uuid.New(),
		Amount:           dec("1200"),
		AssignedToUserID: customer,
		Initiator:        enums.CancellationInitiatorSeller,
		Actor:            auth.SystemActor(),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if v.DiscountType != enums.DiscountTypeRefund || v.OrganizationID != nil {
		t.Fatalf("unexpected voucher %+v", v)
	}
	if *v.UsageLimit != 1 || *v.UsageLimitPerUser != 1 {
		t.Fatal("expected single-use limits")
	}
	if v.MonetaryRefundEligibleAt == nil || !v.MonetaryRefundEligibleAt.Equal(fixedNow.Add(14*24*time.Hour)) {
		t.Fatalf("expected eligibility 14 days out, got %v", v.MonetaryRefundEligibleAt)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventRefundVoucherIssued {
		t.Fatalf("expected refund voucher event, got %+v", ob.events)
	}
}

func TestIssueRefundVoucherCustomerHasNoEligibility(t *testing.T) {
	svc, _ := newTestService(t, &stubVoucherRepo{})
	v, err := svc.IssueRefundVoucherTx(context.Background(), nil, IssueRefundInput{
		OrderID:          uuid.New(),
		Amount:           dec("10"),
		AssignedToUserID: uuid.New(),
		Initiator:        enums.CancellationInitiatorCustomer,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if v.MonetaryRefundEligibleAt != nil {
		t.Fatalf("expected no eligibility, got %v", v.MonetaryRefundEligibleAt)
	}
}

func TestIssueRefundVoucherRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t, &stubVoucherRepo{})
	for _, amount := range []string{"0", "-5"} {
		_, err := svc.IssueRefundVoucherTx(context.Background(), nil, IssueRefundInput{
			OrderID:          uuid.New(),
			Amount:           dec(amount),
			AssignedToUserID: uuid.New(),
			Initiator:        enums.CancellationInitiatorCustomer,
		})
		if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount) {
			t.Fatalf("amount %s: expected invalid amount, got %v", amount, err)
		}
	}
}

func TestCreateVoucherRules(t *testing.T) {
	orgID := uuid.New()
	seller := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleSeller, OrganizationID: &orgID}
	admin := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}

	repo := &stubVoucherRepo{}
	svc, _ := newTestService(t, repo)

	v, err := svc.CreateVoucher(context.Background(), CreateVoucherInput{
		Code: " spring-10 ", DiscountType: enums.DiscountTypePercentage, DiscountValue: dec("10"), Actor: seller,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Code != "SPRING-10" || v.OrganizationID == nil || *v.OrganizationID != orgID {
		t.Fatalf("unexpected voucher %+v", v)
	}

	bad := []CreateVoucherInput{
		{Code: "RF-HACK", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("1"), Actor: admin},
		{Code: "REFUNDME", DiscountType: enums.DiscountTypeRefund, DiscountValue: dec("1"), Actor: admin},
		{Code: "TOOMUCH", DiscountType: enums.DiscountTypePercentage, DiscountValue: dec("101"), Actor: admin},
		{Code: "X", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("1"), Actor: admin},
		{Code: "ZERO", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("0"), Actor: admin},
		{Code: "LIMIT", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("1"), UsageLimit: intPtr(0), Actor: admin},
	}
	for _, in := range bad {
		if _, err := svc.CreateVoucher(context.Background(), in); err == nil {
			t.Fatalf("expected error for %+v", in)
		}
	}

	_, err = svc.CreateVoucher(context.Background(), CreateVoucherInput{
		Code: "NOPE", DiscountType: enums.DiscountTypeFixedAmount, DiscountValue: dec("1"),
		Actor: auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}
}

func TestCreateVoucherDuplicateCode(t *testing.T) {
	repo := &stubVoucherRepo{createErr: errors.New(`UNIQUE constraint failed: vouchers.code`)}
	svc, _ := newTestService(t, repo)
	_, err := svc.CreateVoucher(context.Background(), CreateVoucherInput{
		Code: "DUPE", DiscountType: enums.DiscountTypeFreeShipping, Actor: auth.Actor{Role: enums.ActorRoleAdmin},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

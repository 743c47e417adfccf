package vouchers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tindahub/marketplace-backend/pkg/db/dbtest"
	"github.com/tindahub/marketplace-backend/pkg/db/models"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/pagination"
)

func seedVoucher(t *testing.T, repo Repository, code string, mutate func(v *models.Voucher)) *models.Voucher {
	t.Helper()
	v := &models.Voucher{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  enums.DiscountTypeFixedAmount,
		DiscountValue: dec("50"),
		ValidFrom:     time.Now().UTC().Add(-time.Hour),
		IsActive:      true,
	}
	if mutate != nil {
		mutate(v)
	}
	require.NoError(t, repo.Create(context.Background(), v))
	return v
}

func TestRepositoryFindByCodeIsCaseInsensitive(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	v := seedVoucher(t, repo, "WELCOME", nil)

	found, err := repo.FindByCode(context.Background(), " welcome ")
	require.NoError(t, err)
	assert.Equal(t, v.ID, found.ID)
	assert.True(t, found.DiscountValue.Equal(dec("50")))
}

func TestRepositoryIncrementUsageRespectsLimit(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	v := seedVoucher(t, repo, "ONCE", func(v *models.Voucher) { v.UsageLimit = intPtr(1) })

	ok, err := repo.IncrementUsage(context.Background(), v.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementUsage(context.Background(), v.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := repo.FindByID(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsedCount)
}

func TestRedeemTxRecordsUsageOncePerUser(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	v := seedVoucher(t, repo, "SOLO", func(v *models.Voucher) {
		v.UsageLimit = intPtr(10)
		v.UsageLimitPerUser = intPtr(1)
	})
	svc, _ := newTestService(t, &stubVoucherRepo{})
	svc.repo = repo
	user := uuid.New()

	require.NoError(t, svc.RedeemTx(context.Background(), conn, RedeemInput{Voucher: v, OrderID: uuid.New(), UserID: user, DiscountAmount: dec("50")}))

	count, err := repo.CountUserUsages(context.Background(), v.ID, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = svc.RedeemTx(context.Background(), conn, RedeemInput{Voucher: v, OrderID: uuid.New(), UserID: user, DiscountAmount: dec("50")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestRepositoryListPaginates(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	orgID := uuid.New()
	for i, code := range []string{"AAA1", "AAA2", "AAA3"} {
		offset := time.Duration(i) * time.Minute
		seedVoucher(t, repo, code, func(v *models.Voucher) {
			v.OrganizationID = &orgID
			v.CreatedAt = time.Now().UTC().Add(offset)
		})
	}
	seedVoucher(t, repo, "OTHER", nil)

	rows, err := repo.List(context.Background(), ListFilters{OrganizationID: &orgID}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	page, next := pagination.Trim(rows, 2, func(v models.Voucher) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	assert.Equal(t, "AAA3", page[0].Code)
	require.NotEmpty(t, next)

	rest, err := repo.List(context.Background(), ListFilters{OrganizationID: &orgID}, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "AAA1", rest[0].Code)
}

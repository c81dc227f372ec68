package discount_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/db/dbtest"
	"github.com/lojf/storebot/internal/discount"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/metrics"
	"github.com/lojf/storebot/internal/models"
)

const (
	userX int64 = 11
	userY int64 = 12
)

func setup(t *testing.T, policy discount.Policy) (*discount.Service, *gorm.DB) {
	t.Helper()
	gdb := dbtest.New(t)
	dbtest.SeedUsers(t, gdb, map[int64]int64{userX: 0, userY: 0})
	log := zaptest.NewLogger(t)
	svc := discount.New(gdb, ledger.New(gdb, log, nil), policy, log, nil)
	_, err := svc.Create(context.Background(), "SAVE100", 100)
	require.NoError(t, err)
	return svc, gdb
}

func TestSingleUseCodeGrantsOnce(t *testing.T) {
	svc, gdb := setup(t, discount.PolicySingleUse)
	ctx := context.Background()

	granted, err := svc.Redeem(ctx, "SAVE100", userX)
	require.NoError(t, err)
	require.Equal(t, int64(100), granted)
	require.Equal(t, int64(100), dbtest.Balance(t, gdb, userX))

	dc, err := svc.Get(ctx, "SAVE100")
	require.NoError(t, err)
	require.Equal(t, int64(1), dc.UsageCount)

	_, err = svc.Redeem(ctx, "SAVE100", userY)
	require.ErrorIs(t, err, discount.ErrCodeAlreadyUsed)
	require.Equal(t, int64(0), dbtest.Balance(t, gdb, userY))

	// same user twice is also refused
	_, err = svc.Redeem(ctx, "save100", userX)
	require.ErrorIs(t, err, discount.ErrCodeAlreadyUsed)
	require.Equal(t, int64(100), dbtest.Balance(t, gdb, userX))

	dc, err = svc.Get(ctx, "SAVE100")
	require.NoError(t, err)
	require.Equal(t, int64(1), dc.UsageCount)
}

func TestRedemptionOutcomesAreCounted(t *testing.T) {
	gdb := dbtest.New(t)
	dbtest.SeedUsers(t, gdb, map[int64]int64{userX: 0, userY: 0})
	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	svc := discount.New(gdb, ledger.New(gdb, log, nil), discount.PolicySingleUse, log, metrics.New(reg))
	ctx := context.Background()
	_, err := svc.Create(ctx, "SAVE100", 100)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "SAVE100", userX)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, "SAVE100", userY)
	require.ErrorIs(t, err, discount.ErrCodeAlreadyUsed)

	want := `
# HELP storebot_discount_redemptions_total Discount code redemption attempts by outcome.
# TYPE storebot_discount_redemptions_total counter
storebot_discount_redemptions_total{outcome="already_used"} 1
storebot_discount_redemptions_total{outcome="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "storebot_discount_redemptions_total"))
}

func TestCountedCodeStaysValid(t *testing.T) {
	svc, gdb := setup(t, discount.PolicyCounted)
	ctx := context.Background()

	for _, u := range []int64{userX, userY, userX} {
		_, err := svc.Redeem(ctx, "SAVE100", u)
		require.NoError(t, err)
	}
	require.Equal(t, int64(200), dbtest.Balance(t, gdb, userX))
	require.Equal(t, int64(100), dbtest.Balance(t, gdb, userY))

	dc, err := svc.Get(ctx, "SAVE100")
	require.NoError(t, err)
	require.Equal(t, int64(3), dc.UsageCount)

	reds, err := svc.Redemptions(ctx, "SAVE100")
	require.NoError(t, err)
	require.Len(t, reds, 3)
}

func TestUnknownCode(t *testing.T) {
	svc, gdb := setup(t, discount.PolicySingleUse)

	_, err := svc.Redeem(context.Background(), "NOPE", userX)
	require.ErrorIs(t, err, discount.ErrCodeNotFound)

	_, err = svc.Redeem(context.Background(), "   ", userX)
	require.ErrorIs(t, err, discount.ErrCodeNotFound)
	require.Equal(t, int64(0), dbtest.Balance(t, gdb, userX))
}

// A failed credit must not consume the code.
func TestRedeemRollsBackWhenUserMissing(t *testing.T) {
	svc, gdb := setup(t, discount.PolicySingleUse)
	ctx := context.Background()

	_, err := svc.Redeem(ctx, "SAVE100", 999)
	require.ErrorIs(t, err, ledger.ErrUserNotFound)

	dc, err := svc.Get(ctx, "SAVE100")
	require.NoError(t, err)
	require.Zero(t, dc.UsageCount)

	var n int64
	require.NoError(t, gdb.Model(&models.DiscountRedemption{}).Count(&n).Error)
	require.Zero(t, n)

	_, err = svc.Redeem(ctx, "SAVE100", userY)
	require.NoError(t, err)
}

func TestCodeCRUD(t *testing.T) {
	svc, _ := setup(t, discount.PolicySingleUse)
	ctx := context.Background()

	_, err := svc.Create(ctx, "save100", 5)
	require.ErrorIs(t, err, discount.ErrCodeExists)
	_, err = svc.Create(ctx, "BAD CODE", 5)
	require.ErrorIs(t, err, discount.ErrInvalidCode)
	_, err = svc.Create(ctx, "ZERO", 0)
	require.ErrorIs(t, err, discount.ErrInvalidCode)

	_, err = svc.Create(ctx, "welcome", 20)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, svc.Delete(ctx, "WELCOME"))
	require.ErrorIs(t, svc.Delete(ctx, "WELCOME"), discount.ErrCodeNotFound)
	_, err = svc.Get(ctx, "WELCOME")
	require.ErrorIs(t, err, discount.ErrCodeNotFound)
}

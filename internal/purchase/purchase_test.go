package purchase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/catalog"
	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/db/dbtest"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/models"
	"github.com/lojf/storebot/internal/purchase"
)

const buyer int64 = 77

type fixture struct {
	db       *gorm.DB
	catalog  *catalog.Catalog
	pipeline *purchase.Pipeline
}

func setup(t *testing.T, balance int64) fixture {
	t.Helper()
	gdb := dbtest.New(t)
	dbtest.SeedUsers(t, gdb, map[int64]int64{buyer: balance})
	log := zaptest.NewLogger(t)
	cat := catalog.New(gdb, config.DefaultCatalog())
	return fixture{
		db:       gdb,
		catalog:  cat,
		pipeline: purchase.New(gdb, ledger.New(gdb, log, nil), cat, log, nil),
	}
}

func (f fixture) entries(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Count(&n).Error)
	return n
}

func TestApproveWithDeduction(t *testing.T) {
	f := setup(t, 200)
	ctx := context.Background()
	require.NoError(t, f.catalog.SetPrice(ctx, "openvpn", 150))
	require.NoError(t, f.catalog.SetContent(ctx, "openvpn", "remote vpn.example 1194", false, ""))

	req, err := f.pipeline.Create(ctx, buyer, "1m", "android", "openvpn")
	require.NoError(t, err)
	require.Equal(t, models.RequestPending, req.Status)

	q, err := f.pipeline.Quote(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, q.PriceSet)
	require.True(t, q.Covered)
	require.Equal(t, int64(150), q.Price)

	res, err := f.pipeline.Approve(ctx, req.ID, true)
	require.NoError(t, err)
	require.Equal(t, int64(150), res.Charged)
	require.Equal(t, int64(50), res.BalanceAfter)
	require.Equal(t, "remote vpn.example 1194", res.Content.Content)

	require.Equal(t, int64(50), dbtest.Balance(t, f.db, buyer))
	got, err := f.pipeline.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, got.Status)
	require.True(t, got.Charged)
	require.Equal(t, int64(150), got.Price)
	require.NotNil(t, got.ResolvedAt)
}

func TestResolutionIsTerminal(t *testing.T) {
	f := setup(t, 1000)
	ctx := context.Background()
	require.NoError(t, f.catalog.SetPrice(ctx, "openvpn", 100))
	require.NoError(t, f.catalog.SetContent(ctx, "openvpn", "cfg", false, ""))

	req, err := f.pipeline.Create(ctx, buyer, "1m", "", "openvpn")
	require.NoError(t, err)
	_, err = f.pipeline.Approve(ctx, req.ID, true)
	require.NoError(t, err)
	entries := f.entries(t)

	_, err = f.pipeline.Approve(ctx, req.ID, true)
	require.ErrorIs(t, err, purchase.ErrRequestResolved)
	_, err = f.pipeline.Reject(ctx, req.ID)
	require.ErrorIs(t, err, purchase.ErrRequestResolved)

	require.Equal(t, int64(900), dbtest.Balance(t, f.db, buyer))
	require.Equal(t, entries, f.entries(t))

	rej, err := f.pipeline.Create(ctx, buyer, "1m", "", "openvpn")
	require.NoError(t, err)
	_, err = f.pipeline.Reject(ctx, rej.ID)
	require.NoError(t, err)
	_, err = f.pipeline.Approve(ctx, rej.ID, false)
	require.ErrorIs(t, err, purchase.ErrRequestResolved)
	require.Equal(t, int64(900), dbtest.Balance(t, f.db, buyer))

	_, err = f.pipeline.Approve(ctx, 4242, true)
	require.ErrorIs(t, err, purchase.ErrRequestNotFound)
}

func TestInsufficientCreditRollsBack(t *testing.T) {
	f := setup(t, 20)
	ctx := context.Background()
	require.NoError(t, f.catalog.SetPrice(ctx, "v2ray", 500))
	require.NoError(t, f.catalog.SetContent(ctx, "v2ray", "vless://x", false, ""))

	req, err := f.pipeline.Create(ctx, buyer, "1m", "ios", "v2ray")
	require.NoError(t, err)

	q, err := f.pipeline.Quote(ctx, req.ID)
	require.NoError(t, err)
	require.False(t, q.Covered)

	_, err = f.pipeline.Approve(ctx, req.ID, true)
	require.ErrorIs(t, err, ledger.ErrInsufficientCredit)

	got, err := f.pipeline.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestPending, got.Status)

	// operator override: approve without deduction
	res, err := f.pipeline.Approve(ctx, req.ID, false)
	require.NoError(t, err)
	require.Zero(t, res.Charged)
	require.Equal(t, int64(20), dbtest.Balance(t, f.db, buyer))
	require.False(t, res.Request.Charged)
}

func TestApproveNeedsContent(t *testing.T) {
	f := setup(t, 5000)
	ctx := context.Background()

	req, err := f.pipeline.Create(ctx, buyer, "1m", "", "proxy")
	require.NoError(t, err)

	_, err = f.pipeline.Approve(ctx, req.ID, true)
	require.ErrorIs(t, err, purchase.ErrContentMissing)
	require.Equal(t, int64(5000), dbtest.Balance(t, f.db, buyer))

	got, err := f.pipeline.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestPending, got.Status)
}

func TestCreateValidatesSelection(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	_, err := f.pipeline.Create(ctx, buyer, "99y", "", "openvpn")
	require.ErrorIs(t, err, purchase.ErrInvalidSelection)
	_, err = f.pipeline.Create(ctx, buyer, "1m", "toaster", "openvpn")
	require.ErrorIs(t, err, purchase.ErrInvalidSelection)
	_, err = f.pipeline.Create(ctx, buyer, "1m", "", "ftp")
	require.ErrorIs(t, err, purchase.ErrInvalidSelection)

	for i := 0; i < 3; i++ {
		_, err := f.pipeline.Create(ctx, buyer, "3m", "windows", "openvpn")
		require.NoError(t, err)
	}
	pending, err := f.pipeline.ListByStatus(ctx, models.RequestPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.Less(t, pending[0].ID, pending[2].ID)

	mine, err := f.pipeline.ListByUser(ctx, buyer, 2)
	require.NoError(t, err)
	require.Len(t, mine, 2)
}

// Racing approvals of one request charge the user once.
func TestConcurrentApprovalsChargeOnce(t *testing.T) {
	f := setup(t, 1000)
	ctx := context.Background()
	require.NoError(t, f.catalog.SetPrice(ctx, "openvpn", 100))
	require.NoError(t, f.catalog.SetContent(ctx, "openvpn", "cfg", false, ""))
	req, err := f.pipeline.Create(ctx, buyer, "1m", "", "openvpn")
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.pipeline.Approve(ctx, req.ID, true); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, int64(900), dbtest.Balance(t, f.db, buyer))
}

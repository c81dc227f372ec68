package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lojf/storebot/internal/catalog"
	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/db/dbtest"
)

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.New(dbtest.New(t), config.DefaultCatalog())
}

func TestContentUpsert(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.Content(ctx, "openvpn")
	require.ErrorIs(t, err, catalog.ErrContentMissing)

	require.NoError(t, c.SetContent(ctx, "openvpn", "remote vpn.example 1194", false, ""))
	require.NoError(t, c.SetContent(ctx, "openvpn", "FILE-ID-1", true, "client.ovpn"))

	svc, err := c.Content(ctx, "openvpn")
	require.NoError(t, err)
	require.True(t, svc.IsFile)
	require.Equal(t, "FILE-ID-1", svc.Content)
	require.Equal(t, "client.ovpn", svc.FileName)

	list, err := c.ListContent(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, c.SetContent(ctx, "ftp", "x", false, ""), catalog.ErrUnknownKey)
	require.ErrorIs(t, c.SetContent(ctx, "proxy", "  ", false, ""), catalog.ErrEmptyContent)

	require.NoError(t, c.DeleteContent(ctx, "openvpn"))
	require.ErrorIs(t, c.DeleteContent(ctx, "openvpn"), catalog.ErrContentMissing)
}

func TestPriceResolution(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	// bootstrap account-type price
	p, err := c.Price(ctx, "openvpn", "1m")
	require.NoError(t, err)
	require.Equal(t, int64(3000), p)

	// live account-type price beats bootstrap
	require.NoError(t, c.SetPrice(ctx, "1m", 2500))
	p, err = c.Price(ctx, "openvpn", "1m")
	require.NoError(t, err)
	require.Equal(t, int64(2500), p)

	// live service price beats both
	require.NoError(t, c.SetPrice(ctx, "openvpn", 150))
	p, err = c.Price(ctx, "openvpn", "1m")
	require.NoError(t, err)
	require.Equal(t, int64(150), p)

	require.NoError(t, c.SetPrice(ctx, "openvpn", 175))
	p, err = c.Price(ctx, "openvpn", "3m")
	require.NoError(t, err)
	require.Equal(t, int64(175), p)

	_, err = c.Price(ctx, "proxy", "unknown")
	require.ErrorIs(t, err, catalog.ErrPriceUnset)

	require.ErrorIs(t, c.SetPrice(ctx, "nope", 10), catalog.ErrUnknownKey)
	require.ErrorIs(t, c.SetPrice(ctx, "proxy", -1), catalog.ErrInvalidPrice)
}

func TestPricesListing(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.SetPrice(ctx, "openvpn", 150))

	lines, err := c.Prices(ctx)
	require.NoError(t, err)

	byKey := map[string]catalog.PriceLine{}
	for _, l := range lines {
		byKey[l.Key] = l
	}
	require.True(t, byKey["openvpn"].Live)
	require.Equal(t, int64(150), byKey["openvpn"].Price)
	require.False(t, byKey["1m"].Live)
	require.Equal(t, int64(3000), byKey["1m"].Price)
	require.False(t, byKey["proxy"].Set)
	require.Len(t, lines, 7) // 3 services + 4 account types not shadowed by a service key
}

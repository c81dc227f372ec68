package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func baseViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	v := baseViper()
	v.Set("admin_ids", "111, 222")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	require.Equal(t, []int64{111, 222}, cfg.AdminIDs)
	require.Equal(t, DriverSQLite, cfg.DBDriver)
	require.Equal(t, DiscountSingle, cfg.DiscountPolicy)
	require.Equal(t, StoreMemory, cfg.SessionStore)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.Equal(t, "98", cfg.DefaultCountryCode)
	require.True(t, cfg.IsAdmin(222))
	require.False(t, cfg.IsAdmin(333))

	require.Len(t, cfg.Catalog.ServiceTypes, 3)
	acct, ok := Find(cfg.Catalog.AccountTypes, "1m")
	require.True(t, ok)
	require.EqualValues(t, 3000, acct.Price)
}

func TestFromViperRequiresAdmin(t *testing.T) {
	_, err := FromViper(baseViper())
	require.Error(t, err)
}

func TestFromViperRejectsUnknownValues(t *testing.T) {
	cases := map[string]string{
		"database.driver": "oracle",
		"discount.policy": "sometimes",
		"session.store":   "disk",
		"telegram.mode":   "carrier-pigeon",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			v := baseViper()
			v.Set("admin_ids", 1)
			v.Set(key, val)
			_, err := FromViper(v)
			require.Error(t, err)
		})
	}
}

func TestPollingNeedsToken(t *testing.T) {
	v := baseViper()
	v.Set("admin_ids", 1)
	v.Set("telegram.mode", ModePolling)
	_, err := FromViper(v)
	require.Error(t, err)

	v.Set("telegram.token", "123:abc")
	cfg, err := FromViper(v)
	require.NoError(t, err)
	require.Equal(t, ModePolling, cfg.UpdateMode)
}

func TestLoadFromYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
admin_ids: [42]
discount:
  policy: counted
catalog:
  service_types:
    - key: wireguard
      label: WireGuard
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ADDR", ":9999")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, []int64{42}, cfg.AdminIDs)
	require.Equal(t, DiscountCounted, cfg.DiscountPolicy)
	require.Len(t, cfg.Catalog.ServiceTypes, 1)
	require.Equal(t, "WireGuard", cfg.Catalog.ServiceTypes[0].Label)
	// untouched lists fall back to the bootstrap catalog
	require.NotEmpty(t, cfg.Catalog.AccountTypes)
}

func TestMatch(t *testing.T) {
	opts := DefaultCatalog().DeviceTypes
	o, ok := Match(opts, "android")
	require.True(t, ok)
	require.Equal(t, "android", o.Key)

	o, ok = Match(opts, "  Windows ")
	require.True(t, ok)
	require.Equal(t, "windows", o.Key)

	_, ok = Match(opts, "symbian")
	require.False(t, ok)
}

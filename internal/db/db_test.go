package db_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/db"
	"github.com/lojf/storebot/internal/models"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		DBDriver: config.DriverSQLite,
		DBDSN:    filepath.Join(t.TempDir(), "wal_test.db") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on",
	}
}

// The DSN parameters must switch SQLite into WAL mode.
func TestWALMode(t *testing.T) {
	cfg := testConfig(t)
	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN, gormlogger.Default.LogMode(gormlogger.Silent))
	require.NoError(t, err)

	var mode string
	gdb.Raw("PRAGMA journal_mode").Scan(&mode)
	require.Equal(t, "wal", mode)
}

func TestInitCreatesIndexes(t *testing.T) {
	require.NoError(t, db.Init(testConfig(t), zaptest.NewLogger(t)))

	sqlDB, err := db.Conn().DB()
	require.NoError(t, err)

	found := indexNames(t, sqlDB, "purchase_requests")
	for _, want := range []string{"idx_req_status_created", "idx_req_user_created"} {
		require.True(t, found[want], "index %q missing; found %v", want, found)
	}
	require.True(t, indexNames(t, sqlDB, "support_messages")["idx_support_open"])
}

// The check constraint is the last line of defence for the non-negative balance.
func TestCreditCheckConstraint(t *testing.T) {
	cfg := testConfig(t)
	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN, gormlogger.Default.LogMode(gormlogger.Silent))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	require.NoError(t, gdb.Create(&models.User{ID: 7, Credit: 10}).Error)
	err = gdb.Exec("UPDATE users SET credit = -1 WHERE id = 7").Error
	require.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := db.Open("oracle", "x", gormlogger.Default)
	require.Error(t, err)
}

func indexNames(t *testing.T, sqlDB *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := sqlDB.Query("PRAGMA index_list(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var seq int
		var name string
		var unique bool
		var origin, partial string
		require.NoError(t, rows.Scan(&seq, &name, &unique, &origin, &partial))
		out[name] = true
	}
	return out
}

// Package dbtest opens throwaway migrated SQLite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/db"
	"github.com/lojf/storebot/internal/models"
)

func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	gdb, err := db.Open(config.DriverSQLite, dsn, logger.Default.LogMode(logger.Silent))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// SeedUsers creates approved users with the given balances keyed by id.
func SeedUsers(t testing.TB, gdb *gorm.DB, balances map[int64]int64) {
	t.Helper()
	for id, credit := range balances {
		u := models.User{ID: id, FirstName: "user", Credit: credit, IsApproved: true}
		if err := gdb.Create(&u).Error; err != nil {
			t.Fatalf("seed user %d: %v", id, err)
		}
	}
}

func Balance(t testing.TB, gdb *gorm.DB, id int64) int64 {
	t.Helper()
	var u models.User
	if err := gdb.First(&u, id).Error; err != nil {
		t.Fatalf("load user %d: %v", id, err)
	}
	return u.Credit
}

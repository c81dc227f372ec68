package db

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/logging"
	"github.com/lojf/storebot/internal/models"
)

var conn *gorm.DB

// Init opens the configured database, migrates it and keeps the handle for Conn.
func Init(cfg config.Config, log *zap.Logger) error {
	c, err := Open(cfg.DBDriver, cfg.DBDSN, logging.NewGormLogger(log, gormlogger.Warn))
	if err != nil {
		return err
	}
	if err := Migrate(c); err != nil {
		return err
	}
	conn = c
	log.Info("database ready", zap.String("driver", c.Dialector.Name()))
	return nil
}

// Open connects without migrating.
func Open(driver, dsn string, lg gormlogger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
	c, err := gorm.Open(dialector, &gorm.Config{Logger: lg})
	if err != nil {
		return nil, err
	}

	if driver == config.DriverSQLite {
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := c.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}
	return c, nil
}

// Migrate creates the schema and the composite indexes gorm doesn't derive from tags.
func Migrate(c *gorm.DB) error {
	if err := c.AutoMigrate(
		&models.User{},
		&models.DiscountCode{},
		&models.DiscountRedemption{},
		&models.Service{},
		&models.ServicePrice{},
		&models.PurchaseRequest{},
		&models.CreditTransfer{},
		&models.LedgerEntry{},
		&models.SupportMessage{},
	); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}

	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_req_status_created ON purchase_requests(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_req_user_created   ON purchase_requests(user_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_support_open       ON support_messages(is_answered, created_at)",
	} {
		if err := c.Exec(stmt).Error; err != nil {
			return fmt.Errorf("db: index: %w", err)
		}
	}
	return nil
}

func Conn() *gorm.DB {
	return conn
}

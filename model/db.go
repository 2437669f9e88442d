// Package model owns the gateway's persistent entities (providers, upstream
// keys, tenant keys, the price table, and usage records) and the database
// bootstrap that wires gorm to whichever backend config.SQLDSN names.
package model

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gateway/multiapi/common"
	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/logger"
)

// DB is the primary gorm handle shared by every model method. It is set
// once by InitDB and never reassigned afterwards.
var DB *gorm.DB

// InitDB sniffs config.SQLDSN's scheme to pick a gorm driver, opens the
// connection, records which backend got selected (so callers like
// runWithSQLiteBusyRetry can special-case SQLite), and runs AutoMigrate
// against every entity the gateway owns.
func InitDB() error {
	dsn := strings.TrimSpace(config.SQLDSN)
	if dsn == "" {
		dsn = "gateway.db"
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
		common.UsingPostgreSQL.Store(true)
	case strings.HasPrefix(dsn, "mysql://") || strings.Contains(dsn, "@tcp("):
		normalized, err := common.NormalizeMySQLDSN(dsn)
		if err != nil {
			return errors.Wrap(err, "normalize mysql dsn")
		}
		dialector = mysql.Open(normalized)
		common.UsingMySQL.Store(true)
	default:
		dialector = sqlite.Open(dsn + "?_busy_timeout=5000&_journal_mode=WAL")
		common.UsingSQLite.Store(true)
	}

	gormLevel := gormlogger.Warn
	if config.DebugEnabled {
		gormLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLevel),
	})
	if err != nil {
		return errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)

	DB = db

	if err := db.AutoMigrate(
		&Provider{},
		&UpstreamKey{},
		&TenantKey{},
		&PriceTable{},
		&UsageRecord{},
	); err != nil {
		return errors.Wrap(err, "auto migrate")
	}

	logger.Logger.Info("database initialized",
		zap.Bool("sqlite", common.UsingSQLite.Load()),
		zap.Bool("mysql", common.UsingMySQL.Load()),
		zap.Bool("postgres", common.UsingPostgreSQL.Load()))
	return nil
}

package database

import (
	"fmt"
	"strings"
	"time"

	"telemetry-tracker/internal/config"
	"telemetry-tracker/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var Driver string

func Connect(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := Open(dialector)
	if err != nil {
		return err
	}

	if cfg.Driver != "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	if err := Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	DB = db
	Driver = cfg.Driver
	return nil
}

func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.TelemetryRecord{})
}

// EngineVersion asks the connected server for its own version string.
func EngineVersion(db *gorm.DB) (string, error) {
	if db == nil {
		return "", fmt.Errorf("database not connected")
	}

	var query string
	switch db.Dialector.Name() {
	case "mysql":
		query = "SELECT VERSION()"
	case "postgres":
		query = "SHOW server_version"
	case "sqlite":
		query = "SELECT sqlite_version()"
	default:
		return "", fmt.Errorf("unsupported database driver: %s", db.Dialector.Name())
	}

	var version string
	if err := db.Raw(query).Scan(&version).Error; err != nil {
		return "", fmt.Errorf("query engine version: %w", err)
	}
	return strings.TrimSpace(version), nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

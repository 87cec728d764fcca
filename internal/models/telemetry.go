package models

import "time"

// Key columns stay varchar(191) so the composite key fits a utf8mb4 index;
// the ingestion endpoint rejects longer keys.
type TelemetryRecord struct {
	SiteHash     string    `gorm:"primaryKey;type:varchar(191)" json:"site_hash"`
	PluginSlug   string    `gorm:"primaryKey;type:varchar(191)" json:"plugin"`
	Version      string    `gorm:"type:text;not null" json:"version"`
	WPVersion    string    `gorm:"column:wp_version;type:text;not null" json:"wp_version"`
	PHPVersion   string    `gorm:"column:php_version;type:text;not null" json:"php_version"`
	MySQLVersion string    `gorm:"column:mysql_version;type:text" json:"mysql_version"`
	LastPing     time.Time `gorm:"index;not null" json:"last_ping"`
}

func (TelemetryRecord) TableName() string {
	return "telemetry_records"
}

// Columns overwritten when a ping arrives for an existing (site_hash, plugin_slug).
var TelemetryVolatileColumns = []string{
	"version",
	"wp_version",
	"php_version",
	"mysql_version",
	"last_ping",
}

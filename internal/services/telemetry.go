package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telemetry-tracker/internal/database"
	"telemetry-tracker/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRecordNotFound = errors.New("telemetry record not found")

var now = func() time.Time { return time.Now().UTC() }

// UpsertRecord stores the latest ping for (site_hash, plugin_slug). The
// conflict clause is the only thing keeping one row per key, so concurrent
// pings for the same site and plugin converge without application locks.
func UpsertRecord(ctx context.Context, rec *models.TelemetryRecord) error {
	rec.LastPing = now()

	err := database.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_hash"}, {Name: "plugin_slug"}},
		DoUpdates: clause.AssignmentColumns(models.TelemetryVolatileColumns),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert telemetry %s/%s: %w", rec.PluginSlug, rec.SiteHash, err)
	}
	return nil
}

func GetRecord(ctx context.Context, siteHash, plugin string) (*models.TelemetryRecord, error) {
	var rec models.TelemetryRecord
	err := database.DB.WithContext(ctx).
		Where("site_hash = ? AND plugin_slug = ?", siteHash, plugin).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type VersionCount struct {
	Version  string `json:"version"`
	Installs int64  `json:"installs"`
}

type PluginStats struct {
	Plugin         string         `json:"plugin"`
	TotalInstalls  int64          `json:"total_installs"`
	ActiveInstalls int64          `json:"active_installs"`
	Versions       []VersionCount `json:"versions"`
}

// GetPluginStats counts installs of a plugin. An install is active when its last
// ping is not older than activeWindow.
func GetPluginStats(ctx context.Context, plugin string, activeWindow time.Duration) (*PluginStats, error) {
	db := database.DB.WithContext(ctx)
	stats := &PluginStats{Plugin: plugin, Versions: []VersionCount{}}

	if err := db.Model(&models.TelemetryRecord{}).
		Where("plugin_slug = ?", plugin).
		Count(&stats.TotalInstalls).Error; err != nil {
		return nil, fmt.Errorf("count installs: %w", err)
	}
	if stats.TotalInstalls == 0 {
		return nil, ErrRecordNotFound
	}

	since := now().Add(-activeWindow)
	if err := db.Model(&models.TelemetryRecord{}).
		Where("plugin_slug = ? AND last_ping >= ?", plugin, since).
		Count(&stats.ActiveInstalls).Error; err != nil {
		return nil, fmt.Errorf("count active installs: %w", err)
	}

	if err := db.Model(&models.TelemetryRecord{}).
		Select("version, COUNT(*) AS installs").
		Where("plugin_slug = ?", plugin).
		Group("version").
		Order("installs DESC, version").
		Scan(&stats.Versions).Error; err != nil {
		return nil, fmt.Errorf("group versions: %w", err)
	}

	return stats, nil
}

func ListPlugins(ctx context.Context) ([]string, error) {
	slugs := []string{}
	err := database.DB.WithContext(ctx).
		Model(&models.TelemetryRecord{}).
		Distinct("plugin_slug").
		Order("plugin_slug").
		Pluck("plugin_slug", &slugs).Error
	return slugs, err
}

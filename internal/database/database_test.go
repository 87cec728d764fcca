package database

import (
	"path/filepath"
	"regexp"
	"testing"

	"telemetry-tracker/internal/config"
	"telemetry-tracker/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
)

func TestConnect_SQLiteMigrates(t *testing.T) {
	t.Cleanup(func() {
		Close()
		DB = nil
	})

	err := Connect(&config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "telemetry.db"),
	})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", Driver)
	assert.True(t, DB.Migrator().HasTable(&models.TelemetryRecord{}))
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	err := Connect(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestEngineVersion_SQLite(t *testing.T) {
	db, err := Open(sqlite.Open(":memory:"))
	require.NoError(t, err)

	version, err := EngineVersion(db)
	require.NoError(t, err)
	assert.Regexp(t, `^3\.\d+\.\d+`, version)
}

func TestEngineVersion_MySQL(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36 "))

	version, err := EngineVersion(db)
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineVersion_NotConnected(t *testing.T) {
	_, err := EngineVersion(nil)
	require.Error(t, err)
}

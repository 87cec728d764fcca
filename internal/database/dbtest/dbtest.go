// Package dbtest wires database.DB to throwaway stores for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"telemetry-tracker/internal/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewSQLite points database.DB at a migrated sqlite file under t.TempDir and
// restores the previous handle when the test ends.
func NewSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "telemetry.db") + "?_busy_timeout=5000"
	db, err := database.Open(sqlite.Open(path))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	swap(t, db, sqlDB)
	return db
}

// NewMySQLMock points database.DB at a MySQL dialect backed by sqlmock.
func NewMySQLMock(t testing.TB) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := database.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}))
	require.NoError(t, err)

	swap(t, db, sqlDB)
	return db, mock
}

func swap(t testing.TB, db *gorm.DB, sqlDB *sql.DB) {
	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		sqlDB.Close()
	})
}

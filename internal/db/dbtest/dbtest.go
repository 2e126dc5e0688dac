// Package dbtest provides migrated in-memory databases for tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pysugar/service-interactor/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// New returns a migrated, seeded, isolated in-memory database.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := db.InitDB(db.Options{Driver: db.DriverSQLite, DSN: dsn})
	require.NoError(t, err, "open test db")

	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return database
}

package migrate

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "gorm.io/driver/sqlite"

	"github.com/closetapp/marketplace-backend/pkg/config"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Listing Views!", now)
	require.NoError(t, err)
	require.Equal(t, "20260301120000_add_listing_views.sql", filepath.Base(path))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "add listing views", now)
	require.Error(t, err)
}

func TestOrdersMigrationCarriesActiveBuyerIndex(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_marketplace_orders.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	content := string(data)
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_marketplace_orders_active_buyer",
		"WHERE payment_status IN ('pending', 'paid')",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_marketplace_orders_reference",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsRunUpAndDownOnSQLite(t *testing.T) {
	sqlDB, err := sql.Open("sqlite3", "file:migrate_roundtrip?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, Run(ctx, sqlDB, config.DriverSQLite, "migrations", "up"))

	var count int
	require.NoError(t, sqlDB.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('marketplace_listings', 'marketplace_orders', 'outbox_events')`).Scan(&count))
	require.Equal(t, 3, count)

	require.NoError(t, MigrateToVersion(ctx, sqlDB, config.DriverSQLite, "migrations", "20260301120000"))
	require.NoError(t, sqlDB.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'marketplace_orders'`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestDialect(t *testing.T) {
	got, err := Dialect("postgres")
	require.NoError(t, err)
	require.Equal(t, "postgres", got)

	_, err = Dialect("mysql")
	require.Error(t, err)
}

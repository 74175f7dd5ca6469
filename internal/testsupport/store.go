// Package testsupport provides shared fixtures for package tests. The
// claim store runs against an embedded SQLite database here; its
// primary-key uniqueness gives the same claim semantics as Postgres
// without needing a server in CI.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/pkg/database"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewClaimStore opens a migrated claim store backed by a temporary
// SQLite database. Access is serialized through a single connection so
// concurrent claim tests contend on the uniqueness constraint instead
// of on SQLite's file lock.
func NewClaimStore(t *testing.T) *claim.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "claims.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := claim.NewStore(database.Wrap(db, logger.L()), logger.L())
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return store
}

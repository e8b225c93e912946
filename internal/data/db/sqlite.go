package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// NewSQLiteService opens a file-backed SQLite database. Used for local
// single-binary development (DB_DRIVER=sqlite) and by the test suites.
func NewSQLiteService(logg *logger.Logger, path string) (*Service, error) {
	if path == "" {
		path = envutil.String("SQLITE_PATH", "incuisenix.db")
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
	}
	return &Service{db: gdb, log: logg.With("service", "SQLiteService")}, nil
}

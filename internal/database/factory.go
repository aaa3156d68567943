package database

import (
	"fmt"
	"os"
	"path/filepath"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// DatabaseFile is the catalog file name inside DatabaseConfig.DataDir.
const DatabaseFile = "bm.db"

// NewDatabaseFromConfig creates a Catalog implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock bm.Clock) (bm.Catalog, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database: %w", bm.ErrInvalidConfig)
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, DatabaseFile)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type %q: %w", cfg.Type, bm.ErrInvalidConfig)
	}

	db, err := NewSQLiteDatabase(path, clock)
	if err != nil {
		return nil, err
	}
	return db, nil
}

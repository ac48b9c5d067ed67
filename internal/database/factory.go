package database

import (
	"fmt"
	"os"
	"path/filepath"

	"dtb-go/internal/config"
)

// HistoryFile is the database file name under the data directory.
const HistoryFile = "history.db"

// Database types accepted in config.DatabaseConfig.Type.
const (
	TypeSQLite = "sqlite"
	TypeMemory = "memory"
)

// HistoryPath returns where the history of cfg lives, or ":memory:".
func HistoryPath(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Type {
	case TypeSQLite:
		if cfg.DataDir == "" {
			return "", fmt.Errorf("database.data_dir is required for type %q", TypeSQLite)
		}
		return filepath.Join(cfg.DataDir, HistoryFile), nil
	case TypeMemory:
		return ":memory:", nil
	}
	return "", fmt.Errorf("unknown database type %q", cfg.Type)
}

// NewDatabaseFromConfig opens the history described by cfg, creating the
// data directory when needed.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	path, err := HistoryPath(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Type == TypeSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", cfg.DataDir, err)
		}
	}
	return NewSQLiteDatabase(path)
}

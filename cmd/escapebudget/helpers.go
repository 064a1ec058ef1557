package main

import (
	"context"
	"fmt"

	"github.com/iammattholland/escapebudget/internal/config"
	"github.com/iammattholland/escapebudget/internal/storage"
)

// openStorage opens the configured database and brings the schema up to
// date. The caller owns the returned store.
func openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath, err := config.DatabasePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func truncateString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 1 {
		return s[:limit]
	}
	return s[:limit-1] + "…"
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iammattholland/escapebudget/internal/config"
	"github.com/iammattholland/escapebudget/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.
Migrations apply in order, each inside its own transaction.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")

	dbPath, err := config.DatabasePath()
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if status {
		current, versionErr := store.SchemaVersion(ctx)
		if versionErr != nil {
			return versionErr
		}
		slog.Info("Migration status",
			"database", dbPath,
			"current_version", current,
			"latest_version", storage.ExpectedSchemaVersion)
		return nil
	}

	slog.Info("Running database migrations", "database", dbPath)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("Database migrations completed")
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application
// expects. Failure to reach it is fatal.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Ledger transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					account_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					payee TEXT NOT NULL,
					raw_payee TEXT,
					memo TEXT,
					category TEXT,
					tags TEXT,
					amount TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					kind TEXT NOT NULL DEFAULT 'standard',
					transfer_id TEXT,
					voided INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_account_date ON transactions(account_id, date)`,
				`CREATE INDEX idx_transactions_transfer ON transactions(transfer_id)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Learned pattern tables",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS payee_patterns (
					canonical_name TEXT PRIMARY KEY,
					variants TEXT NOT NULL,
					use_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME
				)`,
				`CREATE TABLE IF NOT EXISTS category_patterns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					payee_substring TEXT NOT NULL,
					category TEXT NOT NULL,
					success_count INTEGER NOT NULL DEFAULT 0,
					reject_count INTEGER NOT NULL DEFAULT 0,
					amount_min TEXT,
					amount_max TEXT,
					weekday_counts TEXT,
					last_used_at DATETIME,
					UNIQUE(payee_substring, category)
				)`,
				`CREATE TABLE IF NOT EXISTS transfer_patterns (
					pair_key TEXT PRIMARY KEY,
					amount_min TEXT,
					amount_max TEXT,
					fee_delta TEXT,
					window_days INTEGER NOT NULL DEFAULT 0,
					payee_hints TEXT,
					day_of_month INTEGER NOT NULL DEFAULT 0,
					day_of_month_match INTEGER NOT NULL DEFAULT 0,
					day_of_month_sample INTEGER NOT NULL DEFAULT 0,
					success_count INTEGER NOT NULL DEFAULT 0,
					reject_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME,
					last_rejected_at DATETIME
				)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Auto rules and application history",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS auto_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					rule_order INTEGER NOT NULL DEFAULT 0,
					enabled INTEGER NOT NULL DEFAULT 1,
					conditions TEXT NOT NULL DEFAULT '{}',
					actions TEXT NOT NULL DEFAULT '{}',
					times_applied INTEGER NOT NULL DEFAULT 0,
					last_applied_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_auto_rules_order ON auto_rules(rule_order)`,
				`CREATE TABLE IF NOT EXISTS rule_applications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_id INTEGER NOT NULL,
					row_index INTEGER NOT NULL,
					field TEXT NOT NULL,
					old_value TEXT,
					new_value TEXT,
					applied_at DATETIME NOT NULL,
					FOREIGN KEY (rule_id) REFERENCES auto_rules(id)
				)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion reads the current schema version without applying
// anything.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return current, nil
}

// Migrate applies outstanding schema migrations in order.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
		current = m.Version
	}

	if current < ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d is behind expected %d", current, ExpectedSchemaVersion)
	}
	return nil
}

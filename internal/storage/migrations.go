package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Vendor aliases",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS vendor_aliases (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					alias_pattern TEXT UNIQUE NOT NULL,
					is_regex INTEGER NOT NULL DEFAULT 0,
					canonical_name TEXT NOT NULL,
					display_name TEXT,
					default_gl_code TEXT,
					default_department TEXT,
					match_count INTEGER NOT NULL DEFAULT 0,
					last_matched_at DATETIME,
					confidence REAL NOT NULL DEFAULT 1.0,
					flagged_for_review INTEGER NOT NULL DEFAULT 0,
					source TEXT NOT NULL DEFAULT 'AUTO',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_vendor_aliases_flagged ON vendor_aliases(flagged_for_review)`,
				`CREATE INDEX idx_vendor_aliases_last_matched ON vendor_aliases(last_matched_at)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Description cache",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS description_cache (
				raw_hash TEXT PRIMARY KEY,
				raw_description TEXT NOT NULL,
				normalized_description TEXT NOT NULL,
				hit_count INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`)
			return err
		},
	},
	{
		Version:     3,
		Description: "Statement fingerprints",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS statement_fingerprints (
				header_hash TEXT PRIMARY KEY,
				column_mapping TEXT NOT NULL,
				date_format TEXT NOT NULL DEFAULT '',
				amount_sign TEXT NOT NULL DEFAULT 'negative_debits',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`)
			return err
		},
	},
	{
		Version:     4,
		Description: "Split patterns",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS split_patterns (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				alias_pattern TEXT UNIQUE NOT NULL,
				lines TEXT NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`)
			return err
		},
	},
}

// Migrate applies any pending schema migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

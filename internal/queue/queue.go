// Package queue implements the local durable queue: the single source of
// truth for every capture that has not yet been confirmed written to the
// remote store. Records survive process restarts; the capture paths write
// them, the sync engine mutates and evicts them, and the merged view reads
// them. Uses SQLite with WAL mode for concurrent read access.
package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added supersede index on pending_follow_up_photos(user_id, session_id, slot)
// 2 - Added day column and (user_id, day) index on pending_follow_up_photos
const currentSchemaVersion = 2

// Queue provides durable storage for pending captures.
type Queue struct {
	db *sql.DB
}

// Open creates or opens the queue database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to queue database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Queue{db: db}, nil
}

// Close closes the database connection.
func (q *Queue) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Count returns the total number of pending entries across all kinds and all
// users. Exposed for the operator-visible backlog.
func (q *Queue) Count(ctx context.Context) (int, error) {
	var total int
	err := q.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pending_attendance) +
			(SELECT COUNT(*) FROM pending_location_samples) +
			(SELECT COUNT(*) FROM pending_follow_up_photos)
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return total, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
		version = 2
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the supersede index for existing databases. New databases
// get this from schema.sql, but databases created before v1 need it added.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_pending_followups_user_session
		ON pending_follow_up_photos(user_id, session_id, slot)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 adds the explicit day column to pending_follow_up_photos so
// date-scoped reads match the local capture date, not the UTC created_at
// prefix. Existing rows are backfilled from the UTC date, the closest value
// available; new writes carry the capture-local date. New databases get the
// column from schema.sql, so check before altering; the index is created
// here either way, after the column is guaranteed to exist.
func migrateToV2(db *sql.DB) error {
	var cols int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('pending_follow_up_photos')
		WHERE name = 'day'
	`).Scan(&cols)
	if err != nil {
		return fmt.Errorf("migrate to v2: inspect columns: %w", err)
	}

	if cols == 0 {
		if _, err := db.Exec(`
			ALTER TABLE pending_follow_up_photos ADD COLUMN day TEXT NOT NULL DEFAULT ''
		`); err != nil {
			return fmt.Errorf("migrate to v2: add day column: %w", err)
		}
		if _, err := db.Exec(`
			UPDATE pending_follow_up_photos SET day = substr(created_at, 1, 10)
		`); err != nil {
			return fmt.Errorf("migrate to v2: backfill day: %w", err)
		}
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_pending_followups_user_day
		ON pending_follow_up_photos(user_id, day)
	`); err != nil {
		return fmt.Errorf("migrate to v2: day index: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (q *Queue) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := q.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Package db provides SQLite database access for the gradebook.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tOgg1/gradebook/internal/logging"

	_ "modernc.org/sqlite"
)

// Config contains database connection settings.
type Config struct {
	// Path is the SQLite database file path.
	Path string

	// MaxConnections is the maximum number of open connections.
	MaxConnections int

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	BusyTimeoutMs int
}

// DefaultConfig returns the default connection settings for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		MaxConnections: 10,
		BusyTimeoutMs:  5000,
	}
}

// DB wraps a SQLite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
	retry  RetryPolicy
}

// Open opens (creating if needed) the database file described by cfg.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultConfig(cfg.Path).MaxConnections
	}
	if cfg.BusyTimeoutMs <= 0 {
		cfg.BusyTimeoutMs = DefaultConfig(cfg.Path).BusyTimeoutMs
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeoutMs)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{
		DB:     sqlDB,
		path:   cfg.Path,
		logger: logging.Component("db"),
		retry:  DefaultRetryPolicy(),
	}, nil
}

// OpenInMemory opens a private in-memory database. The pool is pinned to
// one connection because every new connection would see an empty database.
func OpenInMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{
		DB:     sqlDB,
		path:   ":memory:",
		logger: logging.Component("db"),
		retry:  DefaultRetryPolicy(),
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Transaction runs fn inside a transaction, committing on success.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS classes (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS mark_sets (
				id TEXT PRIMARY KEY,
				class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS students (
				id TEXT PRIMARY KEY,
				class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
				display_name TEXT NOT NULL,
				sort_order INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS assessments (
				id TEXT PRIMARY KEY,
				mark_set_id TEXT NOT NULL REFERENCES mark_sets(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				idx INTEGER NOT NULL,
				out_of REAL NOT NULL DEFAULT 100,
				locked INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS scores (
				mark_set_id TEXT NOT NULL REFERENCES mark_sets(id) ON DELETE CASCADE,
				student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
				assessment_id TEXT NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
				value REAL,
				state TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (mark_set_id, student_id, assessment_id)
			)`,
			`CREATE INDEX IF NOT EXISTS students_order_idx ON students(class_id, sort_order, id)`,
			`CREATE INDEX IF NOT EXISTS assessments_order_idx ON assessments(mark_set_id, idx)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				type TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				mark_set TEXT NOT NULL DEFAULT '',
				payload_json TEXT,
				metadata_json TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS events_time_idx ON events(timestamp, id)`,
			`CREATE INDEX IF NOT EXISTS events_mark_set_idx ON events(mark_set, timestamp, id)`,
		},
	},
}

// MigrateUp applies pending migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d failed: %w", m.version, err)
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return applied, err
		}
		db.logger.Debug().Int("version", m.version).Msg("applied migration")
		applied++
	}

	return applied, nil
}

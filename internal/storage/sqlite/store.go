// Package sqlite implements the storage contracts over an embedded SQLite
// database. A single database file backs the event journal, snapshots, the
// outbox, and the read models so one physical transaction can cover all of
// them.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/emberline/catalogstore/internal/platform/storage/sqlitemigrate"
	"github.com/emberline/catalogstore/internal/storage"
	"github.com/emberline/catalogstore/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements catalog persistence over SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Tx is one physical SQLite transaction carrying the write surface.
type Tx struct {
	tx *sql.Tx
}

// Open opens a catalog SQLite store and applies bundled migrations.
//
// This keeps startup and schema evolution in one place, instead of requiring
// callers to coordinate migrations independently.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close releases the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// BeginTx starts one physical transaction. The returned Tx is the only write
// path into the store; it is handed to the batch scheduler for the duration
// of a flush.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit makes every write issued through the transaction durable.
func (t *Tx) Commit() error {
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	return t.tx.Commit()
}

// Rollback discards every write issued through the transaction.
func (t *Tx) Rollback() error {
	if t == nil || t.tx == nil {
		return fmt.Errorf("transaction is not configured")
	}
	return t.tx.Rollback()
}

// isUniqueViolation detects SQLite unique constraint failures on a table.
func isUniqueViolation(err error, table string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, table+".")
}

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_items (
    item_key   TEXT PRIMARY KEY,
    item_value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite stores items in a local SQLite database running in WAL mode.
type SQLite struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	o := applyOptions(opts)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("kv: create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kv: open sqlite: %w", err)
	}

	// SQLite has a single writer; one pooled connection keeps the PRAGMAs
	// applied and avoids SQLITE_BUSY between our own connections.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create schema: %w", err)
	}
	return &SQLite{db: db, timeout: o.timeout}, nil
}

func (s *SQLite) GetItem(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT item_value FROM kv_items WHERE item_key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: sqlite get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) SetItem(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	const q = `
		INSERT INTO kv_items (item_key, item_value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(item_key) DO UPDATE SET item_value = excluded.item_value, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("kv: sqlite set %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) RemoveItem(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_items WHERE item_key = ?", key); err != nil {
		return fmt.Errorf("kv: sqlite remove %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Keys(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT item_key FROM kv_items WHERE substr(item_key, 1, length(?)) = ? ORDER BY item_key", prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("kv: sqlite keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("kv: sqlite scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const postgresTableName = "viewstate_kv"

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres stores items in a Postgres table. The connection and schema are
// set up lazily on first use.
type Postgres struct {
	dsn     string
	table   string
	timeout time.Duration
	openDB  sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgres returns a backend for dsn. No connection is made until the
// first call.
func NewPostgres(dsn string, opts ...Option) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("kv: postgres dsn is required")
	}
	o := applyOptions(opts)
	return &Postgres{
		dsn:     dsn,
		table:   postgresTableName,
		timeout: o.timeout,
		openDB:  sql.Open,
	}, nil
}

func (p *Postgres) GetItem(key string) (string, bool, error) {
	if err := p.ensureReady(); err != nil {
		return "", false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	query := fmt.Sprintf("SELECT item_value FROM %s WHERE item_key = $1", quoteIdentifier(p.table))
	var value string
	err := p.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: postgres get %q: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) SetItem(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := p.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (item_key, item_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (item_key)
		DO UPDATE SET item_value = EXCLUDED.item_value, updated_at = NOW()`, quoteIdentifier(p.table))
	if _, err := p.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("kv: postgres set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) RemoveItem(key string) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE item_key = $1", quoteIdentifier(p.table))
	if _, err := p.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("kv: postgres remove %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Keys(prefix string) ([]string, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	query := fmt.Sprintf("SELECT item_key FROM %s WHERE left(item_key, length($1::text)) = $1::text ORDER BY item_key", quoteIdentifier(p.table))
	rows, err := p.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("kv: postgres keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("kv: postgres scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes the connection pool when it was opened.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) ensureReady() error {
	if p == nil {
		return ErrClosed
	}
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = fmt.Errorf("kv: open postgres: %w", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				item_key TEXT PRIMARY KEY,
				item_value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(p.table))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			p.initErr = fmt.Errorf("kv: create postgres schema: %w", err)
			return
		}
		p.db = db
	})
	return p.initErr
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

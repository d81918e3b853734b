package kv

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Open builds a Storage from dsn:
//
//	memory://                in-memory
//	file:///path/prefs.toml  TOML document (a bare path also works)
//	sqlite:///path/prefs.db  SQLite database
//	badger:///path/dir       Badger directory; badger://memory keeps it in RAM
//	postgres://...           Postgres (postgresql:// also accepted)
func Open(dsn string, opts ...Option) (Storage, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemory(nil), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: parse dsn: %w", err)
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "memory", "mem", "inmem":
		return NewMemory(nil), nil
	case "", "file":
		return NewFile(dsnPath(parsed, dsn), opts...)
	case "sqlite", "sqlite3":
		return NewSQLite(dsnPath(parsed, dsn), opts...)
	case "badger":
		if parsed.Host == "memory" || parsed.Opaque == "memory" {
			return NewBadger(BadgerConfig{InMemory: true}, opts...)
		}
		return NewBadger(BadgerConfig{Path: dsnPath(parsed, dsn), SyncWrites: true}, opts...)
	case "postgres", "postgresql":
		return NewPostgres(dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

// dsnPath extracts a filesystem path from file-like DSNs. "scheme://rel/path"
// keeps the host as the first path segment.
func dsnPath(parsed *url.URL, raw string) string {
	if parsed.Scheme == "" {
		return raw
	}
	if parsed.Opaque != "" {
		return parsed.Opaque
	}
	if parsed.Host != "" {
		return filepath.Join(parsed.Host, parsed.Path)
	}
	return parsed.Path
}

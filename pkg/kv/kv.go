// Package kv provides the persistence side-channel used by the state store
// mirror and the settings resolver: a string key/value contract with
// in-memory, TOML file, SQLite, Badger and Postgres backends.
//
// Every backend treats a missing key as ("", false, nil). Reads never fail
// for absent data; errors are reserved for backend faults.
package kv

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("kv: storage closed")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("kv: invalid key")
	// ErrUnsupportedScheme is returned by Open for unknown DSN schemes.
	ErrUnsupportedScheme = errors.New("kv: unsupported scheme")
)

// Storage is the durable key/value side-channel.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Lister is implemented by backends that can enumerate keys.
type Lister interface {
	Keys(prefix string) ([]string, error)
}

// Closer is implemented by backends holding external resources.
type Closer interface {
	Close() error
}

// Close closes storage when it holds resources.
func Close(storage Storage) error {
	if closer, ok := storage.(Closer); ok {
		return closer.Close()
	}
	return nil
}

// Option configures backends built by Open and the New* constructors.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	timeout time.Duration
}

const defaultTimeout = 5 * time.Second

// WithLogger sets the logger used by backends that log (badger, file watch).
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTimeout bounds each database call. Defaults to five seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

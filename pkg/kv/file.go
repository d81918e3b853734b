package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
)

const watchDebounce = 100 * time.Millisecond

// fileDocument is the on-disk TOML layout.
type fileDocument struct {
	Items map[string]string `toml:"items"`
}

// File stores items in a single TOML document. Every write rewrites the file
// through a temp file and rename. A file that cannot be parsed is treated as
// empty and replaced on the next write.
type File struct {
	mu     sync.RWMutex
	path   string
	items  map[string]string
	logger *slog.Logger
}

// NewFile opens (or prepares) the TOML document at path. A leading "~" is
// expanded to the home directory.
func NewFile(path string, opts ...Option) (*File, error) {
	o := applyOptions(opts)
	resolved, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("kv: resolve file path: %w", err)
	}
	f := &File{path: resolved, logger: o.logger}
	f.items = f.read()
	return f, nil
}

// Path returns the resolved document path.
func (f *File) Path() string {
	return f.path
}

func (f *File) GetItem(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.items[key]
	return value, ok, nil
}

func (f *File) SetItem(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	next := cloneItems(f.items)
	next[key] = value
	if err := f.write(next); err != nil {
		return err
	}
	f.items = next
	return nil
}

func (f *File) RemoveItem(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; !ok {
		return nil
	}
	next := cloneItems(f.items)
	delete(next, key)
	if err := f.write(next); err != nil {
		return err
	}
	f.items = next
	return nil
}

func (f *File) Keys(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.items))
	for key := range f.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Reload re-reads the document from disk, picking up external edits.
func (f *File) Reload() {
	items := f.read()
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

// Watch reloads the document whenever it changes on disk and sends the keys
// whose values changed. The channel is closed when ctx is done.
func (f *File) Watch(ctx context.Context) (<-chan []string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("kv: create watcher: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("kv: create dir: %w", err)
	}
	// The directory is watched because rename-based writes replace the inode.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("kv: watch %s: %w", dir, err)
	}

	changes := make(chan []string, 4)
	go f.watchLoop(ctx, watcher, changes)
	return changes, nil
}

func (f *File) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- []string) {
	defer close(changes)
	defer watcher.Close()

	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()
	var pendingSince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pendingSince = time.Now()
			}
		case <-ticker.C:
			if pendingSince.IsZero() || time.Since(pendingSince) < watchDebounce {
				continue
			}
			pendingSince = time.Time{}
			changed := f.reloadDiff()
			if len(changed) == 0 {
				continue
			}
			select {
			case changes <- changed:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("kv file watch error", slog.String("path", f.path), slog.Any("error", err))
		}
	}
}

func (f *File) reloadDiff() []string {
	next := f.read()
	f.mu.Lock()
	previous := f.items
	f.items = next
	f.mu.Unlock()

	var changed []string
	for key, value := range next {
		if old, ok := previous[key]; !ok || old != value {
			changed = append(changed, key)
		}
	}
	for key := range previous {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func (f *File) read() map[string]string {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("kv file unreadable", slog.String("path", f.path), slog.Any("error", err))
		}
		return map[string]string{}
	}
	var doc fileDocument
	if err := toml.Unmarshal(raw, &doc); err != nil {
		f.logger.Warn("kv file corrupt, treating as empty", slog.String("path", f.path), slog.Any("error", err))
		return map[string]string{}
	}
	if doc.Items == nil {
		return map[string]string{}
	}
	return doc.Items
}

func (f *File) write(items map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("kv: create dir: %w", err)
	}
	raw, err := toml.Marshal(fileDocument{Items: items})
	if err != nil {
		return fmt.Errorf("kv: marshal document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*.toml")
	if err != nil {
		return fmt.Errorf("kv: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("kv: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("kv: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("kv: replace document: %w", err)
	}
	return nil
}

func cloneItems(items map[string]string) map[string]string {
	out := make(map[string]string, len(items)+1)
	for key, value := range items {
		out[key] = value
	}
	return out
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

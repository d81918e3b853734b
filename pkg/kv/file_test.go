package kv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-viewstate/pkg/kv"
)

func TestFilePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.toml")
	first, err := kv.NewFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.SetItem("units_distance", "mi"); err != nil {
		t.Fatalf("set: %v", err)
	}

	second, err := kv.NewFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	value, ok, _ := second.GetItem("units_distance")
	if !ok || value != "mi" {
		t.Fatalf("expected persisted value, got %q ok=%t", value, ok)
	}
}

func TestFileTreatsCorruptDocumentAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := os.WriteFile(path, []byte("items = [not toml"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store, err := kv.NewFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok, err := store.GetItem("anything"); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%t err=%v", ok, err)
	}
	if err := store.SetItem("theme_mode", "dark"); err != nil {
		t.Fatalf("expected write to replace corrupt file, got %v", err)
	}
}

func TestFileWatchReportsExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	store, err := kv.NewFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	other, err := kv.NewFile(path)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	if err := other.SetItem("units_speed", "kph"); err != nil {
		t.Fatalf("external write: %v", err)
	}

	select {
	case keys := <-changes:
		if len(keys) != 1 || keys[0] != "units_speed" {
			t.Fatalf("expected units_speed change, got %v", keys)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for change")
	}
	if value, ok, _ := store.GetItem("units_speed"); !ok || value != "kph" {
		t.Fatalf("expected reloaded value, got %q ok=%t", value, ok)
	}
}

package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func isolated(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolated(t)

	cfg, err := Load(NewViper(""))
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Storage.DSN", cfg.Storage.DSN, "file://~/.config/viewstate/settings.toml"},
		{"Storage.Timeout", cfg.Storage.Timeout, 5 * time.Second},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "text"},
		{"Evaluator", cfg.Evaluator, "expr"},
		{"Metrics.Sink", cfg.Metrics.Sink, "none"},
		{"Channel", cfg.Channel, "viewstate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}
	if len(cfg.Persist) != 0 {
		t.Fatalf("expected no persisted paths, got %v", cfg.Persist)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := isolated(t)
	content := strings.Join([]string{
		`evaluator = "cel"`,
		`persist = ["ui", "charts"]`,
		``,
		`[storage]`,
		`dsn = "sqlite:///tmp/prefs.db"`,
		`timeout = "2s"`,
		``,
		`[log]`,
		`level = "debug"`,
		`format = "json"`,
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, ".viewstate.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(NewViper(""))
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Storage.DSN != "sqlite:///tmp/prefs.db" || cfg.Storage.Timeout != 2*time.Second {
		t.Fatalf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Evaluator != "cel" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !slices.Equal(cfg.Persist, []string{"ui", "charts"}) {
		t.Fatalf("expected persisted paths, got %v", cfg.Persist)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolated(t)
	t.Setenv("VIEWSTATE_STORAGE_DSN", "memory://")
	t.Setenv("VIEWSTATE_METRICS_SINK", "prometheus")

	cfg, err := Load(NewViper(""))
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Storage.DSN != "memory://" || cfg.Metrics.Sink != "prometheus" {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{name: "evaluator", key: "VIEWSTATE_EVALUATOR", val: "lua"},
		{name: "log format", key: "VIEWSTATE_LOG_FORMAT", val: "xml"},
		{name: "metrics sink", key: "VIEWSTATE_METRICS_SINK", val: "statsd"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			isolated(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(NewViper("")); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	dir := isolated(t)
	if _, err := Load(NewViper(filepath.Join(dir, "nope.toml"))); err == nil {
		t.Fatalf("expected error for a missing explicit config file")
	}
}

func TestValidateRequiresDSN(t *testing.T) {
	cfg := Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Evaluator: "expr",
		Metrics:   MetricsConfig{Sink: "none"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing DSN to fail validation")
	}
	cfg.Storage.DSN = "memory://"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

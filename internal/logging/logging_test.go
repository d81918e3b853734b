package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input  string
		expect slog.Level
		fails  bool
	}{
		{input: "", expect: slog.LevelInfo},
		{input: "debug", expect: slog.LevelDebug},
		{input: "WARN", expect: slog.LevelWarn},
		{input: "warning", expect: slog.LevelWarn},
		{input: "error", expect: slog.LevelError},
		{input: "loud", fails: true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.input)
		if tc.fails {
			if err == nil {
				t.Fatalf("expected error for %q", tc.input)
			}
			continue
		}
		if err != nil || got != tc.expect {
			t.Fatalf("expected %v for %q, got %v err=%v", tc.expect, tc.input, got, err)
		}
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "json", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", slog.String("path", "ui.theme"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("expected JSON output, got %q", lines[0])
	}
	if record["msg"] != "kept" || record["path"] != "ui.theme" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New("info", "xml", nil); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

package settings

import (
	"path"
	"slices"
	"strings"
)

// PositionalFunc reports whether key is a positional (unlabeled) column.
type PositionalFunc func(key string) bool

// IsPositional treats keys made only of ASCII digits as positional.
func IsPositional(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeKeys trims keys, drops empty ones and removes duplicates keeping
// the first occurrence.
func NormalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// NamedFirst moves named keys ahead of positional ones, keeping the relative
// order inside each group.
func NamedFirst(keys []string, positional PositionalFunc) []string {
	if positional == nil {
		positional = IsPositional
	}
	named := make([]string, 0, len(keys))
	var numeric []string
	for _, key := range keys {
		if positional(key) {
			numeric = append(numeric, key)
			continue
		}
		named = append(named, key)
	}
	return append(named, numeric...)
}

// Baseline orders a key universe deterministically: named keys first sorted
// case-insensitively, then positional keys sorted numerically. The result
// never depends on the order keys were discovered in.
func Baseline(universe []string, positional PositionalFunc) []string {
	if positional == nil {
		positional = IsPositional
	}
	keys := NormalizeKeys(universe)
	slices.SortStableFunc(keys, func(a, b string) int {
		pa, pb := positional(a), positional(b)
		switch {
		case pa && !pb:
			return 1
		case !pa && pb:
			return -1
		case pa && pb:
			return compareNumeric(a, b)
		}
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}

func compareNumeric(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// NormalizeDocumentKey turns a document identity (usually a file path) into
// a stable key: trimmed, slash separated and cleaned. Blank input stays
// blank.
func NormalizeDocumentKey(document string) string {
	document = strings.TrimSpace(document)
	if document == "" {
		return ""
	}
	document = strings.ReplaceAll(document, "\\", "/")
	return path.Clean(document)
}

// filterKnown keeps the keys present in universe, in their stored order.
func filterKnown(keys, universe []string) (kept, dropped []string) {
	known := make(map[string]struct{}, len(universe))
	for _, key := range universe {
		known[key] = struct{}{}
	}
	kept = make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := known[key]; ok {
			kept = append(kept, key)
			continue
		}
		dropped = append(dropped, key)
	}
	return kept, dropped
}

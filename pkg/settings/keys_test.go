package settings_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/goliatone/go-viewstate/pkg/settings"
)

func TestNormalizeKeys(t *testing.T) {
	got := settings.NormalizeKeys([]string{" B", "A", "", "B", "  ", "C "})
	if !slices.Equal(got, []string{"B", "A", "C"}) {
		t.Fatalf("expected [B A C], got %v", got)
	}
}

func TestBaselineIsInsertionOrderIndependent(t *testing.T) {
	a := settings.Baseline([]string{"3", "speed", "1", "Power", "10", "cadence"}, nil)
	b := settings.Baseline([]string{"cadence", "10", "Power", "1", "speed", "3"}, nil)
	expect := []string{"cadence", "Power", "speed", "1", "3", "10"}
	if !slices.Equal(a, expect) || !slices.Equal(b, expect) {
		t.Fatalf("expected %v for both orders, got %v and %v", expect, a, b)
	}
}

func TestNamedFirstKeepsGroupOrder(t *testing.T) {
	got := settings.NamedFirst([]string{"2", "speed", "1", "altitude"}, nil)
	if !slices.Equal(got, []string{"speed", "altitude", "2", "1"}) {
		t.Fatalf("expected [speed altitude 2 1], got %v", got)
	}
}

func TestWithPositionalFunc(t *testing.T) {
	positional := func(key string) bool { return strings.HasPrefix(key, "field_") }
	resolver := settings.NewResolver(nil, settings.WithPositionalFunc(positional))
	got := resolver.Resolve("cols", "", []string{"field_2", "speed", "field_1"})
	if got[0] != "speed" {
		t.Fatalf("expected named key first, got %v", got)
	}
}

func TestDiff(t *testing.T) {
	cases := []struct {
		name     string
		baseline []string
		current  []string
		added    int
		removed  int
	}{
		{name: "swap one", baseline: []string{"A", "B", "C"}, current: []string{"B", "C", "D"}, added: 1, removed: 1},
		{name: "reorder only", baseline: []string{"A", "B"}, current: []string{"B", "A"}},
		{name: "all new", baseline: nil, current: []string{"A", "B"}, added: 2},
		{name: "duplicates ignored", baseline: []string{"A"}, current: []string{"A", "A", " "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diff := settings.Diff(tc.baseline, tc.current)
			if diff.Added != tc.added || diff.Removed != tc.removed {
				t.Fatalf("expected added=%d removed=%d, got %+v", tc.added, tc.removed, diff)
			}
			if diff.Changed() != (tc.added+tc.removed > 0) {
				t.Fatalf("expected Changed to match counts, got %+v", diff)
			}
		})
	}

	diff := settings.Diff([]string{"A", "B", "C"}, []string{"B", "C", "D"})
	if !slices.Equal(diff.AddedKeys, []string{"D"}) || !slices.Equal(diff.RemovedKeys, []string{"A"}) {
		t.Fatalf("expected added [D] removed [A], got %+v", diff)
	}
}

func TestNormalizeDocumentKey(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"  ":                   "",
		"runs/ride.fit":        "runs/ride.fit",
		`C:\rides\a.fit`:       "C:/rides/a.fit",
		" ./runs//../ride.fit": "ride.fit",
	}
	for input, expect := range cases {
		if got := settings.NormalizeDocumentKey(input); got != expect {
			t.Fatalf("expected %q for %q, got %q", expect, input, got)
		}
	}
}

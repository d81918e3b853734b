package settings_test

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/goliatone/go-viewstate/pkg/activity"
	"github.com/goliatone/go-viewstate/pkg/kv"
	"github.com/goliatone/go-viewstate/pkg/settings"
)

func newChartResolver(t *testing.T, storage kv.Storage, opts ...settings.Option) *settings.Resolver {
	t.Helper()
	resolver := settings.NewResolver(storage, opts...)
	err := resolver.RegisterCategory(settings.Category{
		Name:   "charts",
		Prefix: "chart",
		Defaults: map[string]any{
			"showGrid":  true,
			"smoothing": 3,
			"unit":      "km",
		},
	})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	return resolver
}

func TestGetCategoryReturnsDefaults(t *testing.T) {
	resolver := newChartResolver(t, nil)
	got, err := resolver.GetCategory("charts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expect := map[string]any{"showGrid": true, "smoothing": 3.0, "unit": "km"}
	if !reflect.DeepEqual(expect, got) {
		t.Fatalf("expected %v, got %v", expect, got)
	}
}

func TestUpdateCategoryStoresOnlyCustomisations(t *testing.T) {
	storage := kv.NewMemory(nil)
	resolver := newChartResolver(t, storage)

	err := resolver.UpdateCategory("charts", map[string]any{
		"showGrid":  false,
		"smoothing": 3,
		"palette":   "warm",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if raw, ok, _ := storage.GetItem("chart_showGrid"); !ok || raw != "false" {
		t.Fatalf("expected chart_showGrid=false, got %q (present=%v)", raw, ok)
	}
	if _, ok, _ := storage.GetItem("chart_smoothing"); ok {
		t.Fatalf("expected default-valued field not to be stored")
	}

	got, err := resolver.GetCategory("charts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expect := map[string]any{"showGrid": false, "smoothing": 3.0, "unit": "km", "palette": "warm"}
	if !reflect.DeepEqual(expect, got) {
		t.Fatalf("expected %v, got %v", expect, got)
	}
}

func TestUpdateCategoryBackToDefaultRemovesKey(t *testing.T) {
	storage := kv.NewMemory(nil)
	resolver := newChartResolver(t, storage)
	if err := resolver.UpdateCategory("charts", map[string]any{"unit": "mi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := resolver.UpdateCategory("charts", map[string]any{"unit": "km"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.Len() != 0 {
		t.Fatalf("expected empty storage, got %d entries", storage.Len())
	}
}

func TestGetCategorySkipsMalformedValues(t *testing.T) {
	resolver := newChartResolver(t, kv.NewMemory(map[string]string{"chart_unit": "{oops"}))
	got, err := resolver.GetCategory("charts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["unit"] != "km" {
		t.Fatalf("expected default unit, got %v", got["unit"])
	}
}

func TestResetCategory(t *testing.T) {
	storage := kv.NewMemory(map[string]string{"other_key": `"keep"`})
	capture := &activity.CaptureHook{}
	resolver := newChartResolver(t, storage, settings.WithActivityHooks(activity.Hooks{capture}))

	if err := resolver.UpdateCategory("charts", map[string]any{"unit": "mi", "palette": "warm"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := resolver.ResetCategory("charts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.Len() != 1 {
		t.Fatalf("expected only the unrelated key to remain, got %d entries", storage.Len())
	}
	expect := []string{activity.VerbCategoryUpdated, activity.VerbCategoryReset}
	if got := capture.Verbs(); !slices.Equal(got, expect) {
		t.Fatalf("expected %v, got %v", expect, got)
	}
}

func TestUnknownCategory(t *testing.T) {
	resolver := settings.NewResolver(nil)
	if _, err := resolver.GetCategory("missing"); !errors.Is(err, settings.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if err := resolver.UpdateCategory("missing", map[string]any{"a": 1}); !errors.Is(err, settings.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

type chartOptions struct {
	ShowGrid  bool    `json:"showGrid"`
	Smoothing float64 `json:"smoothing"`
	Unit      string  `json:"unit"`
	Theme     string  `json:"theme"`
}

func TestDecodeCategory(t *testing.T) {
	resolver := newChartResolver(t, nil)
	if err := resolver.UpdateCategory("charts", map[string]any{"unit": "mi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := settings.DecodeCategory(resolver, "charts", chartOptions{Theme: "dark"})
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	expect := chartOptions{ShowGrid: true, Smoothing: 3, Unit: "mi", Theme: "dark"}
	if got != expect {
		t.Fatalf("expected %+v, got %+v", expect, got)
	}
}

func TestDecodeCategoryKeepsExplicitZeroValues(t *testing.T) {
	resolver := newChartResolver(t, nil)
	err := resolver.UpdateCategory("charts", map[string]any{
		"showGrid":  false,
		"smoothing": 0,
		"unit":      "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	values, _ := resolver.GetCategory("charts")
	if values["showGrid"] != false {
		t.Fatalf("expected map view showGrid=false, got %v", values["showGrid"])
	}

	fallback := chartOptions{ShowGrid: true, Smoothing: 5, Unit: "km", Theme: "light"}
	got, err := settings.DecodeCategory(resolver, "charts", fallback)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	expect := chartOptions{ShowGrid: false, Smoothing: 0, Unit: "", Theme: "light"}
	if got != expect {
		t.Fatalf("expected %+v, got %+v", expect, got)
	}
}

func TestDecodeCategoryUnknown(t *testing.T) {
	resolver := newChartResolver(t, nil)
	if _, err := settings.DecodeCategory(resolver, "missing", chartOptions{}); !errors.Is(err, settings.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestCategories(t *testing.T) {
	resolver := newChartResolver(t, nil)
	if err := resolver.RegisterCategory(settings.Category{Name: "units"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resolver.Categories(); !slices.Equal(got, []string{"charts", "units"}) {
		t.Fatalf("expected [charts units], got %v", got)
	}
}

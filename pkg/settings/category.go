package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/goliatone/go-viewstate/internal/hydrate"
	"github.com/goliatone/go-viewstate/layering"
	"github.com/goliatone/go-viewstate/pkg/activity"
	"github.com/goliatone/go-viewstate/pkg/kv"
)

// Category declares a group of scalar settings stored as "<prefix>_<field>".
// Prefix defaults to Name. Defaults lists the known fields.
type Category struct {
	Name     string
	Prefix   string
	Defaults map[string]any
}

func (c Category) fieldKey(field string) string {
	return c.Prefix + "_" + field
}

// RegisterCategory declares category. Registering a name again replaces it.
func (r *Resolver) RegisterCategory(category Category) error {
	name, err := cleanCategory(category.Name)
	if err != nil {
		return err
	}
	category.Name = name
	category.Prefix = strings.TrimSpace(category.Prefix)
	if category.Prefix == "" {
		category.Prefix = name
	}
	defaults, err := normalizeJSON(category.Defaults)
	if err != nil {
		return fmt.Errorf("settings: defaults for %q: %w", name, err)
	}
	category.Defaults, _ = defaults.(map[string]any)
	if category.Defaults == nil {
		category.Defaults = map[string]any{}
	}

	r.mu.Lock()
	r.categories[name] = category
	r.mu.Unlock()
	return nil
}

// GetCategory returns the category's defaults overlaid with every stored
// field. Malformed stored values are logged and skipped.
func (r *Resolver) GetCategory(name string) (map[string]any, error) {
	category, err := r.category(name)
	if err != nil {
		return nil, err
	}
	stored := map[string]any{}
	for _, field := range r.categoryFields(category) {
		key := category.fieldKey(field)
		raw, ok, err := r.storage.GetItem(key)
		if err != nil {
			r.faults.Report(viewstate.FaultPersistence, "get-category", key, err)
			continue
		}
		if !ok {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			r.faults.Report(viewstate.FaultPersistence, "get-category", key, err)
			continue
		}
		stored[field] = value
	}
	return layering.MergeLayers(stored, category.Defaults), nil
}

// UpdateCategory writes partial. A field set to its default value is removed
// from storage so only customisations are persisted.
func (r *Resolver) UpdateCategory(name string, partial map[string]any) error {
	category, err := r.category(name)
	if err != nil {
		return err
	}
	normalized, err := normalizeJSON(partial)
	if err != nil {
		return fmt.Errorf("settings: update %q: %w", category.Name, err)
	}
	fields, _ := normalized.(map[string]any)
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	for _, field := range names {
		if strings.TrimSpace(field) == "" {
			continue
		}
		key := category.fieldKey(field)
		value := fields[field]
		if def, ok := category.Defaults[field]; ok && reflect.DeepEqual(def, value) {
			if err := r.storage.RemoveItem(key); err != nil {
				return fmt.Errorf("settings: remove %q: %w", key, err)
			}
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("settings: encode %q: %w", key, err)
		}
		if err := r.storage.SetItem(key, string(raw)); err != nil {
			return fmt.Errorf("settings: write %q: %w", key, err)
		}
	}

	r.logger.Debug("category updated", slog.String("category", category.Name), slog.Int("fields", len(names)))
	r.emit(activity.BuildCategoryUpdatedEvent(activity.PreferenceEventInput{
		ActorID:    r.actor,
		Category:   category.Name,
		Fields:     fields,
		OccurredAt: r.now(),
	}))
	return nil
}

// ResetCategory removes every stored field of the category.
func (r *Resolver) ResetCategory(name string) error {
	category, err := r.category(name)
	if err != nil {
		return err
	}
	for _, field := range r.categoryFields(category) {
		key := category.fieldKey(field)
		if err := r.storage.RemoveItem(key); err != nil {
			return fmt.Errorf("settings: remove %q: %w", key, err)
		}
	}
	r.emit(activity.BuildCategoryResetEvent(activity.PreferenceEventInput{
		ActorID:    r.actor,
		Category:   category.Name,
		OccurredAt: r.now(),
	}))
	return nil
}

// Categories returns the registered category names sorted alphabetically.
func (r *Resolver) Categories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeCategory hydrates the category into T. Fields the category does not
// know (no default and nothing stored) keep their value from fallback; every
// known field, including an explicit false, 0 or "", comes from the category.
func DecodeCategory[T any](r *Resolver, name string, fallback T) (T, error) {
	var zero T
	values, err := r.GetCategory(name)
	if err != nil {
		return zero, err
	}
	category, _ := r.category(name)

	base, err := normalizeJSON(fallback)
	if err != nil {
		return zero, fmt.Errorf("settings: encode fallback for %q: %w", category.Name, err)
	}
	merged, _ := base.(map[string]any)
	if merged == nil {
		merged = make(map[string]any, len(values))
	}
	for field, value := range values {
		merged[field] = value
	}

	return hydrate.NewDecoder[T]().Decode(hydrate.Context{
		Category: category.Name,
		Prefix:   category.Prefix,
	}, merged)
}

func (r *Resolver) category(name string) (Category, error) {
	clean, err := cleanCategory(name)
	if err != nil {
		return Category{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	category, ok := r.categories[clean]
	if !ok {
		return Category{}, fmt.Errorf("%w: %q", ErrUnknownCategory, clean)
	}
	return category, nil
}

// categoryFields lists the declared fields plus any stored field the backend
// can enumerate.
func (r *Resolver) categoryFields(category Category) []string {
	seen := map[string]struct{}{}
	fields := make([]string, 0, len(category.Defaults))
	for field := range category.Defaults {
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	if lister, ok := r.storage.(kv.Lister); ok {
		prefix := category.Prefix + "_"
		keys, err := lister.Keys(prefix)
		if err != nil {
			r.faults.Report(viewstate.FaultPersistence, "list-category", prefix, err)
		}
		for _, key := range keys {
			field := strings.TrimPrefix(key, prefix)
			if field == "" {
				continue
			}
			if _, ok := seen[field]; ok {
				continue
			}
			seen[field] = struct{}{}
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

// normalizeJSON round-trips value so numbers compare as float64 and structs
// become plain maps.
func normalizeJSON(value any) (any, error) {
	if value == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

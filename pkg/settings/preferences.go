package settings

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/goliatone/go-viewstate/layering"
	"github.com/goliatone/go-viewstate/pkg/activity"
)

// SaveOption configures a single Save call.
type SaveOption func(*saveConfig)

type saveConfig struct {
	known    []string
	hasKnown bool
}

// WithKnownKeys sets the key universe used to compute the effective default.
// Without it Save falls back to the universe seen by the last Resolve of the
// same category and document.
func WithKnownKeys(keys []string) SaveOption {
	return func(cfg *saveConfig) {
		cfg.known = NormalizeKeys(keys)
		cfg.hasKnown = true
	}
}

// Resolve returns the visible keys for document: the override when it still
// names known keys, else the global default, else the baseline of
// allKnownKeys. The result only contains keys from allKnownKeys.
func (r *Resolver) Resolve(category, documentKey string, allKnownKeys []string) []string {
	keys, _ := r.ResolveWithTrace(category, documentKey, allKnownKeys)
	return keys
}

// ResolveWithTrace is Resolve plus the per-tier provenance.
func (r *Resolver) ResolveWithTrace(category, documentKey string, allKnownKeys []string) ([]string, Trace) {
	document := NormalizeDocumentKey(documentKey)
	universe := NormalizeKeys(allKnownKeys)
	trace := Trace{Category: category, Document: document}

	name, err := cleanCategory(category)
	if err != nil {
		r.logger.Warn("resolve with invalid category", slog.String("category", category))
		trace.Source = layering.TierBaseline
		trace.Keys = Baseline(universe, r.positional)
		return trace.Keys, trace
	}
	trace.Category = name
	r.rememberUniverse(name, document, universe)

	for _, ref := range layering.Chain(name, document) {
		if ref.Tier == layering.TierBaseline {
			keys := Baseline(universe, r.positional)
			trace.Tiers = append(trace.Tiers, Provenance{Tier: ref.Tier, Found: true, Valid: true, Keys: keys})
			trace.Source = ref.Tier
			trace.Keys = keys
			break
		}

		storageKey := ref.StorageKey()
		stored, found, valid := r.readList("resolve", storageKey)
		kept, dropped := filterKnown(stored, universe)
		kept = NamedFirst(kept, r.positional)
		trace.Tiers = append(trace.Tiers, Provenance{
			Tier:       ref.Tier,
			StorageKey: storageKey,
			Found:      found,
			Valid:      valid,
			Keys:       kept,
			Dropped:    dropped,
		})
		if valid && len(kept) > 0 {
			trace.Source = ref.Tier
			trace.Keys = kept
			break
		}
	}

	r.logger.Debug("preferences resolved",
		slog.String("category", name),
		slog.String("document", document),
		slog.String("tier", trace.Source.String()),
		slog.Int("keys", len(trace.Keys)),
	)
	return trace.Keys, trace
}

// Save stores orderedKeys as the override for document. When the keys equal
// the effective default in membership and order the override is removed
// instead, so IsCustomized stays an existence test. An empty list also
// removes the override. stored reports whether an override was written.
func (r *Resolver) Save(category, documentKey string, orderedKeys []string, opts ...SaveOption) (stored bool, err error) {
	name, err := cleanCategory(category)
	if err != nil {
		return false, err
	}
	document := NormalizeDocumentKey(documentKey)
	if document == "" {
		return false, fmt.Errorf("%w: %q", ErrInvalidDocument, documentKey)
	}
	cfg := saveConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	universe := cfg.known
	if !cfg.hasKnown {
		universe = r.rememberedUniverse(name, document)
	}

	keys := NamedFirst(NormalizeKeys(orderedKeys), r.positional)
	storageKey := layering.Ref{Category: name, Tier: layering.TierDocument, Document: document}.StorageKey()
	input := activity.PreferenceEventInput{
		ActorID:     r.actor,
		Category:    name,
		DocumentKey: document,
		Keys:        keys,
		OccurredAt:  r.now(),
	}

	if len(keys) == 0 || slices.Equal(keys, r.effectiveDefault(name, universe)) {
		existed, err := r.removeKey(storageKey)
		if err != nil {
			return false, err
		}
		r.logger.Debug("override matches default", slog.String("category", name), slog.String("document", document))
		if existed {
			r.emit(activity.BuildOverrideClearedEvent(input))
		}
		return false, nil
	}

	if err := r.writeList(storageKey, keys); err != nil {
		return false, err
	}
	r.logger.Debug("override saved", slog.String("category", name), slog.String("document", document), slog.Int("keys", len(keys)))
	r.emit(activity.BuildOverrideSavedEvent(input))
	return true, nil
}

// ClearOverride removes the override for document.
func (r *Resolver) ClearOverride(category, documentKey string) error {
	name, err := cleanCategory(category)
	if err != nil {
		return err
	}
	document := NormalizeDocumentKey(documentKey)
	if document == "" {
		return fmt.Errorf("%w: %q", ErrInvalidDocument, documentKey)
	}
	existed, err := r.removeKey(layering.Ref{Category: name, Tier: layering.TierDocument, Document: document}.StorageKey())
	if err != nil {
		return err
	}
	if existed {
		r.emit(activity.BuildOverrideClearedEvent(activity.PreferenceEventInput{
			ActorID:     r.actor,
			Category:    name,
			DocumentKey: document,
			OccurredAt:  r.now(),
		}))
	}
	return nil
}

// IsCustomized reports whether document has a stored override.
func (r *Resolver) IsCustomized(category, documentKey string) bool {
	name, err := cleanCategory(category)
	if err != nil {
		return false
	}
	document := NormalizeDocumentKey(documentKey)
	if document == "" {
		return false
	}
	key := layering.Ref{Category: name, Tier: layering.TierDocument, Document: document}.StorageKey()
	_, ok, err := r.storage.GetItem(key)
	if err != nil {
		r.logger.Warn("override lookup failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return ok
}

// SetGlobalDefault stores keys as the default for documents without an
// override. Existing overrides are not rewritten. An empty list clears the
// default.
func (r *Resolver) SetGlobalDefault(category string, keys []string) error {
	name, err := cleanCategory(category)
	if err != nil {
		return err
	}
	normalized := NamedFirst(NormalizeKeys(keys), r.positional)
	if len(normalized) == 0 {
		return r.ClearGlobalDefault(name)
	}
	if err := r.writeList(globalKey(name), normalized); err != nil {
		return err
	}
	r.logger.Debug("global default set", slog.String("category", name), slog.Int("keys", len(normalized)))
	r.emit(activity.BuildDefaultSetEvent(activity.PreferenceEventInput{
		ActorID:    r.actor,
		Category:   name,
		Keys:       normalized,
		OccurredAt: r.now(),
	}))
	return nil
}

// ClearGlobalDefault removes the global default of category.
func (r *Resolver) ClearGlobalDefault(category string) error {
	name, err := cleanCategory(category)
	if err != nil {
		return err
	}
	existed, err := r.removeKey(globalKey(name))
	if err != nil {
		return err
	}
	if existed {
		r.emit(activity.BuildDefaultClearedEvent(activity.PreferenceEventInput{
			ActorID:    r.actor,
			Category:   name,
			OccurredAt: r.now(),
		}))
	}
	return nil
}

// GlobalDefault returns the stored global default of category, unfiltered.
func (r *Resolver) GlobalDefault(category string) ([]string, bool) {
	name, err := cleanCategory(category)
	if err != nil {
		return nil, false
	}
	keys, _, valid := r.readList("global-default", globalKey(name))
	if !valid || len(keys) == 0 {
		return nil, false
	}
	return keys, true
}

// effectiveDefault is the global default filtered to universe, or the
// baseline when the global default is absent or filters to nothing. With an
// empty universe the global default is used as stored.
func (r *Resolver) effectiveDefault(category string, universe []string) []string {
	if global, ok := r.GlobalDefault(category); ok {
		if len(universe) == 0 {
			return NamedFirst(global, r.positional)
		}
		kept, _ := filterKnown(global, universe)
		if len(kept) > 0 {
			return NamedFirst(kept, r.positional)
		}
	}
	return Baseline(universe, r.positional)
}

func globalKey(category string) string {
	return layering.Ref{Category: category, Tier: layering.TierGlobal}.StorageKey()
}

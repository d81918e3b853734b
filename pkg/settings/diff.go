package settings

import "github.com/goliatone/go-viewstate/layering"

// DiffResult counts membership changes between two key lists. Order is
// ignored.
type DiffResult struct {
	Added       int      `json:"added"`
	Removed     int      `json:"removed"`
	AddedKeys   []string `json:"added_keys,omitempty"`
	RemovedKeys []string `json:"removed_keys,omitempty"`
}

// Changed reports whether the lists differ in membership.
func (d DiffResult) Changed() bool {
	return d.Added > 0 || d.Removed > 0
}

// Diff compares current against baseline. Keys are normalized first, so
// duplicates and blanks do not count.
func Diff(baseline, current []string) DiffResult {
	base := NormalizeKeys(baseline)
	next := NormalizeKeys(current)

	_, added := filterKnown(next, base)
	_, removed := filterKnown(base, next)
	return DiffResult{
		Added:       len(added),
		Removed:     len(removed),
		AddedKeys:   added,
		RemovedKeys: removed,
	}
}

// Status summarises a document's preferences for a settings dialog.
type Status struct {
	Category   string        `json:"category"`
	Document   string        `json:"document,omitempty"`
	Keys       []string      `json:"keys"`
	Source     layering.Tier `json:"source"`
	Customized bool          `json:"customized"`
	Default    []string      `json:"default"`
	Diff       DiffResult    `json:"diff"`
}

// Status resolves document and compares the result with the effective
// default.
func (r *Resolver) Status(category, documentKey string, allKnownKeys []string) Status {
	keys, trace := r.ResolveWithTrace(category, documentKey, allKnownKeys)
	universe := NormalizeKeys(allKnownKeys)
	fallback := Baseline(universe, r.positional)
	if name, err := cleanCategory(category); err == nil {
		fallback = r.effectiveDefault(name, universe)
	}
	return Status{
		Category:   trace.Category,
		Document:   trace.Document,
		Keys:       keys,
		Source:     trace.Source,
		Customized: r.IsCustomized(category, documentKey),
		Default:    fallback,
		Diff:       Diff(fallback, keys),
	}
}

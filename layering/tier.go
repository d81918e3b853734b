package layering

import (
	"net/url"
	"strings"
)

// Tier identifies one preference resolution layer. Higher tiers win.
type Tier int

const (
	// TierUnknown flags misconfigured references.
	TierUnknown Tier = iota
	// TierBaseline is the code-defined default derived from the known keys.
	TierBaseline
	// TierGlobal is the user-set default for every document of a category.
	TierGlobal
	// TierDocument is the per-document override.
	TierDocument
)

func (t Tier) String() string {
	switch t {
	case TierBaseline:
		return "baseline"
	case TierGlobal:
		return "global"
	case TierDocument:
		return "document"
	default:
		return "unknown"
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name. Unknown names decode to TierUnknown.
func (t *Tier) UnmarshalText(text []byte) error {
	*t = ParseTier(string(text))
	return nil
}

// ParseTier converts a tier name back into a Tier.
func ParseTier(value string) Tier {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "baseline":
		return TierBaseline
	case "global", "default":
		return TierGlobal
	case "document", "override":
		return TierDocument
	default:
		return TierUnknown
	}
}

const (
	selectionInfix = "ColSel_"
	globalSentinel = "_default__"
)

// Ref names one tier of one category, optionally bound to a document.
type Ref struct {
	Category string
	Tier     Tier
	Document string
}

// StorageKey returns the side-channel key for the reference:
// "<category>ColSel_<escaped-document>" for overrides and
// "<category>ColSel__default__" for the global default. Baseline and unknown
// tiers are not persisted and return "".
func (r Ref) StorageKey() string {
	category := strings.TrimSpace(r.Category)
	if category == "" {
		return ""
	}
	switch r.Tier {
	case TierGlobal:
		return category + selectionInfix + globalSentinel
	case TierDocument:
		if strings.TrimSpace(r.Document) == "" {
			return ""
		}
		return category + selectionInfix + EscapeDocument(r.Document)
	default:
		return ""
	}
}

// EscapeDocument makes a document identity safe for use inside a storage key.
// A document literally named like the global sentinel gets its leading
// underscore percent-encoded so the two keys never collide.
func EscapeDocument(document string) string {
	escaped := url.QueryEscape(document)
	if escaped == globalSentinel {
		return "%5F" + escaped[1:]
	}
	return escaped
}

// Chain lists the tiers for a category and document from strongest to
// weakest. A blank document skips the override tier.
func Chain(category, document string) []Ref {
	refs := make([]Ref, 0, 3)
	if strings.TrimSpace(document) != "" {
		refs = append(refs, Ref{Category: category, Tier: TierDocument, Document: document})
	}
	refs = append(refs,
		Ref{Category: category, Tier: TierGlobal},
		Ref{Category: category, Tier: TierBaseline},
	)
	return refs
}

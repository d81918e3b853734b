package settings

import (
	"encoding/json"

	"github.com/goliatone/go-viewstate/layering"
)

// Trace records how a preference list was resolved.
type Trace struct {
	Category string        `json:"category"`
	Document string        `json:"document,omitempty"`
	Source   layering.Tier `json:"source"`
	Keys     []string      `json:"keys"`
	Tiers    []Provenance  `json:"tiers"`
}

// Provenance details what one tier contributed. Dropped lists stored keys
// that are no longer in the known universe.
type Provenance struct {
	Tier       layering.Tier `json:"tier"`
	StorageKey string        `json:"storage_key,omitempty"`
	Found      bool          `json:"found"`
	Valid      bool          `json:"valid"`
	Keys       []string      `json:"keys,omitempty"`
	Dropped    []string      `json:"dropped,omitempty"`
}

// ToJSON serialises the trace for logging or CLI output.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON decodes a payload produced by ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const preferenceListSchemaURL = "https://schemas.viewstate.local/settings/preference-list.json"

const preferenceListSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"items": {"type": "string"}
}`

var compiledListSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(preferenceListSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(preferenceListSchemaURL, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(preferenceListSchemaURL)
})

// decodeList parses a persisted preference list. Anything other than a JSON
// array of strings is rejected.
func decodeList(raw string) ([]string, error) {
	schema, err := compiledListSchema()
	if err != nil {
		return nil, fmt.Errorf("settings: compile list schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("settings: parse list: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("settings: invalid list: %w", err)
	}
	items, _ := instance.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if key, ok := item.(string); ok {
			out = append(out, key)
		}
	}
	return out, nil
}

func encodeList(keys []string) (string, error) {
	if keys == nil {
		keys = []string{}
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// readList loads the list at key. found reports that an entry exists; valid
// reports that it decoded. Faults are logged and never returned.
func (r *Resolver) readList(op, key string) (keys []string, found, valid bool) {
	raw, ok, err := r.storage.GetItem(key)
	if err != nil {
		r.faults.Report(viewstate.FaultPersistence, op, key, err)
		return nil, false, false
	}
	if !ok {
		return nil, false, false
	}
	keys, err = decodeList(raw)
	if err != nil {
		r.faults.Report(viewstate.FaultPersistence, op, key, err)
		return nil, true, false
	}
	return NormalizeKeys(keys), true, true
}

func (r *Resolver) writeList(key string, keys []string) error {
	raw, err := encodeList(keys)
	if err != nil {
		return fmt.Errorf("settings: encode %q: %w", key, err)
	}
	if err := r.storage.SetItem(key, raw); err != nil {
		return fmt.Errorf("settings: write %q: %w", key, err)
	}
	return nil
}

func (r *Resolver) removeKey(key string) (existed bool, err error) {
	_, existed, err = r.storage.GetItem(key)
	if err != nil {
		r.faults.Report(viewstate.FaultPersistence, "remove", key, err)
	}
	if err := r.storage.RemoveItem(key); err != nil {
		return existed, fmt.Errorf("settings: remove %q: %w", key, err)
	}
	return existed, nil
}

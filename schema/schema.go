// Package schema derives a JSON Schema document from a state snapshot so
// tooling can see the shape of the store without reading Go types.
package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Draft is the JSON Schema dialect emitted by Generate.
const Draft = "https://json-schema.org/draft/2020-12/schema"

// Option configures Generate.
type Option func(*config)

type config struct {
	title       string
	description string
}

// WithTitle sets the document title.
func WithTitle(title string) Option {
	return func(cfg *config) {
		cfg.title = title
	}
}

// WithDescription sets the document description.
func WithDescription(description string) Option {
	return func(cfg *config) {
		cfg.description = description
	}
}

// Generate builds a schema describing value. Maps become objects whose
// properties are the present keys; slices use their first element for items.
func Generate(value any, opts ...Option) (map[string]any, error) {
	cfg := config{title: "State"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	doc, err := buildSchema(reflect.ValueOf(value))
	if err != nil {
		return nil, err
	}
	doc["$schema"] = Draft
	if cfg.title != "" {
		doc["title"] = cfg.title
	}
	if cfg.description != "" {
		doc["description"] = cfg.description
	}
	return doc, nil
}

func buildSchema(rv reflect.Value) (map[string]any, error) {
	if !rv.IsValid() {
		return map[string]any{"type": "null"}, nil
	}

	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return map[string]any{"type": "null"}, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return map[string]any{"type": "null"}, nil
		}
		return buildSchema(rv.Elem())
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Struct:
		if rv.Type() == reflect.TypeOf(time.Time{}) {
			return map[string]any{
				"type":   "string",
				"format": "date-time",
			}, nil
		}
		return schemaForStruct(rv)
	case reflect.Map:
		return schemaForMap(rv)
	case reflect.Slice, reflect.Array:
		return schemaForSlice(rv)
	default:
		return nil, fmt.Errorf("schema: unsupported kind %s", rv.Kind())
	}
}

func schemaForMap(rv reflect.Value) (map[string]any, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("schema: map key type %s unsupported", rv.Type().Key())
	}

	keys := rv.MapKeys()
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, key.String())
	}
	sort.Strings(names)

	properties := make(map[string]any, len(names))
	for _, name := range names {
		child, err := buildSchema(rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		properties[name] = child
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}, nil
}

// schemaForStruct follows json tags. Pointer and omitempty fields are
// optional; the rest are required.
func schemaForStruct(rv reflect.Value) (map[string]any, error) {
	rt := rv.Type()
	properties := map[string]any{}
	var required []string

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		optional := field.Type.Kind() == reflect.Pointer
		if tag := field.Tag.Get("json"); tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" || part == "omitzero" {
					optional = true
				}
			}
		}

		child, err := buildSchema(rv.Field(i))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if optional {
			child = map[string]any{"anyOf": []any{child, map[string]any{"type": "null"}}}
		}
		properties[name] = child
		if !optional {
			required = append(required, name)
		}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		doc["required"] = required
	}
	return doc, nil
}

func schemaForSlice(rv reflect.Value) (map[string]any, error) {
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return map[string]any{
			"type":            "string",
			"contentEncoding": "base64",
		}, nil
	}

	itemSchema := map[string]any{}
	if rv.Len() > 0 {
		var err error
		itemSchema, err = buildSchema(rv.Index(0))
		if err != nil {
			return nil, err
		}
	}
	return map[string]any{
		"type":  "array",
		"items": itemSchema,
	}, nil
}

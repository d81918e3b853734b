package viewstate

import (
	"fmt"
	"sort"
	"strings"
)

// FieldDescriptor describes a leaf path and the inferred type of its value.
type FieldDescriptor struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// Describe flattens the current tree into leaf descriptors sorted by path.
// Values that are not plain objects (operations, samples, slices) are leaves.
func (s *Store) Describe() []FieldDescriptor {
	descriptors := deriveFieldDescriptors(s.Snapshot(), "")
	if descriptors == nil {
		return []FieldDescriptor{}
	}
	return descriptors
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	if value == nil {
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Type: "nil"}}
	}

	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix == "" {
				return nil
			}
			return []FieldDescriptor{{
				Path: prefix,
				Type: "map[string]any",
			}}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, deriveFieldDescriptors(typed[key], joinPath(prefix, key))...)
		}
		return fields
	case []any:
		elementType := "any"
		if len(typed) > 0 {
			elementType = typeName(typed[0])
		}
		return []FieldDescriptor{{
			Path: prefix,
			Type: "[]" + elementType,
		}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{
			Path: prefix,
			Type: typeName(typed),
		}}
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, float32:
		return "number"
	case int, int32, int64, uint, uint32, uint64:
		return "integer"
	case Operation:
		return "operation"
	case MetricSample:
		return "metric"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}

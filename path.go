package viewstate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is reported when a path is empty or has empty segments.
var ErrInvalidPath = errors.New("viewstate: invalid path")

func splitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// segmentKey turns a caller supplied id into a single path segment.
func segmentKey(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), ".", "_")
}

func lookupNode(root map[string]any, segments []string) (any, bool) {
	var current any = root
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// assignNode writes value at segments, creating or replacing intermediate
// nodes that are not objects. Siblings along the way are preserved.
func assignNode(root map[string]any, segments []string, value any) {
	node := root
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[segment] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

func removeNode(root map[string]any, segments []string) bool {
	node := root
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			return false
		}
		node = next
	}
	last := segments[len(segments)-1]
	if _, ok := node[last]; !ok {
		return false
	}
	delete(node, last)
	return true
}

// related reports whether a write to path can change the value at watched.
func related(path, watched string) bool {
	if path == watched {
		return true
	}
	return strings.HasPrefix(path, watched+".") || strings.HasPrefix(watched, path+".")
}

// cloneValue deep copies the JSON-shaped containers the store hands out.
// Other values are returned as-is.
func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		if typed == nil {
			return typed
		}
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = cloneValue(item)
		}
		return out
	case []any:
		if typed == nil {
			return typed
		}
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		if typed == nil {
			return typed
		}
		return append([]string(nil), typed...)
	case map[string]string:
		if typed == nil {
			return typed
		}
		out := make(map[string]string, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return out
	case Operation:
		return typed.clone()
	case MetricSample:
		return typed.clone()
	default:
		return value
	}
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out, _ := cloneValue(src).(map[string]any)
	return out
}

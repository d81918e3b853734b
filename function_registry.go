package viewstate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function is a helper callable from computed value expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry holds expression helpers. Names are case-insensitive.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: map[string]Function{}}
}

// ViewerFunctions returns a registry preloaded with the viewer helpers:
//
//	percent(done, total)  progress percentage clamped to [0, 100]
//	coalesce(a, b, ...)   first argument that is neither nil nor ""
func ViewerFunctions() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register("percent", percentFunction)
	_ = registry.Register("coalesce", coalesceFunction)
	return registry
}

// Register adds fn under name. A name can only be registered once.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	key := strings.ToLower(strings.TrimSpace(name))
	switch {
	case key == "":
		return fmt.Errorf("viewstate: function name must not be empty")
	case fn == nil:
		return fmt.Errorf("viewstate: function %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = map[string]Function{}
	}
	if _, taken := r.functions[key]; taken {
		return fmt.Errorf("viewstate: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone copies the registry so later registrations on either side stay
// local.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &FunctionRegistry{functions: make(map[string]Function, len(r.functions))}
	for key, fn := range r.functions {
		out.functions[key] = fn
	}
	return out
}

func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("viewstate: function registry is nil")
	}
	r.mu.RLock()
	fn, ok := r.functions[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("viewstate: function %q not registered", name)
	}
	return fn(args...)
}

// Names lists the registered keys in sorted order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.functions))
	for key := range r.functions {
		names = append(names, key)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// WithFunctionRegistry hands a copy of registry to the default evaluator.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

// WithCustomFunction adds one helper for the default evaluator.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *config) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

func percentFunction(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("viewstate: percent expects 2 arguments, got %d", len(args))
	}
	done, err := asFloat(args[0])
	if err != nil {
		return nil, fmt.Errorf("viewstate: percent done: %w", err)
	}
	total, err := asFloat(args[1])
	if err != nil {
		return nil, fmt.Errorf("viewstate: percent total: %w", err)
	}
	if total <= 0 {
		return 0.0, nil
	}
	return ClampProgress(done / total * 100), nil
}

func coalesceFunction(args ...any) (any, error) {
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if s, ok := arg.(string); ok && s == "" {
			continue
		}
		return arg, nil
	}
	return nil, nil
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("not a number: %T", value)
	}
}

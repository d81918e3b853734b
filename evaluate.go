package viewstate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoEvaluator is returned when an expression is registered but no
	// evaluator can be resolved.
	ErrNoEvaluator = errors.New("viewstate: evaluator not configured")
	// ErrUnknownEngine is returned by NewEngine for unsupported engine names.
	ErrUnknownEngine = errors.New("viewstate: unknown expression engine")
	// ErrJSEvaluatorUnavailable means the binary was built without the
	// js_eval tag.
	ErrJSEvaluatorUnavailable = errors.New("viewstate: js evaluator not built (js_eval tag)")
)

// NewEngine builds the evaluator named engine ("expr", "cel" or "js") sharing
// cache and functions. An empty name selects expr.
func NewEngine(engine string, cache ProgramCache, functions *FunctionRegistry) (Evaluator, error) {
	switch engine {
	case "", "expr":
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(functions)), nil
	case "cel":
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(functions)), nil
	case "js":
		if !JSEvaluatorAvailable() {
			return nil, ErrJSEvaluatorUnavailable
		}
		return NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(functions)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// JSEvaluatorAvailable reports whether goja was linked in.
func JSEvaluatorAvailable() bool {
	return jsEngineBuilt
}

// JSEvaluatorOption configures NewJSEvaluator.
type JSEvaluatorOption func(*jsSettings)

type jsSettings struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(s *jsSettings) { s.cache = cache }
}

// JSWithFunctionRegistry hands the JS engine a copy of registry.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(s *jsSettings) { s.registry = registry.Clone() }
}

func newJSSettings(opts []JSEvaluatorOption) jsSettings {
	var s jsSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// engineNamer is implemented by evaluators that are neither expr nor cel.
type engineNamer interface {
	engine() string
}

// Evaluate runs a one-off expression against the current store snapshot.
func (c *ComputedCache) Evaluate(expression string) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("viewstate: expression must not be empty")
	}
	evaluator, err := c.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	ctx := EvalContext{Snapshot: c.snapshot()}.withDefaults()
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expression)
	evalErr = withRoots(runFailure(engine, expression, "", evalErr), ctx.Snapshot)
	c.cfg.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expression,
		Name:     ctx.label(),
		Duration: time.Since(start),
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

// resolveEvaluator returns the configured evaluator or lazily builds the
// default expr evaluator with the configured cache and functions.
func (c *ComputedCache) resolveEvaluator() (Evaluator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.evaluator != nil {
		return c.evaluator, nil
	}
	if c.cfg.evaluator != nil {
		c.evaluator = c.cfg.evaluator
		return c.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if c.cfg.programCache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(c.cfg.programCache))
	}
	if c.cfg.functions != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(c.cfg.functions))
	}
	evaluator := NewExprEvaluator(exprOpts...)
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	c.evaluator = evaluator
	return evaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	switch v := e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	case engineNamer:
		return v.engine()
	default:
		return "custom"
	}
}

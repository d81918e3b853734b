package viewstate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownComputed is returned for names that were never registered.
var ErrUnknownComputed = errors.New("viewstate: unknown computed value")

// ComputeFunc derives a value on demand.
type ComputeFunc func() (any, error)

type computedEntry struct {
	fn         ComputeFunc
	expression string
	generation uint64
	value      any
	valid      bool
}

// ComputedCache memoizes derived values by name. Producers of state changes
// call InvalidateComputed for every name their write can affect; there is no
// automatic dependency tracking.
type ComputedCache struct {
	mu      sync.Mutex
	entries map[string]*computedEntry
	group   singleflight.Group

	store     *Store
	cfg       config
	evaluator Evaluator
	logger    *slog.Logger
}

// NewComputedCache builds a cache reading expression inputs from store.
func NewComputedCache(store *Store, opts ...Option) *ComputedCache {
	cfg := applyOptions(opts)
	return &ComputedCache{
		entries: map[string]*computedEntry{},
		store:   store,
		cfg:     cfg,
		logger:  cfg.loggerOrDefault(),
	}
}

// RegisterComputed stores fn under name. Re-registering replaces the function
// and drops any memoized value.
func (c *ComputedCache) RegisterComputed(name string, fn ComputeFunc) {
	if fn == nil {
		c.logger.Warn("computed function is nil", slog.String("name", name))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.install(name, &computedEntry{fn: fn})
}

// RegisterExpression defines name as expression evaluated against a snapshot
// of the store. The expression is compiled eagerly so syntax errors surface
// here.
func (c *ComputedCache) RegisterExpression(name, expression string) error {
	evaluator, err := c.resolveEvaluator()
	if err != nil {
		return err
	}
	engine := evaluatorEngineName(evaluator)
	rule, err := evaluator.Compile(expression)
	if err != nil {
		return withRoots(evaluationFailure(StageCompile, engine, expression, name, err), c.snapshot())
	}
	fn := func() (any, error) {
		ctx := EvalContext{Snapshot: c.snapshot(), Name: name}.withDefaults()
		start := time.Now()
		value, evalErr := rule.Evaluate(ctx)
		evalErr = withRoots(runFailure(engine, expression, name, evalErr), ctx.Snapshot)
		c.cfg.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
			Engine:   engine,
			Expr:     expression,
			Name:     name,
			Duration: time.Since(start),
			Err:      evalErr,
		})
		return value, evalErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.install(name, &computedEntry{fn: fn, expression: expression})
	return nil
}

// GetComputedValue returns the memoized value of name, computing it on first
// access after registration or invalidation. Errors are returned and not
// memoized. Concurrent first accesses share one computation.
func (c *ComputedCache) GetComputedValue(name string) (any, error) {
	c.mu.Lock()
	entry, ok := c.entries[name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownComputed, name)
	}
	if entry.valid {
		value := entry.value
		c.mu.Unlock()
		return value, nil
	}
	generation := entry.generation
	fn := entry.fn
	c.mu.Unlock()

	key := fmt.Sprintf("%s#%d", name, generation)
	value, err, _ := c.group.Do(key, func() (any, error) {
		value, err := c.run(name, fn)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// A value computed before an invalidation is returned but not kept.
		if current, ok := c.entries[name]; ok && current.generation == generation {
			current.value = value
			current.valid = true
		}
		c.mu.Unlock()
		return value, nil
	})
	return value, err
}

// InvalidateComputed drops the memoized values of names. Unknown names are
// ignored.
func (c *ComputedCache) InvalidateComputed(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		entry, ok := c.entries[name]
		if !ok {
			continue
		}
		entry.generation++
		entry.value = nil
		entry.valid = false
	}
}

// InvalidateAll drops every memoized value.
func (c *ComputedCache) InvalidateAll() {
	c.InvalidateComputed(c.Names()...)
}

// Names returns the registered names sorted alphabetically.
func (c *ComputedCache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expression returns the source expression of an expression-backed name.
func (c *ComputedCache) Expression(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	if !ok || entry.expression == "" {
		return "", false
	}
	return entry.expression, true
}

func (c *ComputedCache) install(name string, entry *computedEntry) {
	if previous, ok := c.entries[name]; ok {
		entry.generation = previous.generation + 1
	}
	c.entries[name] = entry
}

func (c *ComputedCache) run(name string, fn ComputeFunc) (value any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("viewstate: computed %q panicked: %v", name, recovered)
		}
	}()
	return fn()
}

func (c *ComputedCache) snapshot() map[string]any {
	if c.store == nil {
		return map[string]any{}
	}
	return c.store.Snapshot()
}

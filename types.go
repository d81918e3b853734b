package viewstate

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-viewstate/pkg/activity"
	"github.com/goliatone/go-viewstate/pkg/kv"
)

// Option configures a Store, ComputedCache, OperationTracker or
// MetricsRecorder. Options that do not apply to a component are ignored by it.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	faults          FaultHandler
	activityHooks   activity.Hooks
	activityChannel string
	storage         kv.Storage
	persistPaths    []string
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	evalLogger      EvaluatorLogger
	sinks           []MetricSink
	now             func() time.Time
}

func applyOptions(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c config) loggerOrDefault() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c config) clock() func() time.Time {
	if c.now != nil {
		return c.now
	}
	return time.Now
}

func (c config) evaluatorLogger() EvaluatorLogger {
	if c.evalLogger != nil {
		return c.evalLogger
	}
	return noopEvaluatorLogger{}
}

// WithLogger sets the structured logger used for misuse, persistence and
// internal fault reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source. Tests use it to make durations and
// timestamps deterministic.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = now
	}
}

// WithPersistence mirrors the listed root paths into storage after every
// write that touches them. Values are stored as JSON under "state_<path>".
func WithPersistence(storage kv.Storage, paths ...string) Option {
	return func(cfg *config) {
		cfg.storage = storage
		cfg.persistPaths = append([]string(nil), paths...)
	}
}

// WithEvaluator configures the evaluator used for expression-backed computed
// values.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}

// WithMetricSink adds a sink that receives every finished timer sample.
func WithMetricSink(sink MetricSink) Option {
	return func(cfg *config) {
		if sink == nil {
			return
		}
		cfg.sinks = append(cfg.sinks, sink)
	}
}

// EvalContext carries the inputs for one expression evaluation.
type EvalContext struct {
	Snapshot map[string]any
	Now      *time.Time
	Args     map[string]any
	Name     string
}

func (ctx EvalContext) withDefaultNow() EvalContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx EvalContext) withDefaultMaps() EvalContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = map[string]any{}
	}
	return ctx
}

func (ctx EvalContext) withDefaults() EvalContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx EvalContext) label() string {
	if ctx.Name != "" {
		return ctx.Name
	}
	return "anonymous"
}

// Evaluator executes expressions against a state snapshot.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx EvalContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

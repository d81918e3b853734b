//go:build js_eval

package viewstate

import (
	"fmt"

	"github.com/dop251/goja"
)

const jsEngineBuilt = true

type jsEvaluator struct {
	jsSettings
}

// NewJSEvaluator constructs an Evaluator backed by goja. Each evaluation runs
// in a fresh runtime seeded with a JSON shaped copy of the snapshot.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	return &jsEvaluator{jsSettings: newJSSettings(opts)}
}

func (e *jsEvaluator) Evaluate(ctx EvalContext, expression string) (any, error) {
	if expression == "" {
		return nil, engineError("js", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx.withDefaults(), expression, program)
}

func (e *jsEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, engineError("js", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &jsCompiledRule{
		evaluator:  e,
		expression: expression,
		program:    program,
	}, nil
}

func (e *jsEvaluator) loadOrCompile(expression string) (*goja.Program, error) {
	key := "js:" + expression
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("computed", wrapExpression(expression), false)
	if err != nil {
		return nil, compileFailure("js", expression, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *jsEvaluator) run(ctx EvalContext, expression string, program *goja.Program) (any, error) {
	snapshot, err := plainSnapshot(ctx.Snapshot)
	if err != nil {
		return nil, runFailure("js", expression, ctx.Name, err)
	}
	vm := goja.New()
	if err := e.inject(vm, ctx, snapshot); err != nil {
		return nil, runFailure("js", expression, ctx.Name, err)
	}
	value, err := vm.RunProgram(program)
	if err != nil {
		return nil, runFailure("js", expression, ctx.Name, err)
	}
	return value.Export(), nil
}

func (e *jsEvaluator) inject(vm *goja.Runtime, ctx EvalContext, snapshot map[string]any) error {
	for key, value := range snapshot {
		if err := vm.Set(key, value); err != nil {
			return err
		}
	}
	if err := vm.Set("now", ctx.timestamp()); err != nil {
		return err
	}
	if err := vm.Set("args", ctx.Args); err != nil {
		return err
	}
	if err := vm.Set("lookup", func(path string) any {
		return lookupSnapshot(snapshot, path)
	}); err != nil {
		return err
	}
	if e.registry == nil {
		return nil
	}
	if err := vm.Set("call", func(name string, arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}); err != nil {
		return err
	}
	for _, name := range e.registry.Names() {
		fn := name
		if err := vm.Set(fn, func(arguments ...any) (any, error) {
			return e.registry.Call(fn, arguments...)
		}); err != nil {
			return err
		}
	}
	return nil
}

func wrapExpression(expression string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", expression)
}

type jsCompiledRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r *jsCompiledRule) Evaluate(ctx EvalContext) (any, error) {
	if r.evaluator == nil {
		return nil, engineError("js", fmt.Errorf("compiled rule missing evaluator"))
	}
	return r.evaluator.run(ctx.withDefaults(), r.expression, r.program)
}

func (e *jsEvaluator) engine() string { return "js" }

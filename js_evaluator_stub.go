//go:build !js_eval

package viewstate

const jsEngineBuilt = false

// NewJSEvaluator returns a placeholder without the js_eval build tag. Every
// call on it fails with a wiring fault wrapping ErrJSEvaluatorUnavailable.
func NewJSEvaluator(...JSEvaluatorOption) Evaluator {
	return jsUnavailable{}
}

type jsUnavailable struct{}

func (jsUnavailable) engine() string { return "js" }

func (jsUnavailable) Evaluate(EvalContext, string) (any, error) {
	return nil, jsUnavailableFault("evaluate")
}

func (jsUnavailable) Compile(string, ...CompileOption) (CompiledRule, error) {
	return nil, jsUnavailableFault("compile")
}

func jsUnavailableFault(op string) error {
	return &Fault{
		Kind:      FaultWiring,
		Component: "evaluator",
		Op:        op,
		Subject:   "js",
		Err:       ErrJSEvaluatorUnavailable,
	}
}

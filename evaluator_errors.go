package viewstate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// EvalStage tells whether an expression failed while compiling or while
// running against a store snapshot.
type EvalStage string

const (
	StageCompile EvalStage = "compile"
	StageRun     EvalStage = "run"
)

// EvaluationError describes a failed computed value or one-off expression.
// Roots lists the top-level store namespaces the expression could see when it
// ran; a misspelled namespace is usually obvious from it.
type EvaluationError struct {
	Engine   string
	Stage    EvalStage
	Computed string
	Expr     string
	Roots    []string
	Err      error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("viewstate: ")
	if e.Computed != "" {
		fmt.Fprintf(&b, "computed %q ", e.Computed)
	} else {
		b.WriteString("expression ")
	}
	fmt.Fprintf(&b, "failed to %s (%s) %q", e.stage(), e.Engine, e.Expr)
	if len(e.Roots) > 0 {
		fmt.Fprintf(&b, " [roots: %s]", strings.Join(e.Roots, ", "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind maps the failure onto the fault taxonomy. A wrapped *Fault keeps its
// kind; otherwise an expression that does not compile is a caller mistake and
// one that fails at run time is internal.
func (e *EvaluationError) Kind() FaultKind {
	if e == nil {
		return FaultInternal
	}
	var fault *Fault
	if errors.As(e.Err, &fault) {
		return fault.Kind
	}
	if e.Stage == StageCompile {
		return FaultMisuse
	}
	return FaultInternal
}

func (e *EvaluationError) stage() EvalStage {
	if e.Stage == "" {
		return StageRun
	}
	return e.Stage
}

// engineError reports a misconfigured engine call that never reached an
// expression.
func engineError(engine string, err error) error {
	return fmt.Errorf("viewstate: %s evaluator: %w", engine, err)
}

func compileFailure(engine, expr string, err error) error {
	return evaluationFailure(StageCompile, engine, expr, "", err)
}

func runFailure(engine, expr, computed string, err error) error {
	return evaluationFailure(StageRun, engine, expr, computed, err)
}

// evaluationFailure wraps err, or fills the blanks of an EvaluationError
// already in its chain so the innermost stage wins.
func evaluationFailure(stage EvalStage, engine, expr, computed string, err error) error {
	if err == nil {
		return nil
	}
	var existing *EvaluationError
	if errors.As(err, &existing) {
		if existing.Engine == "" {
			existing.Engine = engine
		}
		if existing.Stage == "" {
			existing.Stage = stage
		}
		if existing.Expr == "" {
			existing.Expr = expr
		}
		if existing.Computed == "" {
			existing.Computed = computed
		}
		return existing
	}
	return &EvaluationError{
		Engine:   engine,
		Stage:    stage,
		Computed: computed,
		Expr:     expr,
		Err:      err,
	}
}

// withRoots records the snapshot namespaces on an EvaluationError in err.
func withRoots(err error, snapshot map[string]any) error {
	var evalErr *EvaluationError
	if err == nil || !errors.As(err, &evalErr) || evalErr.Roots != nil {
		return err
	}
	roots := make([]string, 0, len(snapshot))
	for root := range snapshot {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	evalErr.Roots = roots
	return err
}

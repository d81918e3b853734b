package viewstate

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestEvaluationFailureCarriesComputedContext(t *testing.T) {
	base := errors.New("boom")
	err := runFailure("expr", "file.loaded && missing", "ready", base)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", err)
	}
	if evalErr.Engine != "expr" || evalErr.Stage != StageRun || evalErr.Computed != "ready" {
		t.Fatalf("unexpected metadata %+v", evalErr)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected the base error to unwrap")
	}
	if evalErr.Kind() != FaultInternal {
		t.Fatalf("expected run failures to be internal, got %s", evalErr.Kind())
	}
}

func TestEvaluationFailureKeepsInnermostStage(t *testing.T) {
	inner := compileFailure("cel", "charts.", errors.New("syntax"))
	err := runFailure("custom", "ignored", "recordCount", inner)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", err)
	}
	if evalErr.Stage != StageCompile || evalErr.Engine != "cel" || evalErr.Expr != "charts." {
		t.Fatalf("expected inner metadata to win, got %+v", evalErr)
	}
	if evalErr.Computed != "recordCount" {
		t.Fatalf("expected computed name to be filled, got %q", evalErr.Computed)
	}
	if evalErr.Kind() != FaultMisuse {
		t.Fatalf("expected compile failures to be misuse, got %s", evalErr.Kind())
	}
}

func TestWithRootsListsSnapshotNamespaces(t *testing.T) {
	err := withRoots(runFailure("expr", "chart.count", "", errors.New("nil")), map[string]any{
		"file":   map[string]any{},
		"charts": map[string]any{},
	})
	var evalErr *EvaluationError
	errors.As(err, &evalErr)
	if !slices.Equal(evalErr.Roots, []string{"charts", "file"}) {
		t.Fatalf("expected sorted roots, got %v", evalErr.Roots)
	}
	if msg := err.Error(); !strings.Contains(msg, "expression failed to run (expr)") || !strings.Contains(msg, "[roots: charts, file]") {
		t.Fatalf("unexpected message %q", msg)
	}
	if plain := errors.New("x"); withRoots(plain, nil) != plain {
		t.Fatalf("expected non evaluation errors to pass through")
	}
}

func TestComputedCompileErrorNamesRoots(t *testing.T) {
	store := NewStore()
	store.Set("charts.count", 1)
	cache := NewComputedCache(store)

	err := cache.RegisterExpression("broken", "charts.count +")
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if evalErr.Computed != "broken" || evalErr.Stage != StageCompile {
		t.Fatalf("unexpected metadata %+v", evalErr)
	}
	if !slices.Equal(evalErr.Roots, []string{"charts"}) {
		t.Fatalf("expected store roots, got %v", evalErr.Roots)
	}
}

func TestGuardClassifiesEvaluationErrors(t *testing.T) {
	var faults []Fault
	reporter := FaultReporter{Component: "computed", Handler: func(f Fault) { faults = append(faults, f) }}

	reporter.Guard("refresh", "broken", func() error {
		return compileFailure("expr", "1 +", errors.New("syntax"))
	})
	reporter.Guard("refresh", "js", func() error {
		return compileFailure("js", "1", jsWiringFault())
	})

	if len(faults) != 2 {
		t.Fatalf("expected two faults, got %+v", faults)
	}
	if faults[0].Kind != FaultMisuse {
		t.Fatalf("expected compile failure as misuse, got %s", faults[0].Kind)
	}
	if faults[1].Kind != FaultWiring {
		t.Fatalf("expected wrapped wiring fault to keep its kind, got %s", faults[1].Kind)
	}
}

func TestNewEngine(t *testing.T) {
	cases := []struct {
		name   string
		engine string
		expect string
	}{
		{name: "default", engine: "", expect: "expr"},
		{name: "expr", engine: "expr", expect: "expr"},
		{name: "cel", engine: "cel", expect: "cel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evaluator, err := NewEngine(tc.engine, NewProgramCache(), ViewerFunctions())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := evaluatorEngineName(evaluator); got != tc.expect {
				t.Fatalf("expected %s, got %s", tc.expect, got)
			}
		})
	}

	if _, err := NewEngine("lua", nil, nil); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
	_, err := NewEngine("js", nil, nil)
	if JSEvaluatorAvailable() != (err == nil) {
		t.Fatalf("expected js availability %v to match error %v", JSEvaluatorAvailable(), err)
	}
	if err != nil && !errors.Is(err, ErrJSEvaluatorUnavailable) {
		t.Fatalf("expected ErrJSEvaluatorUnavailable, got %v", err)
	}
}

func jsWiringFault() error {
	return &Fault{Kind: FaultWiring, Op: "compile", Subject: "js", Err: ErrJSEvaluatorUnavailable}
}

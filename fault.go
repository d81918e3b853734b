package viewstate

import (
	"errors"
	"fmt"
	"log/slog"
)

// FaultKind classifies a swallowed failure.
type FaultKind string

const (
	// FaultMisuse covers unknown operation ids, malformed paths and similar
	// caller mistakes.
	FaultMisuse FaultKind = "misuse"
	// FaultPersistence covers side-channel read/write and codec failures.
	FaultPersistence FaultKind = "persistence"
	// FaultWiring covers integration hooks that could not be connected.
	FaultWiring FaultKind = "wiring"
	// FaultInternal covers panics and hook errors raised while servicing a
	// call.
	FaultInternal FaultKind = "internal"
)

// Fault is the typed result of a failure that the core refuses to propagate.
// Faults are logged and handed to the configured FaultHandler.
type Fault struct {
	Kind      FaultKind
	Component string
	Op        string
	Subject   string
	Err       error
}

func (f *Fault) Error() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("viewstate: %s %s.%s %q: %v", f.Kind, f.Component, f.Op, f.Subject, f.Err)
}

func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// NewFault builds a fault of the given kind.
func NewFault(kind FaultKind, op, subject string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Subject: subject, Err: err}
}

// FaultHandler observes swallowed faults.
type FaultHandler func(Fault)

// WithFaultHandler registers a handler that receives every swallowed fault.
func WithFaultHandler(handler FaultHandler) Option {
	return func(cfg *config) {
		cfg.faults = handler
	}
}

// FaultReporter logs faults at the component boundary and forwards them to an
// optional handler. The zero value discards everything.
type FaultReporter struct {
	Logger    *slog.Logger
	Handler   FaultHandler
	Component string
}

// Report records one fault. It never panics.
func (r FaultReporter) Report(kind FaultKind, op, subject string, err error) {
	if err == nil {
		return
	}
	r.emit(Fault{Kind: kind, Component: r.Component, Op: op, Subject: subject, Err: err})
}

// Guard runs fn and converts a returned error or a panic into a reported
// fault. Errors that already are *Fault keep their kind, and evaluation
// errors are classified by stage.
func (r FaultReporter) Guard(op, subject string, fn func() error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.Report(FaultInternal, op, subject, fmt.Errorf("panic: %v", recovered))
		}
	}()
	err := fn()
	if err == nil {
		return
	}
	var fault *Fault
	if errors.As(err, &fault) {
		copied := *fault
		if copied.Component == "" {
			copied.Component = r.Component
		}
		if copied.Op == "" {
			copied.Op = op
		}
		if copied.Subject == "" {
			copied.Subject = subject
		}
		r.emit(copied)
		return
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		r.Report(evalErr.Kind(), op, subject, err)
		return
	}
	r.Report(FaultInternal, op, subject, err)
}

func (r FaultReporter) emit(fault Fault) {
	if r.Logger != nil {
		r.Logger.Warn("viewstate fault",
			slog.String("kind", string(fault.Kind)),
			slog.String("component", fault.Component),
			slog.String("op", fault.Op),
			slog.String("subject", fault.Subject),
			slog.Any("error", fault.Err),
		)
	}
	if r.Handler != nil {
		func() {
			defer func() { _ = recover() }()
			r.Handler(fault)
		}()
	}
}

func (c config) reporter(component string) FaultReporter {
	return FaultReporter{
		Logger:    c.loggerOrDefault(),
		Handler:   c.faults,
		Component: component,
	}
}

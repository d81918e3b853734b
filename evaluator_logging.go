package viewstate

import (
	"log/slog"
	"time"
)

// EvaluatorLogEvent describes one evaluation attempt.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Name     string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// SlogEvaluatorLogger writes evaluation events at debug level, or warn when
// the evaluation failed.
func SlogEvaluatorLogger(logger *slog.Logger) EvaluatorLogger {
	if logger == nil {
		return noopEvaluatorLogger{}
	}
	return EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		attrs := []any{
			slog.String("engine", event.Engine),
			slog.String("expr", event.Expr),
			slog.String("name", event.Name),
			slog.Duration("duration", event.Duration),
		}
		if event.Err != nil {
			logger.Warn("computed evaluation failed", append(attrs, slog.Any("error", event.Err))...)
			return
		}
		logger.Debug("computed evaluated", attrs...)
	})
}

// WithEvaluatorLogger attaches an evaluator logger.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.evalLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evalLogger = logger
	}
}

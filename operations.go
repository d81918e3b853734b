package viewstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-viewstate/pkg/activity"
	"github.com/google/uuid"
)

// OperationsPath is the store namespace that holds tracked operations.
const OperationsPath = "operations"

const trackerSource = "operation-tracker"

// OperationStatus is the lifecycle state of a tracked operation.
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusRunning   OperationStatus = "running"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
)

// Terminal reports whether the status ends the lifecycle.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s OperationStatus) valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Operation is the stored record of one long running task. Error carries the
// failure message only, keeping the record serializable.
type Operation struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	Status     OperationStatus `json:"status"`
	Progress   float64         `json:"progress"`
	Message    string          `json:"message,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

func (o Operation) clone() Operation {
	out := o
	out.Metadata = cloneMap(o.Metadata)
	if o.FinishedAt != nil {
		finished := *o.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

// StartOptions carries the initial message and metadata of an operation.
type StartOptions struct {
	Message  string
	Metadata map[string]any
}

// Update describes a partial change to a running operation. Nil fields are
// left untouched; Metadata is shallow merged.
type Update struct {
	Progress *float64
	Status   OperationStatus
	Message  *string
	Metadata map[string]any
}

// Percent is a helper for building Update.Progress.
func Percent(value float64) *float64 {
	return &value
}

// Text is a helper for building Update.Message.
func Text(value string) *string {
	return &value
}

// ClampProgress coerces value into [0,100]. Non-finite input becomes 0.
func ClampProgress(value float64) float64 {
	switch {
	case math.IsNaN(value), math.IsInf(value, 0):
		return 0
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

var (
	errUnknownOperation = errors.New("viewstate: unknown operation")
	errPendingUpdate    = errors.New("viewstate: operations cannot return to pending")
)

// OperationTracker records operation lifecycles inside a Store under
// "operations.<id>". None of its methods fail or panic: faults are logged and
// reported to the configured FaultHandler.
type OperationTracker struct {
	store   *Store
	logger  *slog.Logger
	faults  FaultReporter
	emitter *activity.Emitter
	hooks   activity.Hooks
	now     func() time.Time
	newRun  func() string
}

// NewOperationTracker builds a tracker that writes through store.
func NewOperationTracker(store *Store, opts ...Option) *OperationTracker {
	cfg := applyOptions(opts)
	return &OperationTracker{
		store:   store,
		logger:  cfg.loggerOrDefault(),
		faults:  cfg.reporter("operations"),
		emitter: cfg.activityEmitter(),
		hooks:   cfg.activityHooks,
		now:     cfg.clock(),
		newRun:  uuid.NewString,
	}
}

// StartOperation begins tracking id. Starting an id that is already running
// is a no-op; a finished id starts a fresh run.
func (t *OperationTracker) StartOperation(id string, opts StartOptions) {
	t.guard("start", id, func(path string) error {
		var started Operation
		t.store.Compute(path, func(current any, exists bool) (any, bool) {
			if existing, ok := current.(Operation); exists && ok && !existing.Status.Terminal() {
				return nil, false
			}
			now := t.now()
			started = Operation{
				ID:        id,
				RunID:     t.newRun(),
				Status:    StatusRunning,
				Message:   opts.Message,
				Metadata:  cloneMap(opts.Metadata),
				StartedAt: now,
				UpdatedAt: now,
			}
			return started, true
		}, Source(trackerSource))

		if started.ID == "" {
			t.logger.Debug("operation already running", slog.String("operation", id))
			return nil
		}
		t.logger.Debug("operation started", slog.String("operation", id), slog.String("run", started.RunID))
		return t.emit(activity.BuildOperationStartedEvent(eventInput(started)))
	})
}

// UpdateOperation applies update to a running operation. Unknown ids and a
// request to go back to pending are reported as misuse; finished operations
// are never reopened.
func (t *OperationTracker) UpdateOperation(id string, update Update) {
	switch update.Status {
	case StatusCompleted:
		t.CompleteOperation(id, update.Metadata)
		return
	case StatusFailed:
		message := "operation failed"
		if update.Message != nil && strings.TrimSpace(*update.Message) != "" {
			message = *update.Message
		}
		t.FailOperation(id, errors.New(message))
		return
	}

	t.guard("update", id, func(path string) error {
		var (
			updated  Operation
			found    bool
			terminal bool
		)
		t.store.Compute(path, func(current any, exists bool) (any, bool) {
			op, ok := current.(Operation)
			if !exists || !ok {
				return nil, false
			}
			found = true
			if op.Status.Terminal() {
				terminal = true
				return nil, false
			}
			if update.Progress != nil {
				op.Progress = ClampProgress(*update.Progress)
			}
			if update.Status == StatusRunning {
				op.Status = update.Status
			}
			if update.Message != nil {
				op.Message = *update.Message
			}
			op.Metadata = mergeMetadata(op.Metadata, update.Metadata)
			op.UpdatedAt = t.now()
			updated = op
			return op, true
		}, Source(trackerSource))

		switch {
		case !found:
			return NewFault(FaultMisuse, "update", id, errUnknownOperation)
		case terminal:
			t.logger.Debug("update ignored for finished operation", slog.String("operation", id))
			return nil
		}
		switch {
		case update.Status == StatusPending:
			t.faults.Report(FaultMisuse, "update", id, errPendingUpdate)
		case update.Status != "" && !update.Status.valid():
			t.faults.Report(FaultMisuse, "update", id, fmt.Errorf("viewstate: invalid status %q", update.Status))
		}
		return t.emit(activity.BuildOperationProgressEvent(eventInput(updated)))
	})
}

// CompleteOperation marks id completed with progress 100. Completing an
// already completed operation is a no-op.
func (t *OperationTracker) CompleteOperation(id string, metadata map[string]any) {
	t.guard("complete", id, func(path string) error {
		var (
			completed Operation
			found     bool
		)
		t.store.Compute(path, func(current any, exists bool) (any, bool) {
			op, ok := current.(Operation)
			if !exists || !ok {
				return nil, false
			}
			found = true
			if op.Status.Terminal() {
				return nil, false
			}
			now := t.now()
			op.Status = StatusCompleted
			op.Progress = 100
			op.Metadata = mergeMetadata(op.Metadata, metadata)
			op.UpdatedAt = now
			op.FinishedAt = &now
			completed = op
			return op, true
		}, Source(trackerSource))

		if !found {
			return NewFault(FaultMisuse, "complete", id, errUnknownOperation)
		}
		if completed.ID == "" {
			return nil
		}
		t.logger.Debug("operation completed", slog.String("operation", id))
		return t.emit(activity.BuildOperationCompletedEvent(eventInput(completed)))
	})
}

// FailOperation marks id failed and stores err's message. It never re-raises.
func (t *OperationTracker) FailOperation(id string, err error) {
	message := "unknown error"
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	t.guard("fail", id, func(path string) error {
		var (
			failed Operation
			found  bool
		)
		t.store.Compute(path, func(current any, exists bool) (any, bool) {
			op, ok := current.(Operation)
			if !exists || !ok {
				return nil, false
			}
			found = true
			if op.Status.Terminal() {
				return nil, false
			}
			now := t.now()
			op.Status = StatusFailed
			op.Error = message
			op.UpdatedAt = now
			op.FinishedAt = &now
			failed = op
			return op, true
		}, Source(trackerSource))

		if !found {
			return NewFault(FaultMisuse, "fail", id, errUnknownOperation)
		}
		if failed.ID == "" {
			return nil
		}
		t.logger.Debug("operation failed", slog.String("operation", id), slog.String("error", message))
		return t.emit(activity.BuildOperationFailedEvent(eventInput(failed)))
	})
}

// Operation returns the stored record for id.
func (t *OperationTracker) Operation(id string) (Operation, bool) {
	if t == nil || t.store == nil {
		return Operation{}, false
	}
	value, ok := t.store.Get(OperationsPath + "." + segmentKey(id))
	if !ok {
		return Operation{}, false
	}
	op, ok := value.(Operation)
	return op, ok
}

// Operations returns every tracked operation sorted by id.
func (t *OperationTracker) Operations() []Operation {
	if t == nil || t.store == nil {
		return nil
	}
	value, ok := t.store.Get(OperationsPath)
	if !ok {
		return nil
	}
	node, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	out := make([]Operation, 0, len(node))
	for _, item := range node {
		if op, ok := item.(Operation); ok {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns the operations that have not reached a terminal status.
// Abandoned operations stay here until overwritten or removed.
func (t *OperationTracker) Active() []Operation {
	all := t.Operations()
	out := all[:0]
	for _, op := range all {
		if !op.Status.Terminal() {
			out = append(out, op)
		}
	}
	return out
}

// Remove deletes the record for id.
func (t *OperationTracker) Remove(id string) {
	t.guard("remove", id, func(path string) error {
		t.store.Delete(path, Source(trackerSource))
		return nil
	})
}

func (t *OperationTracker) guard(op, id string, fn func(path string) error) {
	if t == nil {
		return
	}
	t.faults.Guard(op, id, func() error {
		if t.store == nil {
			return NewFault(FaultInternal, op, id, errors.New("viewstate: tracker has no store"))
		}
		key := segmentKey(id)
		if key == "" {
			return NewFault(FaultMisuse, op, id, fmt.Errorf("%w: empty operation id", ErrInvalidPath))
		}
		return fn(OperationsPath + "." + key)
	})
}

func (t *OperationTracker) emit(event activity.Event) error {
	if !t.emitter.Enabled() {
		return nil
	}
	return t.emitter.Emit(context.Background(), event)
}

func eventInput(op Operation) activity.OperationEventInput {
	return activity.OperationEventInput{
		OperationID: op.ID,
		RunID:       op.RunID,
		Status:      string(op.Status),
		Progress:    op.Progress,
		Message:     op.Message,
		Error:       op.Error,
		Metadata:    op.Metadata,
		OccurredAt:  op.UpdatedAt,
	}
}

func mergeMetadata(base, patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(patch))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range patch {
		out[key] = cloneValue(value)
	}
	return out
}

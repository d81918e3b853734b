package bridge

import (
	"errors"
	"log/slog"
	"reflect"
	"time"

	viewstate "github.com/goliatone/go-viewstate"
	"github.com/goliatone/go-viewstate/pkg/settings"
)

// Messages is the decoded message table of an activity file, keyed by
// message kind.
type Messages map[string]any

// LoadedFile describes a successfully decoded file.
type LoadedFile struct {
	Name     string
	Path     string
	Messages Messages
}

// Adapter exposes the calls a decoder may make. Every method swallows its
// failures: they are logged and reported as faults.
type Adapter struct {
	store    *viewstate.Store
	tracker  *viewstate.OperationTracker
	metrics  *viewstate.MetricsRecorder
	settings *settings.Resolver
	logger   *slog.Logger
	faults   viewstate.FaultReporter
}

// Store returns the state store behind the adapter.
func (a *Adapter) Store() *viewstate.Store { return a.store }

// Tracker returns the operation tracker behind the adapter.
func (a *Adapter) Tracker() *viewstate.OperationTracker { return a.tracker }

// Settings returns the settings resolver behind the adapter.
func (a *Adapter) Settings() *settings.Resolver { return a.settings }

// BeginFileLoad starts a new loading run for name together with its timer.
// It is the only call that reopens a load once it has completed or failed.
// A load that is still running is left as is.
func (a *Adapter) BeginFileLoad(name string) {
	if a.loadingActive() {
		return
	}
	a.startLoading()
	a.store.UpdateState(FilePath, map[string]any{
		"isLoading": true,
		"progress":  0.0,
		"name":      name,
		"error":     nil,
	}, viewstate.Source("bridge"))
}

// UpdateLoadingProgress records progress of the current load. The first
// report starts the loading operation; reports arriving after the load
// finished are dropped.
func (a *Adapter) UpdateLoadingProgress(progress float64) {
	if a.loadingFinished() {
		a.logger.Debug("late loading progress dropped", slog.Float64("progress", progress))
		return
	}
	a.ensureLoading()
	clamped := viewstate.ClampProgress(progress)
	a.tracker.UpdateOperation(LoadingOperation, viewstate.Update{Progress: viewstate.Percent(clamped)})
	a.store.UpdateState(FilePath, map[string]any{
		"isLoading": true,
		"progress":  clamped,
	}, viewstate.Source("bridge"))
}

// HandleFileLoadingError fails the loading operation and stops its timer.
func (a *Adapter) HandleFileLoadingError(err error) {
	if err == nil {
		err = errors.New("file loading failed")
	}
	a.ensureLoading()
	a.tracker.FailOperation(LoadingOperation, err)
	a.metrics.EndTimer(LoadTimer)
	a.store.UpdateState(FilePath, map[string]any{
		"isLoading": false,
		"error":     err.Error(),
	}, viewstate.Source("bridge"))
	a.logger.Warn("file loading failed", slog.Any("error", err))
}

// HandleFileLoaded completes the loading operation and publishes the file
// summary under "file".
func (a *Adapter) HandleFileLoaded(file LoadedFile) {
	a.ensureLoading()
	count := a.GetRecordCount(file.Messages)
	a.tracker.CompleteOperation(LoadingOperation, map[string]any{
		"file":    file.Name,
		"records": count,
	})
	elapsed, _ := a.metrics.EndTimer(LoadTimer)
	a.store.UpdateState(FilePath, map[string]any{
		"isLoading":   false,
		"progress":    100.0,
		"name":        file.Name,
		"path":        file.Path,
		"recordCount": count,
		"error":       nil,
	}, viewstate.Source("bridge"))
	a.logger.Debug("file loaded",
		slog.String("file", file.Name),
		slog.Int("records", count),
		slog.Duration("elapsed", elapsed),
	)
}

// GetRecordCount counts the record messages, preferring "recordMesgs" and
// falling back to "records". Anything that is not a list counts as zero.
func (a *Adapter) GetRecordCount(messages Messages) int {
	for _, key := range []string{"recordMesgs", "records"} {
		value, ok := messages[key]
		if !ok || value == nil {
			continue
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return rv.Len()
		}
	}
	return 0
}

// GetCategory returns the scalar settings of a category. Unknown categories
// yield an empty map.
func (a *Adapter) GetCategory(name string) map[string]any {
	values, err := a.settings.GetCategory(name)
	if err != nil {
		a.faults.Report(viewstate.FaultMisuse, "get-category", name, err)
		return map[string]any{}
	}
	return values
}

// UpdateCategory writes scalar settings of a category.
func (a *Adapter) UpdateCategory(name string, partial map[string]any) {
	if err := a.settings.UpdateCategory(name, partial); err != nil {
		kind := viewstate.FaultPersistence
		if errors.Is(err, settings.ErrUnknownCategory) || errors.Is(err, settings.ErrInvalidCategory) {
			kind = viewstate.FaultMisuse
		}
		a.faults.Report(kind, "update-category", name, err)
	}
}

// StartTimer starts (or restarts) the named timer.
func (a *Adapter) StartTimer(id string) {
	a.metrics.StartTimer(id)
}

// EndTimer stops the named timer and returns its duration.
func (a *Adapter) EndTimer(id string) (time.Duration, bool) {
	return a.metrics.EndTimer(id)
}

// GetOperationTime returns the elapsed or final duration of the named timer.
func (a *Adapter) GetOperationTime(id string) (time.Duration, bool) {
	return a.metrics.GetOperationTime(id)
}

// ensureLoading starts the first loading run when none was ever recorded.
func (a *Adapter) ensureLoading() {
	if _, ok := a.tracker.Operation(LoadingOperation); ok {
		return
	}
	a.startLoading()
}

func (a *Adapter) startLoading() {
	a.tracker.StartOperation(LoadingOperation, viewstate.StartOptions{Message: "loading file"})
	a.metrics.StartTimer(LoadTimer)
}

func (a *Adapter) loadingActive() bool {
	op, ok := a.tracker.Operation(LoadingOperation)
	return ok && !op.Status.Terminal()
}

func (a *Adapter) loadingFinished() bool {
	op, ok := a.tracker.Operation(LoadingOperation)
	return ok && op.Status.Terminal()
}

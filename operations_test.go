package viewstate

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/goliatone/go-viewstate/pkg/activity"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestTracker(t *testing.T, opts ...Option) (*Store, *OperationTracker, *[]Fault) {
	t.Helper()
	faults := &[]Fault{}
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{
		WithClock(clock.Now),
		WithFaultHandler(func(f Fault) { *faults = append(*faults, f) }),
	}, opts...)
	store := NewStore(opts...)
	return store, NewOperationTracker(store, opts...), faults
}

func TestStartOperationIsIdempotent(t *testing.T) {
	_, tracker, _ := newTestTracker(t)

	tracker.StartOperation("fileLoading", StartOptions{Message: "first"})
	first, _ := tracker.Operation("fileLoading")
	tracker.UpdateOperation("fileLoading", Update{Progress: Percent(30)})
	tracker.StartOperation("fileLoading", StartOptions{Message: "second"})

	op, ok := tracker.Operation("fileLoading")
	if !ok {
		t.Fatalf("expected operation to exist")
	}
	if op.RunID != first.RunID || op.Message != "first" || op.Progress != 30 {
		t.Fatalf("expected second start to be a no-op, got %+v", op)
	}
	if op.Status != StatusRunning {
		t.Fatalf("expected running, got %s", op.Status)
	}
}

func TestStartOperationAfterTerminalStartsFreshRun(t *testing.T) {
	_, tracker, _ := newTestTracker(t)
	tracker.StartOperation("fileLoading", StartOptions{})
	first, _ := tracker.Operation("fileLoading")
	tracker.CompleteOperation("fileLoading", nil)

	tracker.StartOperation("fileLoading", StartOptions{})
	op, _ := tracker.Operation("fileLoading")
	if op.RunID == first.RunID || op.Status != StatusRunning || op.Progress != 0 || op.FinishedAt != nil {
		t.Fatalf("expected a fresh run, got %+v", op)
	}
}

func TestUpdateOperationClampsProgress(t *testing.T) {
	cases := []struct {
		name   string
		input  float64
		expect float64
	}{
		{name: "over", input: 150, expect: 100},
		{name: "under", input: -5, expect: 0},
		{name: "inside", input: 42.5, expect: 42.5},
		{name: "nan", input: math.NaN(), expect: 0},
		{name: "inf", input: math.Inf(1), expect: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, tracker, _ := newTestTracker(t)
			tracker.StartOperation("op", StartOptions{})
			tracker.UpdateOperation("op", Update{Progress: Percent(tc.input)})
			op, _ := tracker.Operation("op")
			if op.Progress != tc.expect {
				t.Fatalf("expected %v, got %v", tc.expect, op.Progress)
			}
		})
	}
}

func TestUpdateOperationMergesMetadataAndMessage(t *testing.T) {
	_, tracker, _ := newTestTracker(t)
	tracker.StartOperation("op", StartOptions{Metadata: map[string]any{"file": "a.fit"}})
	tracker.UpdateOperation("op", Update{Message: Text("parsing"), Metadata: map[string]any{"records": 10}})

	op, _ := tracker.Operation("op")
	if op.Message != "parsing" || op.Metadata["file"] != "a.fit" || op.Metadata["records"] != 10 {
		t.Fatalf("expected merged update, got %+v", op)
	}
	if !op.UpdatedAt.After(op.StartedAt) {
		t.Fatalf("expected UpdatedAt to advance, got %v <= %v", op.UpdatedAt, op.StartedAt)
	}
}

func TestUpdateUnknownOperationIsMisuse(t *testing.T) {
	store, tracker, faults := newTestTracker(t)

	tracker.UpdateOperation("missing", Update{Progress: Percent(10)})
	tracker.CompleteOperation("missing", nil)
	tracker.FailOperation("missing", errors.New("x"))

	if len(*faults) != 3 {
		t.Fatalf("expected three faults, got %+v", *faults)
	}
	for _, fault := range *faults {
		if fault.Kind != FaultMisuse || fault.Subject != "missing" || !errors.Is(fault.Err, errUnknownOperation) {
			t.Fatalf("expected unknown operation misuse, got %+v", fault)
		}
	}
	if _, ok := store.Get("operations.missing"); ok {
		t.Fatalf("expected no entry for unknown operation")
	}
}

func TestTerminalOperationsAreNotReopened(t *testing.T) {
	_, tracker, _ := newTestTracker(t)
	tracker.StartOperation("op", StartOptions{})
	tracker.FailOperation("op", errors.New("decoder crashed"))

	tracker.UpdateOperation("op", Update{Progress: Percent(50), Status: StatusRunning})
	tracker.CompleteOperation("op", nil)

	op, _ := tracker.Operation("op")
	if op.Status != StatusFailed || op.Error != "decoder crashed" || op.Progress != 0 {
		t.Fatalf("expected failed operation untouched, got %+v", op)
	}
	if op.FinishedAt == nil {
		t.Fatalf("expected FinishedAt to be set")
	}
}

func TestCompleteOperation(t *testing.T) {
	_, tracker, _ := newTestTracker(t)
	tracker.StartOperation("op", StartOptions{})
	tracker.UpdateOperation("op", Update{Progress: Percent(20)})
	tracker.CompleteOperation("op", map[string]any{"records": 3})
	finished, _ := tracker.Operation("op")

	tracker.CompleteOperation("op", map[string]any{"records": 99})
	op, _ := tracker.Operation("op")

	if op.Status != StatusCompleted || op.Progress != 100 || op.Metadata["records"] != 3 {
		t.Fatalf("expected completed at 100 with first metadata, got %+v", op)
	}
	if !op.UpdatedAt.Equal(finished.UpdatedAt) {
		t.Fatalf("expected second completion to be a no-op")
	}
}

func TestUpdateWithTerminalStatusDelegates(t *testing.T) {
	_, tracker, _ := newTestTracker(t)
	tracker.StartOperation("a", StartOptions{})
	tracker.StartOperation("b", StartOptions{})

	tracker.UpdateOperation("a", Update{Status: StatusCompleted})
	tracker.UpdateOperation("b", Update{Status: StatusFailed, Message: Text("bad header")})

	a, _ := tracker.Operation("a")
	b, _ := tracker.Operation("b")
	if a.Status != StatusCompleted || a.Progress != 100 {
		t.Fatalf("expected a completed, got %+v", a)
	}
	if b.Status != StatusFailed || b.Error != "bad header" {
		t.Fatalf("expected b failed with message, got %+v", b)
	}
}

func TestFailOperationWithNilError(t *testing.T) {
	_, tracker, _ := newTestTracker(t)
	tracker.StartOperation("op", StartOptions{})
	tracker.FailOperation("op", nil)
	op, _ := tracker.Operation("op")
	if op.Status != StatusFailed || op.Error != "unknown error" {
		t.Fatalf("expected failure with placeholder message, got %+v", op)
	}
}

func TestOperationsListing(t *testing.T) {
	_, tracker, _ := newTestTracker(t)
	tracker.StartOperation("b", StartOptions{})
	tracker.StartOperation("a", StartOptions{})
	tracker.StartOperation("c", StartOptions{})
	tracker.CompleteOperation("c", nil)

	ids := func(ops []Operation) []string {
		out := make([]string, 0, len(ops))
		for _, op := range ops {
			out = append(out, op.ID)
		}
		return out
	}
	if got := ids(tracker.Operations()); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected sorted ids, got %v", got)
	}
	if got := ids(tracker.Active()); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("expected active a and b, got %v", got)
	}

	tracker.Remove("a")
	if _, ok := tracker.Operation("a"); ok {
		t.Fatalf("expected a removed")
	}
}

func TestOperationSubscribersSeeWrites(t *testing.T) {
	store, tracker, _ := newTestTracker(t)
	var seen []OperationStatus
	store.Subscribe("operations.fileLoading", func(value any) {
		if op, ok := value.(Operation); ok {
			seen = append(seen, op.Status)
		}
	})

	tracker.StartOperation("fileLoading", StartOptions{})
	tracker.UpdateOperation("fileLoading", Update{Progress: Percent(50)})
	tracker.CompleteOperation("fileLoading", nil)

	expect := []OperationStatus{StatusRunning, StatusRunning, StatusCompleted}
	if !slices.Equal(seen, expect) {
		t.Fatalf("expected %v, got %v", expect, seen)
	}
	if tag, _ := store.LastWriter("operations.fileLoading"); tag != trackerSource {
		t.Fatalf("expected tracker provenance, got %q", tag)
	}
}

func TestTrackerEmitsLifecycleEvents(t *testing.T) {
	capture := &activity.CaptureHook{}
	_, tracker, _ := newTestTracker(t, WithActivityHooks(activity.Hooks{capture}))

	tracker.StartOperation("op", StartOptions{})
	tracker.UpdateOperation("op", Update{Progress: Percent(10)})
	tracker.FailOperation("op", errors.New("boom"))

	expect := []string{
		activity.VerbOperationStarted,
		activity.VerbOperationProgress,
		activity.VerbOperationFailed,
	}
	if got := capture.Verbs(); !slices.Equal(got, expect) {
		t.Fatalf("expected %v, got %v", expect, got)
	}
	if capture.Events[2].Metadata["error"] != "boom" {
		t.Fatalf("expected error metadata, got %v", capture.Events[2].Metadata)
	}
}

func TestTrackerHookErrorsAreFaults(t *testing.T) {
	errHook := errors.New("sink down")
	capture := &activity.CaptureHook{Err: errHook}
	_, tracker, faults := newTestTracker(t, WithActivityHooks(activity.Hooks{capture}))

	tracker.StartOperation("op", StartOptions{})

	if len(*faults) != 1 || !errors.Is((*faults)[0].Err, errHook) {
		t.Fatalf("expected hook error reported as fault, got %+v", *faults)
	}
	if op, ok := tracker.Operation("op"); !ok || op.Status != StatusRunning {
		t.Fatalf("expected operation started despite hook error, got %+v", op)
	}
}

func TestTrackerInvalidID(t *testing.T) {
	_, tracker, faults := newTestTracker(t)
	tracker.StartOperation("  ", StartOptions{})
	if len(*faults) != 1 || (*faults)[0].Kind != FaultMisuse {
		t.Fatalf("expected misuse for blank id, got %+v", *faults)
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *OperationTracker
	tracker.StartOperation("op", StartOptions{})
	tracker.UpdateOperation("op", Update{})
	tracker.CompleteOperation("op", nil)
	tracker.FailOperation("op", nil)
	if _, ok := tracker.Operation("op"); ok {
		t.Fatalf("expected nil tracker to report nothing")
	}
}

func TestUpdateToPendingIsMisuse(t *testing.T) {
	_, tracker, faults := newTestTracker(t)
	tracker.StartOperation("op", StartOptions{})

	tracker.UpdateOperation("op", Update{Status: StatusPending, Progress: Percent(40)})

	op, _ := tracker.Operation("op")
	if op.Status != StatusRunning || op.Progress != 40 {
		t.Fatalf("expected running with progress applied, got %+v", op)
	}
	if len(*faults) != 1 || (*faults)[0].Kind != FaultMisuse || !errors.Is((*faults)[0].Err, errPendingUpdate) {
		t.Fatalf("expected one pending misuse fault, got %+v", *faults)
	}
}

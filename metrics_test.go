package viewstate

import (
	"context"
	"errors"
	"testing"
	"time"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestEndTimerUnknownID(t *testing.T) {
	recorder := NewMetricsRecorder(NewStore())
	if elapsed, ok := recorder.EndTimer("never"); ok || elapsed != 0 {
		t.Fatalf("expected unknown timer to report false, got %v %v", elapsed, ok)
	}
	if _, ok := recorder.GetOperationTime("never"); ok {
		t.Fatalf("expected no duration for unknown timer")
	}
}

func TestTimerLifecycle(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewStore(WithClock(clock.Now))
	recorder := NewMetricsRecorder(store, WithClock(clock.Now))

	recorder.StartTimer("fileLoad", WithTags(map[string]string{"format": "fit"}))
	clock.Advance(200 * time.Millisecond)
	if running, ok := recorder.GetOperationTime("fileLoad"); !ok || running != 200*time.Millisecond {
		t.Fatalf("expected 200ms while running, got %v %v", running, ok)
	}

	clock.Advance(50 * time.Millisecond)
	elapsed, ok := recorder.EndTimer("fileLoad")
	if !ok || elapsed != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v %v", elapsed, ok)
	}

	clock.Advance(time.Second)
	if got, _ := recorder.GetOperationTime("fileLoad"); got != 250*time.Millisecond {
		t.Fatalf("expected ended duration to stay fixed, got %v", got)
	}

	value, ok := store.Get("metrics.fileLoad")
	if !ok {
		t.Fatalf("expected sample under metrics.fileLoad")
	}
	sample, ok := value.(MetricSample)
	if !ok || sample.DurationMs != 250 || sample.Tags["format"] != "fit" {
		t.Fatalf("unexpected stored sample %#v", value)
	}
	if _, ok := recorder.EndTimer("fileLoad"); ok {
		t.Fatalf("expected a second EndTimer to report false")
	}
}

func TestStartTimerRestartResets(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	recorder := NewMetricsRecorder(nil, WithClock(clock.Now))

	recorder.StartTimer("render")
	clock.Advance(time.Second)
	recorder.EndTimer("render")

	recorder.StartTimer("render")
	if _, ok := recorder.Sample("render"); ok {
		t.Fatalf("expected restart to drop the previous sample")
	}
	clock.Advance(10 * time.Millisecond)
	if got, _ := recorder.EndTimer("render"); got != 10*time.Millisecond {
		t.Fatalf("expected 10ms after restart, got %v", got)
	}
}

func TestMetricSinkErrorsAreFaults(t *testing.T) {
	var (
		faults   []Fault
		received []MetricSample
	)
	errSink := errors.New("collector offline")
	failing := MetricSinkFunc(func(context.Context, MetricSample) error { return errSink })
	capturing := MetricSinkFunc(func(_ context.Context, sample MetricSample) error {
		received = append(received, sample)
		return nil
	})
	recorder := NewMetricsRecorder(nil,
		WithMetricSink(failing),
		WithMetricSink(capturing),
		WithFaultHandler(func(f Fault) { faults = append(faults, f) }),
	)

	recorder.StartTimer("parse")
	if _, ok := recorder.EndTimer("parse"); !ok {
		t.Fatalf("expected EndTimer to succeed despite sink error")
	}

	if len(faults) != 1 || faults[0].Kind != FaultPersistence || !errors.Is(faults[0].Err, errSink) {
		t.Fatalf("expected one persistence fault, got %+v", faults)
	}
	if len(received) != 1 || received[0].OperationID != "parse" {
		t.Fatalf("expected later sinks to still receive the sample, got %+v", received)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var recorder *MetricsRecorder
	recorder.StartTimer("x")
	if _, ok := recorder.EndTimer("x"); ok {
		t.Fatalf("expected nil recorder to report false")
	}
}

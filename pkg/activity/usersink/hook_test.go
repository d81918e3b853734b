package usersink_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-viewstate/pkg/activity"
	"github.com/goliatone/go-viewstate/pkg/activity/usersink"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsOperationEvent(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actorID := uuid.New()
	tenantID := uuid.New()

	event := activity.BuildOperationCompletedEvent(activity.OperationEventInput{
		ActorID:     actorID.String(),
		OperationID: "fileLoading",
		Status:      "completed",
		Progress:    100,
		Channel:     "viewer",
		OccurredAt:  now,
	})
	event.TenantID = tenantID.String()

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.ActorID != actorID {
		t.Fatalf("expected actor %s got %s", actorID, record.ActorID)
	}
	if record.TenantID != tenantID {
		t.Fatalf("expected tenant %s got %s", tenantID, record.TenantID)
	}
	if record.Verb != activity.VerbOperationCompleted || record.ObjectType != "operation" || record.ObjectID != "fileLoading" {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.Channel != "viewer" {
		t.Fatalf("expected channel viewer got %q", record.Channel)
	}
	if !record.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["status"] != "completed" {
		t.Fatalf("expected metadata passthrough got %v", record.Data["status"])
	}
}

func TestHookNotifyKeepsNonUUIDActor(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink, Channel: "audit"}

	err := hook.Notify(context.Background(), activity.BuildDefaultSetEvent(activity.PreferenceEventInput{
		ActorID:  "cli",
		Category: "summary",
		Keys:     []string{"distance"},
	}))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	record := sink.records[0]
	if record.ActorID != uuid.Nil {
		t.Fatalf("expected nil actor uuid, got %s", record.ActorID)
	}
	if record.Data["actor"] != "cli" {
		t.Fatalf("expected actor in payload, got %v", record.Data["actor"])
	}
	if record.Channel != "audit" {
		t.Fatalf("expected channel override, got %q", record.Channel)
	}
}

func TestHookNotifySkipsMissingVerb(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records for empty event, got %d", len(sink.records))
	}
}

func TestHookNotifyDefaultsTimestamp(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.Event{
		Verb:       activity.VerbOverrideCleared,
		ObjectType: "preferences.override",
		ObjectID:   "summary:/a.fit",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	if sink.records[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be defaulted")
	}
}

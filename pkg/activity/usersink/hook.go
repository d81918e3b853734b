package usersink

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-viewstate/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook forwards viewer activity events to a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
	// Channel overrides the event channel when set.
	Channel string
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" || normalized.ObjectID == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	channel := normalized.Channel
	if strings.TrimSpace(h.Channel) != "" {
		channel = strings.TrimSpace(h.Channel)
	}

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(normalized.ActorID),
		UserID:     parseUUID(normalized.UserID),
		TenantID:   parseUUID(normalized.TenantID),
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    channel,
		Data:       normalized.Metadata,
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if record.ActorID == uuid.Nil && normalized.ActorID != "" {
		// Non-UUID actors (e.g. "cli") are kept in the payload.
		if record.Data == nil {
			record.Data = map[string]any{}
		}
		record.Data["actor"] = normalized.ActorID
	}

	return h.Sink.Log(ctx, record)
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}

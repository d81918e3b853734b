package activity

import (
	"strings"
	"time"
)

// Operation verbs.
const (
	VerbOperationStarted   = "operation.started"
	VerbOperationProgress  = "operation.progress"
	VerbOperationCompleted = "operation.completed"
	VerbOperationFailed    = "operation.failed"
)

// OperationEventInput carries the fields shared by operation lifecycle events.
type OperationEventInput struct {
	ActorID     string
	OperationID string
	RunID       string
	Status      string
	Progress    float64
	Message     string
	Error       string
	Metadata    map[string]any
	Channel     string
	OccurredAt  time.Time
}

// BuildOperationStartedEvent describes a fresh operation run.
func BuildOperationStartedEvent(input OperationEventInput) Event {
	return buildOperationEvent(VerbOperationStarted, input)
}

// BuildOperationProgressEvent describes a progress or message update.
func BuildOperationProgressEvent(input OperationEventInput) Event {
	return buildOperationEvent(VerbOperationProgress, input)
}

// BuildOperationCompletedEvent describes a successful terminal transition.
func BuildOperationCompletedEvent(input OperationEventInput) Event {
	return buildOperationEvent(VerbOperationCompleted, input)
}

// BuildOperationFailedEvent describes a failed terminal transition.
func BuildOperationFailedEvent(input OperationEventInput) Event {
	return buildOperationEvent(VerbOperationFailed, input)
}

func buildOperationEvent(verb string, input OperationEventInput) Event {
	metadata := map[string]any{
		"progress": input.Progress,
	}
	if input.Status != "" {
		metadata["status"] = input.Status
	}
	if input.RunID != "" {
		metadata["run_id"] = input.RunID
	}
	if input.Message != "" {
		metadata["message"] = input.Message
	}
	if input.Error != "" {
		metadata["error"] = input.Error
	}
	if len(input.Metadata) > 0 {
		metadata["operation_metadata"] = cloneMap(input.Metadata)
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: "operation",
		ObjectID:   strings.TrimSpace(input.OperationID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

package activity

import (
	"strings"
	"time"
)

// Preference verbs.
const (
	VerbOverrideSaved      = "preferences.override.saved"
	VerbOverrideCleared    = "preferences.override.cleared"
	VerbDefaultSet         = "preferences.default.set"
	VerbDefaultCleared     = "preferences.default.cleared"
	VerbCategoryUpdated    = "settings.category.updated"
	VerbCategoryReset      = "settings.category.reset"
	objectTypeOverride     = "preferences.override"
	objectTypeDefault      = "preferences.default"
	objectTypeCategory     = "settings.category"
	metadataKeyKeys        = "keys"
	metadataKeyDocumentKey = "document"
)

// PreferenceEventInput describes a write to one preference tier.
type PreferenceEventInput struct {
	ActorID     string
	Category    string
	DocumentKey string
	Keys        []string
	Fields      map[string]any
	Metadata    map[string]any
	Channel     string
	OccurredAt  time.Time
}

// BuildOverrideSavedEvent describes a stored per-document override.
func BuildOverrideSavedEvent(input PreferenceEventInput) Event {
	return buildPreferenceEvent(VerbOverrideSaved, objectTypeOverride, overrideObjectID(input), input)
}

// BuildOverrideClearedEvent describes a removed per-document override,
// including the automatic removal when a save matches the default.
func BuildOverrideClearedEvent(input PreferenceEventInput) Event {
	return buildPreferenceEvent(VerbOverrideCleared, objectTypeOverride, overrideObjectID(input), input)
}

// BuildDefaultSetEvent describes a new global default for a category.
func BuildDefaultSetEvent(input PreferenceEventInput) Event {
	return buildPreferenceEvent(VerbDefaultSet, objectTypeDefault, input.Category, input)
}

// BuildDefaultClearedEvent describes a removed global default.
func BuildDefaultClearedEvent(input PreferenceEventInput) Event {
	return buildPreferenceEvent(VerbDefaultCleared, objectTypeDefault, input.Category, input)
}

// BuildCategoryUpdatedEvent describes scalar setting writes.
func BuildCategoryUpdatedEvent(input PreferenceEventInput) Event {
	return buildPreferenceEvent(VerbCategoryUpdated, objectTypeCategory, input.Category, input)
}

// BuildCategoryResetEvent describes a category restored to its defaults.
func BuildCategoryResetEvent(input PreferenceEventInput) Event {
	return buildPreferenceEvent(VerbCategoryReset, objectTypeCategory, input.Category, input)
}

func overrideObjectID(input PreferenceEventInput) string {
	category := strings.TrimSpace(input.Category)
	document := strings.TrimSpace(input.DocumentKey)
	if document == "" {
		return category
	}
	return category + ":" + document
}

func buildPreferenceEvent(verb, objectType, objectID string, input PreferenceEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["category"] = strings.TrimSpace(input.Category)
	if input.DocumentKey != "" {
		metadata[metadataKeyDocumentKey] = input.DocumentKey
	}
	if input.Keys != nil {
		metadata[metadataKeyKeys] = append([]string{}, input.Keys...)
	}
	if len(input.Fields) > 0 {
		metadata["fields"] = cloneMap(input.Fields)
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: objectType,
		ObjectID:   strings.TrimSpace(objectID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Template events
	EventTypeTemplateLoaded     EventType = "template.loaded"
	EventTypeTemplateLoadFailed EventType = "template.load_failed"
	EventTypeTemplateSaved      EventType = "template.saved"

	// Render events
	EventTypeRenderCompleted EventType = "render.completed"
	EventTypeRenderFailed    EventType = "render.failed"

	// Cache events
	EventTypeCacheCleared EventType = "cache.cleared"

	// System events
	EventTypeError   EventType = "error"
	EventTypeWarning EventType = "warning"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeTemplate EntityType = "template"
	EntityTypeCache    EntityType = "cache"
	EntityTypeSystem   EntityType = "system"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity (the template name for template events).
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// TemplateLoadedPayload is the payload for template.loaded events.
type TemplateLoadedPayload struct {
	SourcePath string `json:"source_path"`
}

// TemplateSavedPayload is the payload for template.saved events.
type TemplateSavedPayload struct {
	Path string `json:"path"`
}

// RenderCompletedPayload is the payload for render.completed events.
type RenderCompletedPayload struct {
	RenderID         string   `json:"render_id"`
	Format           string   `json:"format"`
	SectionCount     int      `json:"section_count"`
	RenderedSections int      `json:"rendered_sections"`
	ContextKeys      []string `json:"context_keys,omitempty"`
}

// FailurePayload is the payload for template.load_failed and render.failed events.
type FailurePayload struct {
	Error string `json:"error"`
}

// CacheClearedPayload is the payload for cache.cleared events.
type CacheClearedPayload struct {
	Evicted int `json:"evicted"`
}

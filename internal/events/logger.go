// Package events provides helper functions for logging docforge events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/docforge/internal/models"
	"github.com/opencode-ai/docforge/internal/templates"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// LogTemplateLoaded records a successful template load.
func LogTemplateLoaded(ctx context.Context, repo Repository, name, sourcePath string) error {
	return logTemplateEvent(ctx, repo, models.EventTypeTemplateLoaded, name, models.TemplateLoadedPayload{
		SourcePath: sourcePath,
	})
}

// LogTemplateLoadFailed records a failed template load.
func LogTemplateLoadFailed(ctx context.Context, repo Repository, name string, cause error) error {
	return logTemplateEvent(ctx, repo, models.EventTypeTemplateLoadFailed, name, failure(cause))
}

// LogTemplateSaved records a template written to disk.
func LogTemplateSaved(ctx context.Context, repo Repository, name, path string) error {
	return logTemplateEvent(ctx, repo, models.EventTypeTemplateSaved, name, models.TemplateSavedPayload{
		Path: path,
	})
}

// LogRenderCompleted records a successful render.
func LogRenderCompleted(ctx context.Context, repo Repository, name string, meta templates.RenderMetadata) error {
	keys := make([]string, 0, len(meta.Context))
	for key := range meta.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return logTemplateEvent(ctx, repo, models.EventTypeRenderCompleted, name, models.RenderCompletedPayload{
		RenderID:         meta.RenderID,
		Format:           string(meta.Format),
		SectionCount:     meta.SectionCount,
		RenderedSections: meta.RenderedSections,
		ContextKeys:      keys,
	})
}

// LogRenderFailed records a failed render.
func LogRenderFailed(ctx context.Context, repo Repository, name string, cause error) error {
	return logTemplateEvent(ctx, repo, models.EventTypeRenderFailed, name, failure(cause))
}

// LogCacheCleared records a full cache flush.
func LogCacheCleared(ctx context.Context, repo Repository, evicted int) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.CacheClearedPayload{Evicted: evicted})
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload: %w", err)
	}

	return repo.Create(ctx, &models.Event{
		Type:       models.EventTypeCacheCleared,
		EntityType: models.EntityTypeCache,
		EntityID:   "templates",
		Payload:    payload,
	})
}

func failure(cause error) models.FailurePayload {
	if cause == nil {
		return models.FailurePayload{}
	}
	return models.FailurePayload{Error: cause.Error()}
}

func logTemplateEvent(ctx context.Context, repo Repository, eventType models.EventType, name string, payload any) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if name == "" {
		return fmt.Errorf("template name is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return repo.Create(ctx, &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeTemplate,
		EntityID:   name,
		Payload:    data,
	})
}

// Recorder persists engine notifications as events. Write failures are
// logged and never reach the engine.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

var _ templates.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) OnLoaded(name, sourcePath string) {
	r.check(name, LogTemplateLoaded(context.Background(), r.repo, name, sourcePath))
}

func (r *Recorder) OnLoadError(name string, err error) {
	r.check(name, LogTemplateLoadFailed(context.Background(), r.repo, name, err))
}

func (r *Recorder) OnRendered(name string, meta templates.RenderMetadata) {
	r.check(name, LogRenderCompleted(context.Background(), r.repo, name, meta))
}

func (r *Recorder) OnRenderError(name string, err error) {
	r.check(name, LogRenderFailed(context.Background(), r.repo, name, err))
}

func (r *Recorder) OnSaved(name, path string) {
	r.check(name, LogTemplateSaved(context.Background(), r.repo, name, path))
}

func (r *Recorder) OnCacheCleared(evicted int) {
	r.check("", LogCacheCleared(context.Background(), r.repo, evicted))
}

func (r *Recorder) check(name string, err error) {
	if err != nil {
		r.logger.Warn().Err(err).Str("template", name).Msg("failed to record event")
	}
}

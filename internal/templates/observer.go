package templates

import (
	"github.com/rs/zerolog"
)

// Observer receives engine notifications. Implementations must not block and
// cannot alter control flow; errors are reported before they are returned.
type Observer interface {
	OnLoaded(name, sourcePath string)
	OnLoadError(name string, err error)
	OnRendered(name string, meta RenderMetadata)
	OnRenderError(name string, err error)
	OnSaved(name, path string)
	OnCacheCleared(evicted int)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnLoaded(string, string) {}
func (NopObserver) OnLoadError(string, error) {}
func (NopObserver) OnRendered(string, RenderMetadata) {}
func (NopObserver) OnRenderError(string, error) {}
func (NopObserver) OnSaved(string, string) {}
func (NopObserver) OnCacheCleared(int) {}

// LogObserver writes notifications to a zerolog logger.
type LogObserver struct {
	Logger zerolog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) OnLoaded(name, sourcePath string) {
	o.Logger.Debug().Str("template", name).Str("source", sourcePath).Msg("template loaded")
}

func (o *LogObserver) OnLoadError(name string, err error) {
	o.Logger.Warn().Err(err).Str("template", name).Msg("template load failed")
}

func (o *LogObserver) OnRendered(name string, meta RenderMetadata) {
	o.Logger.Debug().
		Str("template", name).
		Str("render_id", meta.RenderID).
		Str("format", string(meta.Format)).
		Int("sections", meta.RenderedSections).
		Msg("template rendered")
}

func (o *LogObserver) OnRenderError(name string, err error) {
	o.Logger.Warn().Err(err).Str("template", name).Msg("template render failed")
}

func (o *LogObserver) OnSaved(name, path string) {
	o.Logger.Info().Str("template", name).Str("path", path).Msg("template saved")
}

func (o *LogObserver) OnCacheCleared(evicted int) {
	o.Logger.Debug().Int("evicted", evicted).Msg("template cache cleared")
}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnLoaded(name, sourcePath string) {
	for _, o := range m {
		o.OnLoaded(name, sourcePath)
	}
}

func (m MultiObserver) OnLoadError(name string, err error) {
	for _, o := range m {
		o.OnLoadError(name, err)
	}
}

func (m MultiObserver) OnRendered(name string, meta RenderMetadata) {
	for _, o := range m {
		o.OnRendered(name, meta)
	}
}

func (m MultiObserver) OnRenderError(name string, err error) {
	for _, o := range m {
		o.OnRenderError(name, err)
	}
}

func (m MultiObserver) OnSaved(name, path string) {
	for _, o := range m {
		o.OnSaved(name, path)
	}
}

func (m MultiObserver) OnCacheCleared(evicted int) {
	for _, o := range m {
		o.OnCacheCleared(evicted)
	}
}

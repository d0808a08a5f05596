package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Engine is the entry point for loading, rendering and managing templates.
// It owns its registry and cache; engines do not share state.
type Engine struct {
	dir             string
	extra           []Root
	builtins        bool
	cacheTTL        time.Duration
	cleanupInterval time.Duration
	observer        Observer
	logger          zerolog.Logger
	now             func() time.Time

	registry *Registry
	cache    *Cache
	loader   *Loader
	renderer *Renderer
}

// Option configures an Engine.
type Option func(*Engine)

// WithDir sets the writable template directory. It is searched first.
func WithDir(dir string) Option {
	return func(e *Engine) {
		e.dir = strings.TrimSpace(dir)
	}
}

// WithFS adds a read-only root searched after the template directory.
func WithFS(name string, fsys fs.FS) Option {
	return func(e *Engine) {
		if fsys != nil {
			e.extra = append(e.extra, FSRoot(name, fsys))
		}
	}
}

// WithBuiltins toggles the bundled templates, searched last.
func WithBuiltins(enabled bool) Option {
	return func(e *Engine) {
		e.builtins = enabled
	}
}

// WithObserver sets the notification observer.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCacheTTL sets cache expiry. Zero values keep entries until evicted.
func WithCacheTTL(ttl, cleanupInterval time.Duration) Option {
	return func(e *Engine) {
		e.cacheTTL = ttl
		e.cleanupInterval = cleanupInterval
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		builtins: true,
		observer: NopObserver{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	roots := make([]Root, 0, len(e.extra)+2)
	if e.dir != "" {
		roots = append(roots, DirRoot(e.dir))
	}
	roots = append(roots, e.extra...)
	if e.builtins {
		roots = append(roots, BuiltinRoot())
	}

	e.registry = NewRegistry()
	e.cache = NewCache(e.cacheTTL, e.cleanupInterval)
	e.loader = NewLoader(roots, e.cache, e.observer, e.logger)
	e.loader.now = e.now
	e.renderer = NewRenderer(e.registry)
	e.renderer.now = e.now
	return e
}

// Dir returns the writable template directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Roots returns the roots searched for templates, in precedence order.
func (e *Engine) Roots() []Root {
	return e.loader.Roots()
}

// Registry returns the engine's helper and partial registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Initialize prepares the engine. It is safe to call more than once.
func (e *Engine) Initialize() error {
	if e.dir == "" {
		return nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create template directory: %w", err)
	}
	return nil
}

// GetTemplate returns the validated, inheritance-resolved template.
func (e *Engine) GetTemplate(name string) (*TemplateDefinition, error) {
	return e.loader.Load(name)
}

// LoadTemplate is an alias of GetTemplate.
func (e *Engine) LoadTemplate(name string) (*TemplateDefinition, error) {
	return e.loader.Load(name)
}

// TemplateExists reports whether a source resolves for name.
func (e *Engine) TemplateExists(name string) bool {
	return e.loader.Exists(name)
}

// RenderTemplate loads and renders a template.
func (e *Engine) RenderTemplate(name string, context map[string]any, opts RenderOptions) (*RenderResult, error) {
	def, err := e.loader.Load(name)
	if err != nil {
		return nil, err
	}
	result, err := e.renderer.Render(def, context, opts)
	if err != nil {
		e.observer.OnRenderError(name, err)
		return nil, err
	}
	e.observer.OnRendered(name, result.Metadata)
	return result, nil
}

// RenderTemplateToString renders a template and returns only the content.
func (e *Engine) RenderTemplateToString(name string, context map[string]any, opts RenderOptions) (string, error) {
	result, err := e.RenderTemplate(name, context, opts)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// ListTemplates returns summaries of every loadable template sorted by name.
func (e *Engine) ListTemplates() ([]Summary, error) {
	return e.loader.List(), nil
}

// SaveTemplate validates raw, stamps its timestamps and writes it to the
// template directory as <name>.yaml.
func (e *Engine) SaveTemplate(name string, raw map[string]any) (*TemplateDefinition, error) {
	name = strings.TrimSpace(name)
	if !validName(name) {
		return nil, fmt.Errorf("invalid template name %q", name)
	}
	if e.dir == "" {
		return nil, errors.New("template directory is not configured")
	}

	def, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	if def.Metadata.Created.IsZero() {
		def.Metadata.Created = now
	}
	def.Metadata.Modified = now
	def.declare(keyMetadata, "created", "modified")

	data, err := def.MarshalSource()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create template directory: %w", err)
	}
	path := filepath.Join(e.dir, name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write template %s: %w", path, err)
	}
	def.Source = path

	e.cache.Delete(name)
	e.observer.OnSaved(name, path)
	return def, nil
}

// CopyTemplate saves a copy of source under target. The copy is re-identified
// as target at version 1.0 and no longer extends anything, since inheritance
// is already resolved. Keys of modifications naming a top-level block replace
// it; any other key is set on the template header.
func (e *Engine) CopyTemplate(source, target string, modifications map[string]any) (*TemplateDefinition, error) {
	def, err := e.loader.Load(source)
	if err != nil {
		return nil, err
	}

	copied := def.Clone()
	copied.Header.ID = strings.TrimSpace(target)
	copied.Header.Version = DefaultVersion
	copied.Header.Extends = ""
	copied.Inheritance = Inheritance{}
	copied.Metadata.Created = time.Time{}

	raw, err := copied.Document()
	if err != nil {
		return nil, err
	}
	header, _ := raw[keyTemplate].(map[string]any)
	if header == nil {
		header = map[string]any{}
		raw[keyTemplate] = header
	}
	for _, key := range sortedKeys(modifications) {
		if _, ok := documentKeys[key]; ok {
			raw[key] = modifications[key]
			continue
		}
		header[key] = modifications[key]
	}

	return e.SaveTemplate(target, raw)
}

// RegisterHelper adds or replaces a helper on the engine's registry.
func (e *Engine) RegisterHelper(name string, fn any) error {
	return e.registry.RegisterHelper(name, fn)
}

// RegisterPartial adds or replaces a partial on the engine's registry.
func (e *Engine) RegisterPartial(name, text string) error {
	return e.registry.RegisterPartial(name, text)
}

// ClearCache evicts every cached template and compiled template string.
func (e *Engine) ClearCache() {
	e.registry.ResetCompiled()
	evicted := e.cache.Flush()
	e.observer.OnCacheCleared(evicted)
}

// Evict removes one cached template.
func (e *Engine) Evict(name string) {
	e.cache.Delete(strings.TrimSpace(name))
}

// Stats summarizes engine state.
type Stats struct {
	CachedTemplates int      `json:"cached_templates"`
	Cached          []string `json:"cached"`
	Helpers         int      `json:"helpers"`
	Partials        int      `json:"partials"`
	Roots           []string `json:"roots"`
}

// GetStats returns counts of cached templates and registered helpers and partials.
func (e *Engine) GetStats() Stats {
	cached := e.cache.Names()
	sort.Strings(cached)
	roots := e.loader.Roots()
	names := make([]string, len(roots))
	for i, root := range roots {
		names[i] = root.Name
	}
	return Stats{
		CachedTemplates: len(cached),
		Cached:          cached,
		Helpers:         len(e.registry.HelperNames()),
		Partials:        len(e.registry.PartialNames()),
		Roots:           names,
	}
}

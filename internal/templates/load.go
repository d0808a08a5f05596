package templates

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// Loader resolves template names against its roots, validates the sources,
// resolves inheritance and caches the composed result.
type Loader struct {
	roots    []Root
	cache    *Cache
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewLoader creates a loader. Roots are searched in order.
func NewLoader(roots []Root, cache *Cache, observer Observer, logger zerolog.Logger) *Loader {
	if cache == nil {
		cache = NewCache(0, 0)
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Loader{
		roots:    roots,
		cache:    cache,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Roots returns the roots searched by the loader.
func (l *Loader) Roots() []Root {
	return append([]Root(nil), l.roots...)
}

// Load returns the validated, inheritance-resolved template for name. The
// result is a copy; changing it does not affect the cached entry.
func (l *Loader) Load(name string) (*TemplateDefinition, error) {
	return l.load(strings.TrimSpace(name), nil)
}

// Exists reports whether any source resolves for name. It does not parse the source.
func (l *Loader) Exists(name string) bool {
	_, file, _, _ := resolve(l.roots, strings.TrimSpace(name))
	return file != ""
}

func (l *Loader) load(name string, chain []string) (*TemplateDefinition, error) {
	if entry, ok := l.cache.Get(name); ok {
		if info, err := fs.Stat(entry.root.FS, entry.file); err == nil && IsFresh(entry, info.ModTime()) {
			return entry.Template.Clone(), nil
		}
		l.cache.Delete(name)
	}

	def, err := l.reload(name, chain)
	if err != nil {
		l.observer.OnLoadError(name, err)
		return nil, err
	}
	return def, nil
}

func (l *Loader) reload(name string, chain []string) (*TemplateDefinition, error) {
	root, file, info, tried := resolve(l.roots, name)
	if file == "" {
		return nil, &NotFoundError{Name: name, Tried: tried}
	}
	sourcePath := root.SourcePath(file)

	data, err := fs.ReadFile(root.FS, file)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", sourcePath, err)
	}
	def, err := ParseTemplate(data)
	if err != nil {
		return nil, err
	}
	def.Source = sourcePath

	if parent := def.Parent(); parent != "" {
		chain = append(chain, name)
		for _, seen := range chain {
			if seen == parent {
				return nil, &ValidationError{
					Name:       name,
					Violations: []string{"inheritance cycle: " + strings.Join(append(chain, parent), " -> ")},
				}
			}
		}

		resolvedParent, err := l.load(parent, chain)
		if err != nil {
			return nil, fmt.Errorf("load parent of %q: %w", name, err)
		}
		def, err = Merge(def, resolvedParent)
		if err != nil {
			return nil, err
		}
	}

	l.cache.Set(name, &CacheEntry{
		Template:         def,
		LoadedAt:         l.now(),
		SourcePath:       sourcePath,
		SourceModifiedAt: info.ModTime(),
		root:             root,
		file:             file,
	})
	l.logger.Debug().Str("template", name).Str("source", sourcePath).Msg("loaded template")
	l.observer.OnLoaded(name, sourcePath)
	return def.Clone(), nil
}

// Summary describes a template for listings.
type Summary struct {
	Name         string   `json:"name"`
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Extends      string   `json:"extends,omitempty"`
	Format       string   `json:"format"`
	SectionCount int      `json:"section_count"`
	Source       string   `json:"source"`
}

// List loads every template file found in the roots and returns summaries
// sorted by name. Files that fail to load are skipped with a warning. When a
// name appears in several roots the first root wins.
func (l *Loader) List() []Summary {
	seen := make(map[string]struct{})
	summaries := make([]Summary, 0)

	for _, root := range l.roots {
		matches, err := doublestar.Glob(root.FS, "*.{yaml,yml}")
		if err != nil {
			l.logger.Warn().Err(err).Str("root", root.Name).Msg("failed to scan template root")
			continue
		}
		sort.Strings(matches)
		for _, match := range matches {
			name := NameFromFile(match)
			if _, ok := seen[name]; ok {
				continue
			}
			def, err := l.Load(name)
			if err != nil {
				l.logger.Warn().Err(err).Str("file", root.SourcePath(match)).Msg("skipping template")
				continue
			}
			seen[name] = struct{}{}
			summaries = append(summaries, summarize(name, def))
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

func summarize(name string, def *TemplateDefinition) Summary {
	return Summary{
		Name:         name,
		ID:           def.Header.ID,
		Title:        def.Header.Name,
		Version:      def.Header.Version,
		Description:  def.Header.Description,
		Tags:         cloneStrings(def.Header.Tags),
		Extends:      def.Parent(),
		Format:       string(def.Header.Output.Format),
		SectionCount: len(def.Sections),
		Source:       def.Source,
	}
}

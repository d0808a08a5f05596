package templates

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// countingFS records ReadFile calls. Stat is not counted.
type countingFS struct {
	fstest.MapFS
	mu    sync.Mutex
	reads map[string]int
}

func newCountingFS(files map[string]string) *countingFS {
	fsys := &countingFS{MapFS: fstest.MapFS{}, reads: make(map[string]int)}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, data := range files {
		fsys.MapFS[name] = &fstest.MapFile{Data: []byte(data), ModTime: base}
	}
	return fsys
}

func (c *countingFS) ReadFile(name string) ([]byte, error) {
	c.mu.Lock()
	c.reads[name]++
	c.mu.Unlock()
	return c.MapFS.ReadFile(name)
}

func (c *countingFS) readCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[name]
}

type recordingObserver struct {
	mu           sync.Mutex
	loaded       []string
	failed       []string
	rendered     []string
	renderErrors []string
	saved        []string
	cleared      []int
}

func (o *recordingObserver) OnLoaded(name, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loaded = append(o.loaded, name)
}

func (o *recordingObserver) OnLoadError(name string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, name)
}

func (o *recordingObserver) OnRendered(name string, _ RenderMetadata) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rendered = append(o.rendered, name)
}

func (o *recordingObserver) OnRenderError(name string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renderErrors = append(o.renderErrors, name)
}

func (o *recordingObserver) OnSaved(name, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saved = append(o.saved, name)
}

func (o *recordingObserver) OnCacheCleared(evicted int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleared = append(o.cleared, evicted)
}

func newTestLoader(fsys fs.FS, observer Observer) *Loader {
	return NewLoader([]Root{FSRoot("mem", fsys)}, NewCache(0, 0), observer, zerolog.Nop())
}

const simpleTemplate = `
template: {id: simple, name: Simple}
sections:
  - id: body
    title: Body
`

func TestIsFresh(t *testing.T) {
	loaded := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := &CacheEntry{Template: &TemplateDefinition{}, SourceModifiedAt: loaded}

	require.True(t, IsFresh(entry, loaded))
	require.True(t, IsFresh(entry, loaded.Add(-time.Second)))
	require.False(t, IsFresh(entry, loaded.Add(time.Nanosecond)))
	require.False(t, IsFresh(nil, loaded))
	require.False(t, IsFresh(&CacheEntry{SourceModifiedAt: loaded}, loaded))
}

func TestLoaderCachesUntilSourceChanges(t *testing.T) {
	fsys := newCountingFS(map[string]string{"simple.yaml": simpleTemplate})
	loader := newTestLoader(fsys, nil)

	first, err := loader.Load("simple")
	require.NoError(t, err)
	second, err := loader.Load("simple")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NotSame(t, first, second)
	require.Equal(t, 1, fsys.readCount("simple.yaml"))

	fsys.MapFS["simple.yaml"] = &fstest.MapFile{
		Data:    []byte("template: {id: simple, name: Simple v2}\nsections: []\n"),
		ModTime: fsys.MapFS["simple.yaml"].ModTime.Add(time.Minute),
	}

	third, err := loader.Load("simple")
	require.NoError(t, err)
	require.Equal(t, "Simple v2", third.Header.Name)
	require.Equal(t, 2, fsys.readCount("simple.yaml"))
}

func TestLoaderReturnsCopies(t *testing.T) {
	fsys := newCountingFS(map[string]string{"simple.yaml": simpleTemplate})
	loader := newTestLoader(fsys, nil)

	first, err := loader.Load("simple")
	require.NoError(t, err)
	first.Sections[0].Title = "Changed"
	first.Variables.Required = append(first.Variables.Required, "topic")
	first.Header.Tags = append(first.Header.Tags, "mutated")

	second, err := loader.Load("simple")
	require.NoError(t, err)
	require.Equal(t, "Body", second.Sections[0].Title)
	require.Empty(t, second.Variables.Required)
	require.Empty(t, second.Header.Tags)
	require.Equal(t, 1, fsys.readCount("simple.yaml"))

	second.Sections[0].Title = "Changed again"
	third, err := loader.Load("simple")
	require.NoError(t, err)
	require.Equal(t, "Body", third.Sections[0].Title)
}

func TestLoaderFreshnessOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("template: {id: doc, name: First}\nsections: []\n"), 0o644))
	original := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, original, original))

	loader := NewLoader([]Root{DirRoot(dir)}, NewCache(0, 0), nil, zerolog.Nop())
	def, err := loader.Load("doc")
	require.NoError(t, err)
	require.Equal(t, "First", def.Header.Name)
	require.Equal(t, path, def.Source)

	// Same modification time: the cached value is served without reading.
	require.NoError(t, os.WriteFile(path, []byte("template: {id: doc, name: Second}\nsections: []\n"), 0o644))
	require.NoError(t, os.Chtimes(path, original, original))
	def, err = loader.Load("doc")
	require.NoError(t, err)
	require.Equal(t, "First", def.Header.Name)

	touched := original.Add(time.Hour)
	require.NoError(t, os.Chtimes(path, touched, touched))
	def, err = loader.Load("doc")
	require.NoError(t, err)
	require.Equal(t, "Second", def.Header.Name)
}

func TestLoaderCandidates(t *testing.T) {
	fsys := newCountingFS(map[string]string{
		"report-tmpl.yml": "template: {id: report, name: Report}\nsections: []\n",
		"both.yml":        "template: {id: both, name: From yml}\nsections: []\n",
		"both-tmpl.yaml":  "template: {id: both, name: From tmpl}\nsections: []\n",
	})
	loader := newTestLoader(fsys, nil)

	def, err := loader.Load("report")
	require.NoError(t, err)
	require.Equal(t, "Report", def.Header.Name)
	require.Equal(t, "mem:report-tmpl.yml", def.Source)

	def, err = loader.Load("both")
	require.NoError(t, err)
	require.Equal(t, "From yml", def.Header.Name)
}

func TestLoaderRootPrecedence(t *testing.T) {
	first := newCountingFS(map[string]string{"doc.yaml": "template: {id: doc, name: First}\nsections: []\n"})
	second := newCountingFS(map[string]string{
		"doc.yaml":   "template: {id: doc, name: Second}\nsections: []\n",
		"other.yaml": "template: {id: other, name: Other}\nsections: []\n",
	})
	loader := NewLoader([]Root{FSRoot("one", first), FSRoot("two", second)}, nil, nil, zerolog.Nop())

	def, err := loader.Load("doc")
	require.NoError(t, err)
	require.Equal(t, "First", def.Header.Name)

	def, err = loader.Load("other")
	require.NoError(t, err)
	require.Equal(t, "two:other.yaml", def.Source)
}

func TestLoaderNotFound(t *testing.T) {
	observer := &recordingObserver{}
	loader := newTestLoader(newCountingFS(nil), observer)

	_, err := loader.Load("missing")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, []string{
		"mem:missing.yaml",
		"mem:missing.yml",
		"mem:missing-tmpl.yaml",
		"mem:missing-tmpl.yml",
	}, nf.Tried)
	require.Equal(t, []string{"missing"}, observer.failed)

	_, err = loader.Load("../escape")
	require.True(t, errors.Is(err, ErrNotFound))
	require.False(t, loader.Exists("../escape"))
}

func TestLoaderVanishedSource(t *testing.T) {
	fsys := newCountingFS(map[string]string{"simple.yaml": simpleTemplate})
	cache := NewCache(0, 0)
	loader := NewLoader([]Root{FSRoot("mem", fsys)}, cache, nil, zerolog.Nop())

	_, err := loader.Load("simple")
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	delete(fsys.MapFS, "simple.yaml")
	_, err = loader.Load("simple")
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, 0, cache.Len())
}

func TestLoaderResolvesInheritanceChain(t *testing.T) {
	observer := &recordingObserver{}
	fsys := newCountingFS(map[string]string{
		"p.yaml": `
template: {id: p, name: Parent}
sections:
  - id: s1
    title: A
`,
		"c.yaml": `
template: {id: c, name: Child, extends: p}
inheritance:
  overrides:
    s1: {title: B}
sections:
  - id: s2
    title: New
`,
		"g.yaml": `
template: {id: g, name: Grandchild}
inheritance:
  parent: c
sections:
  - id: s3
`,
	})
	loader := newTestLoader(fsys, observer)

	def, err := loader.Load("c")
	require.NoError(t, err)
	require.Equal(t, "Child", def.Header.Name)
	require.Equal(t, []string{"s1", "s2"}, sectionIDs(def.Sections))
	require.Equal(t, "B", def.Sections[0].Title)
	require.Equal(t, "mem:c.yaml", def.Source)

	grand, err := loader.Load("g")
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2", "s3"}, sectionIDs(grand.Sections))
	require.Equal(t, 1, fsys.readCount("c.yaml"))
	require.Equal(t, 1, fsys.readCount("p.yaml"))

	parent, err := loader.Load("p")
	require.NoError(t, err)
	require.Equal(t, "A", parent.Sections[0].Title)
	require.Equal(t, []string{"p", "c", "g"}, observer.loaded)
}

func TestLoaderDetectsInheritanceCycles(t *testing.T) {
	fsys := newCountingFS(map[string]string{
		"a.yaml":    "template: {id: a, name: A, extends: b}\nsections: []\n",
		"b.yaml":    "template: {id: b, name: B, extends: a}\nsections: []\n",
		"self.yaml": "template: {id: self, name: Self, extends: self}\nsections: []\n",
	})
	loader := newTestLoader(fsys, nil)

	_, err := loader.Load("a")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	require.Contains(t, err.Error(), "inheritance cycle: a -> b -> a")

	_, err = loader.Load("self")
	require.Contains(t, err.Error(), "inheritance cycle: self -> self")
}

func TestLoaderMissingParent(t *testing.T) {
	fsys := newCountingFS(map[string]string{
		"orphan.yaml": "template: {id: orphan, name: Orphan, extends: ghost}\nsections: []\n",
	})
	loader := newTestLoader(fsys, nil)

	_, err := loader.Load("orphan")
	require.True(t, errors.Is(err, ErrNotFound))
	require.Contains(t, err.Error(), `load parent of "orphan"`)
}

func TestLoaderListSkipsInvalid(t *testing.T) {
	fsys := newCountingFS(map[string]string{
		"good.yaml":      "template: {id: good, name: Good, tags: [a]}\nsections: [{id: one}]\n",
		"other-tmpl.yml": "template: {id: other, name: Other}\nsections: []\n",
		"broken.yaml":    "template: {id: broken}\nsections: []\n",
		"garbage.yml":    ": : :\n\t- nope",
		"notes.txt":      "not a template",
	})
	loader := newTestLoader(fsys, nil)

	summaries := loader.List()
	require.Len(t, summaries, 2)
	require.Equal(t, "good", summaries[0].Name)
	require.Equal(t, "Good", summaries[0].Title)
	require.Equal(t, 1, summaries[0].SectionCount)
	require.Equal(t, []string{"a"}, summaries[0].Tags)
	require.Equal(t, "other", summaries[1].Name)
	require.Equal(t, "mem:other-tmpl.yml", summaries[1].Source)
}

func TestNameFromFile(t *testing.T) {
	require.Equal(t, "prd", NameFromFile("prd.yaml"))
	require.Equal(t, "prd", NameFromFile("dir/prd-tmpl.yml"))
	require.Equal(t, "my.doc", NameFromFile("my.doc.yaml"))
}

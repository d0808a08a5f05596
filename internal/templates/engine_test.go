package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	base := []Option{
		WithDir(dir),
		WithBuiltins(false),
		WithLogger(zerolog.Nop()),
		WithClock(func() time.Time { return fixedNow }),
	}
	engine := New(append(base, opts...)...)
	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.Initialize())
	return engine, dir
}

const roundTripSource = `
template:
  id: x
  name: Round Trip
  description: Saved and loaded
  tags: [alpha, beta]
  output: {format: html, filename: "{{.project}}.html", title: "{{.project}}"}
metadata:
  author: Sam
  framework: docforge
workflow:
  mode: guided
  elicitation: sequential
  hooks: {before_render: prepare}
variables:
  required: [project]
  optional: [owner]
  defaults: {owner: team, count: 3, nested: {a: [1, 2]}}
partials:
  sig: "-- {{.owner}}"
sections:
  - id: intro
    title: Intro
    instruction: Explain
    template: "{{.project}}"
    type: markdown
    elicit: true
    conditions: {mode: full}
    validation: {min_length: 10}
    examples: [one]
    sections:
      - id: details
        required: false
        content: body
`

var ignoreTimestamps = cmp.Options{
	cmpopts.IgnoreFields(Metadata{}, "Created", "Modified"),
	cmpopts.IgnoreFields(TemplateDefinition{}, "Source"),
	cmpopts.IgnoreUnexported(TemplateDefinition{}),
	cmpopts.EquateEmpty(),
}

func TestEngineSaveLoadRoundTrip(t *testing.T) {
	engine, dir := newTestEngine(t)

	raw, err := ParseDocument([]byte(roundTripSource))
	require.NoError(t, err)
	want, err := Validate(raw)
	require.NoError(t, err)

	saved, err := engine.SaveTemplate("x", raw)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "x.yaml"), saved.Source)

	loaded, err := engine.LoadTemplate("x")
	require.NoError(t, err)

	if diff := cmp.Diff(want, loaded, ignoreTimestamps); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	require.True(t, loaded.Metadata.Created.Equal(fixedNow))
	require.True(t, loaded.Metadata.Modified.Equal(fixedNow))
}

func TestEngineSaveKeepsCreated(t *testing.T) {
	engine, _ := newTestEngine(t)

	raw, err := ParseDocument([]byte("template: {id: k, name: Keep}\nmetadata: {created: 2020-01-02}\nsections: []\n"))
	require.NoError(t, err)
	saved, err := engine.SaveTemplate("k", raw)
	require.NoError(t, err)
	require.True(t, saved.Metadata.Created.Equal(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.True(t, saved.Metadata.Modified.Equal(fixedNow))
}

func TestEngineSaveChildKeepsInheritedDefaults(t *testing.T) {
	engine, dir := newTestEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.yaml"), []byte(`
template: {id: p, name: Parent, version: "2.0", output: {format: markdown, title: "T {{.topic}}"}}
workflow: {mode: guided}
variables: {required: [topic]}
sections:
  - id: intro
    title: Intro
`), 0o644))

	childSource := []byte(`
template: {id: c, name: Child, extends: p}
workflow: {elicitation: sequential}
sections:
  - id: extra
    title: Extra
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.yaml"), childSource, 0o644))

	before, err := engine.GetTemplate("c")
	require.NoError(t, err)

	raw, err := ParseDocument(childSource)
	require.NoError(t, err)
	_, err = engine.SaveTemplate("c", raw)
	require.NoError(t, err)

	after, err := engine.GetTemplate("c")
	require.NoError(t, err)
	require.Equal(t, []string{"topic"}, after.Variables.Required)
	require.Equal(t, ModeGuided, after.Workflow.Mode)
	require.Equal(t, "sequential", after.Workflow.Elicitation)
	require.Equal(t, "T {{.topic}}", after.Header.Output.Title)
	require.Equal(t, "2.0", after.Header.Version)
	if diff := cmp.Diff(before, after, ignoreTimestamps); diff != "" {
		t.Fatalf("save changed the resolved template (-before +after):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(dir, "c.yaml"))
	require.NoError(t, err)
	saved := string(data)
	require.Contains(t, saved, "extends: p")
	require.Contains(t, saved, "modified:")
	require.NotContains(t, saved, "variables:")
	require.NotContains(t, saved, "mode:")
}

func TestEngineSaveRejectsInvalid(t *testing.T) {
	engine, dir := newTestEngine(t)

	_, err := engine.SaveTemplate("bad", map[string]any{"sections": []any{}})
	require.True(t, errors.Is(err, ErrValidation))
	_, statErr := os.Stat(filepath.Join(dir, "bad.yaml"))
	require.True(t, os.IsNotExist(statErr))

	_, err = engine.SaveTemplate("../escape", map[string]any{})
	require.Error(t, err)

	_, err = New(WithBuiltins(false)).SaveTemplate("x", map[string]any{})
	require.EqualError(t, err, "template directory is not configured")
}

func TestEngineSaveEvictsCache(t *testing.T) {
	observer := &recordingObserver{}
	engine, _ := newTestEngine(t, WithObserver(observer))

	first, err := ParseDocument([]byte("template: {id: doc, name: First}\nsections: []\n"))
	require.NoError(t, err)
	_, err = engine.SaveTemplate("doc", first)
	require.NoError(t, err)

	def, err := engine.GetTemplate("doc")
	require.NoError(t, err)
	require.Equal(t, "First", def.Header.Name)
	require.Equal(t, 1, engine.GetStats().CachedTemplates)

	second, err := ParseDocument([]byte("template: {id: doc, name: Second}\nsections: []\n"))
	require.NoError(t, err)
	_, err = engine.SaveTemplate("doc", second)
	require.NoError(t, err)
	require.Equal(t, 0, engine.GetStats().CachedTemplates)

	def, err = engine.GetTemplate("doc")
	require.NoError(t, err)
	require.Equal(t, "Second", def.Header.Name)
	require.Equal(t, []string{"doc", "doc"}, observer.saved)
}

func TestEngineRenderTemplate(t *testing.T) {
	observer := &recordingObserver{}
	engine, _ := newTestEngine(t, WithObserver(observer))

	raw, err := ParseDocument([]byte(`
template: {id: greet, name: Greeting, output: {title: "Hi {{.who}}"}}
variables: {required: [who]}
sections:
  - id: body
    title: Hello
    template: "{{shout .who}}"
`))
	require.NoError(t, err)
	_, err = engine.SaveTemplate("greet", raw)
	require.NoError(t, err)
	require.NoError(t, engine.RegisterHelper("shout", func(s string) string { return strings.ToUpper(s) + "!" }))

	result, err := engine.RenderTemplate("greet", map[string]any{"who": "ada"}, RenderOptions{})
	require.NoError(t, err)
	require.Equal(t, "## Hello\n\nADA!\n", result.Content)
	require.Equal(t, "Hi ada", result.Metadata.Title)
	require.Equal(t, fixedNow, result.Metadata.RenderedAt)

	content, err := engine.RenderTemplateToString("greet", map[string]any{"who": "bo"}, RenderOptions{Format: FormatText})
	require.NoError(t, err)
	require.Equal(t, "Hello\n\nBO!\n", content)

	_, err = engine.RenderTemplate("greet", nil, RenderOptions{})
	require.True(t, errors.Is(err, ErrMissingVariables))

	_, err = engine.RenderTemplate("absent", nil, RenderOptions{})
	require.True(t, errors.Is(err, ErrNotFound))

	require.Equal(t, []string{"greet", "greet"}, observer.rendered)
	require.Equal(t, []string{"greet"}, observer.renderErrors)
	require.Equal(t, []string{"absent"}, observer.failed)
}

func TestEngineCopyTemplate(t *testing.T) {
	engine, dir := newTestEngine(t, WithBuiltins(true))

	copied, err := engine.CopyTemplate("project-brief", "my-brief", map[string]any{
		"name":      "My Brief",
		"variables": map[string]any{"required": []any{"project"}},
	})
	require.NoError(t, err)
	require.Equal(t, "my-brief", copied.Header.ID)
	require.Equal(t, "My Brief", copied.Header.Name)
	require.Equal(t, DefaultVersion, copied.Header.Version)
	require.Empty(t, copied.Header.Extends)
	require.Empty(t, copied.Inheritance.Parent)
	require.Equal(t, []string{"project"}, copied.Variables.Required)
	require.Equal(t, filepath.Join(dir, "my-brief.yaml"), copied.Source)

	loaded, err := engine.LoadTemplate("my-brief")
	require.NoError(t, err)
	require.Equal(t, []string{"overview", "references", "problem", "goals", "audience"}, sectionIDs(loaded.Sections))
	require.True(t, loaded.Metadata.Created.Equal(fixedNow))

	source, err := engine.LoadTemplate("project-brief")
	require.NoError(t, err)
	require.Equal(t, "project-brief", source.Header.ID)
	require.Equal(t, "Project Brief", source.Header.Name)

	_, err = engine.CopyTemplate("missing", "other", nil)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestEngineListTemplates(t *testing.T) {
	engine, dir := newTestEngine(t, WithFS("extra", fstest.MapFS{
		"shared.yaml": &fstest.MapFile{Data: []byte("template: {id: shared, name: From FS}\nsections: []\n")},
		"local.yaml":  &fstest.MapFile{Data: []byte("template: {id: local, name: Shadowed}\nsections: []\n")},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.yaml"), []byte("template: {id: local, name: Local}\nsections: []\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("template: {name: Broken}\nsections: []\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# docs"), 0o644))

	summaries, err := engine.ListTemplates()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "local", summaries[0].Name)
	require.Equal(t, "Local", summaries[0].Title)
	require.Equal(t, "shared", summaries[1].Name)
	require.Equal(t, "extra:shared.yaml", summaries[1].Source)
}

func TestEngineBuiltinsRender(t *testing.T) {
	engine := New(WithBuiltins(true), WithLogger(zerolog.Nop()))

	summaries, err := engine.ListTemplates()
	require.NoError(t, err)
	names := make([]string, len(summaries))
	for i, summary := range summaries {
		names[i] = summary.Name
	}
	require.Equal(t, []string{"architecture", "base-document", "prd", "project-brief"}, names)

	context := map[string]any{
		"project":   "Atlas",
		"problem":   "Onboarding is slow",
		"goals":     []any{"Faster setup"},
		"decisions": []any{"Use SQLite"},
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			result, err := engine.RenderTemplate(name, context, RenderOptions{IncludeInstructions: true, IncludeExamples: true})
			require.NoError(t, err)
			require.NotEmpty(t, result.Content)
			require.NotContains(t, result.Content, "<no value>")
		})
	}

	brief, err := engine.RenderTemplate("project-brief", context, RenderOptions{})
	require.NoError(t, err)
	require.Contains(t, brief.Content, "## Overview")
	require.Contains(t, brief.Content, "1. Faster setup")
	require.NotContains(t, brief.Content, "Target Audience")
	require.Equal(t, "atlas-brief.md", brief.Metadata.Filename)
	require.Equal(t, "Atlas Project Brief", brief.Metadata.Title)
}

func TestEngineTemplateExists(t *testing.T) {
	engine := New(WithBuiltins(true))
	require.True(t, engine.TemplateExists("prd"))
	require.False(t, engine.TemplateExists("nope"))
	require.False(t, engine.TemplateExists("../prd"))
	require.False(t, engine.TemplateExists(""))
}

func TestEngineClearCacheAndStats(t *testing.T) {
	observer := &recordingObserver{}
	engine := New(WithBuiltins(true), WithObserver(observer))
	require.NoError(t, engine.RegisterPartial("footer", "bye"))

	_, err := engine.GetTemplate("project-brief")
	require.NoError(t, err)

	stats := engine.GetStats()
	require.Equal(t, 2, stats.CachedTemplates)
	require.Equal(t, []string{"base-document", "project-brief"}, stats.Cached)
	require.GreaterOrEqual(t, stats.Helpers, 20)
	require.Equal(t, 1, stats.Partials)
	require.Equal(t, []string{BuiltinSource}, stats.Roots)

	engine.ClearCache()
	require.Equal(t, 0, engine.GetStats().CachedTemplates)
	require.Equal(t, []int{2}, observer.cleared)
}

func TestEnginesDoNotShareRegistries(t *testing.T) {
	first := New(WithBuiltins(false))
	second := New(WithBuiltins(false))
	require.NoError(t, first.RegisterHelper("only", func() string { return "first" }))
	require.Contains(t, first.Registry().HelperNames(), "only")
	require.NotContains(t, second.Registry().HelperNames(), "only")
}

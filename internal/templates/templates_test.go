package templates

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTemplateAppliesDefaults(t *testing.T) {
	def, err := ParseTemplate([]byte(`
template:
  id: brief
  name: Brief
  tags: [planning, planning, " docs "]
sections:
  - id: intro
    title: Intro
    unknown: dropped
    sections:
      - id: child
        required: false
`))
	require.NoError(t, err)

	require.Equal(t, DefaultVersion, def.Header.Version)
	require.Equal(t, []string{"planning", "docs"}, def.Header.Tags)
	require.Equal(t, FormatMarkdown, def.Header.Output.Format)
	require.Equal(t, ModeInteractive, def.Workflow.Mode)
	require.NotNil(t, def.Variables.Required)
	require.Empty(t, def.Variables.Required)
	require.NotNil(t, def.Variables.Defaults)

	require.Len(t, def.Sections, 1)
	intro := def.Sections[0]
	require.True(t, intro.Required)
	require.False(t, intro.Elicit)
	require.Equal(t, SectionText, intro.Type)
	require.Len(t, intro.Sections, 1)
	require.False(t, intro.Sections[0].Required)
	require.Equal(t, SectionText, intro.Sections[0].Type)
}

func TestParseTemplateEmptySections(t *testing.T) {
	def, err := ParseTemplate([]byte("template: {id: empty, name: Empty}\nsections:\n"))
	require.NoError(t, err)
	require.NotNil(t, def.Sections)
	require.Empty(t, def.Sections)
}

func TestValidateAggregatesViolations(t *testing.T) {
	_, err := Validate(map[string]any{"metadata": map[string]any{}})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []string{"template: is required", "sections: is required"}, verr.Violations)
	require.Contains(t, err.Error(), "template: is required")
	require.Contains(t, err.Error(), "sections: is required")
}

func TestValidateRejectsUnknownTopLevelKeys(t *testing.T) {
	_, err := ParseTemplate([]byte(`
template: {id: t, name: T}
sections: []
outputs: {}
extra: 1
`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "t", verr.Name)
	require.Equal(t, []string{"extra: unknown top-level key", "outputs: unknown top-level key"}, verr.Violations)
}

func TestValidateRequiredHeaderFields(t *testing.T) {
	_, err := ParseTemplate([]byte("template: {version: '2'}\nsections: []\n"))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []string{"template.id: is required", "template.name: is required"}, verr.Violations)

	_, err = ParseTemplate([]byte("template: nope\nsections: {}\n"))
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Violations, "template: must be a mapping")
	require.Contains(t, verr.Violations, "sections: must be a list")
}

func TestValidateEnums(t *testing.T) {
	_, err := ParseTemplate([]byte(`
template:
  id: t
  name: T
  output: {format: pdf}
workflow: {mode: batch}
sections:
  - id: a
    sections:
      - id: b
        type: diagram
`))
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, `unsupported format "pdf"`)
	require.Contains(t, msg, `unsupported mode "batch"`)
	require.Contains(t, msg, `sections[0].sections[0].type: unsupported section type "diagram"`)
}

func TestValidateSectionIDs(t *testing.T) {
	_, err := ParseTemplate([]byte(`
template: {id: t, name: T}
sections:
  - id: a
    sections:
      - id: b
      - title: no id
  - id: b
`))
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "sections[0].sections[1].id: is required")
	require.Contains(t, msg, `sections[1].id: duplicate section id "b" (first defined at sections[0].sections[0])`)
}

func TestValidateReportsTypeErrors(t *testing.T) {
	_, err := ParseTemplate([]byte(`
template: {id: t, name: T}
variables:
  required: {topic: true}
sections:
  - id: a
    examples: {one: 1}
`))
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.GreaterOrEqual(t, len(verr.Violations), 2)
	for _, violation := range verr.Violations {
		require.Contains(t, violation, "cannot unmarshal")
	}
}

func TestMetadataTimestamps(t *testing.T) {
	def, err := ParseTemplate([]byte(`
template: {id: t, name: T}
metadata:
  author: Dana
  created: 2024-03-01
  modified: "2024-03-02T10:30:00Z"
sections: []
`))
	require.NoError(t, err)
	require.Equal(t, "Dana", def.Metadata.Author)
	require.True(t, def.Metadata.Created.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, def.Metadata.Modified.Equal(time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)))

	_, err = ParseTemplate([]byte("template: {id: t, name: T}\nmetadata: {created: yesterday}\nsections: []\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid timestamp "yesterday"`)
}

func TestParseDocumentRejectsNonMapping(t *testing.T) {
	_, err := ParseDocument([]byte("- a\n- b\n"))
	require.Error(t, err)

	_, err = ParseDocument([]byte(""))
	require.EqualError(t, err, "template document is empty")
}

func TestParent(t *testing.T) {
	def := &TemplateDefinition{Inheritance: Inheritance{Parent: "base"}}
	require.Equal(t, "base", def.Parent())

	def.Header.Extends = "other"
	require.Equal(t, "other", def.Parent())
}

func TestCloneIsDeep(t *testing.T) {
	def, err := ParseTemplate([]byte(`
template: {id: t, name: T, tags: [a]}
variables:
  defaults: {nested: {k: v}}
sections:
  - id: a
    conditions: {mode: guided}
    sections:
      - id: b
        examples: [one]
`))
	require.NoError(t, err)

	clone := def.Clone()
	clone.Header.Tags[0] = "changed"
	clone.Variables.Defaults["nested"].(map[string]any)["k"] = "changed"
	clone.Sections[0].Conditions["mode"] = "changed"
	clone.Sections[0].Sections[0].Examples[0] = "changed"
	clone.Sections[0].Sections[0].Title = "changed"

	require.Equal(t, "a", def.Header.Tags[0])
	require.Equal(t, "v", def.Variables.Defaults["nested"].(map[string]any)["k"])
	require.Equal(t, "guided", def.Sections[0].Conditions["mode"])
	require.Equal(t, "one", def.Sections[0].Sections[0].Examples[0])
	require.Empty(t, def.Sections[0].Sections[0].Title)
}

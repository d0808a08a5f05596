// Package templates provides document template loading, validation, inheritance and rendering.
package templates

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat is the document format a template renders to.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatText     OutputFormat = "text"
	FormatHTML     OutputFormat = "html"
	FormatJSON     OutputFormat = "json"
)

// WorkflowMode describes how callers drive a template.
type WorkflowMode string

const (
	ModeInteractive WorkflowMode = "interactive"
	ModeYolo        WorkflowMode = "yolo"
	ModeGuided      WorkflowMode = "guided"
)

// SectionType hints at the shape of a section body. The renderer does not interpret it.
type SectionType string

const (
	SectionText         SectionType = "text"
	SectionMarkdown     SectionType = "markdown"
	SectionBulletList   SectionType = "bullet-list"
	SectionNumberedList SectionType = "numbered-list"
	SectionTable        SectionType = "table"
	SectionCode         SectionType = "code"
)

// DefaultVersion is applied to templates that do not declare one.
const DefaultVersion = "1.0"

// TemplateDefinition is a validated template document.
type TemplateDefinition struct {
	Header      Header            `yaml:"template"`
	Metadata    Metadata          `yaml:"metadata"`
	Workflow    Workflow          `yaml:"workflow"`
	Variables   Variables         `yaml:"variables"`
	Sections    []Section         `yaml:"sections"`
	Partials    map[string]string `yaml:"partials,omitempty"`
	Inheritance Inheritance       `yaml:"inheritance,omitempty"`

	Source string `yaml:"-"` // file path or "builtin"

	// declared records which keys each header block set explicitly, so
	// inheritance can tell an explicit value from a default.
	declared map[string]map[string]struct{}
}

// Header identifies a template and describes its output.
type Header struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Version     string       `yaml:"version"`
	Description string       `yaml:"description,omitempty"`
	Tags        []string     `yaml:"tags,omitempty"`
	Extends     string       `yaml:"extends,omitempty"`
	Output      OutputConfig `yaml:"output"`
}

// OutputConfig holds the output format and the filename/title templates.
type OutputConfig struct {
	Format   OutputFormat `yaml:"format"`
	Filename string       `yaml:"filename,omitempty"`
	Title    string       `yaml:"title,omitempty"`
}

// Metadata carries authoring information.
type Metadata struct {
	Author     string    `yaml:"author,omitempty"`
	Created    time.Time `yaml:"created,omitempty"`
	Modified   time.Time `yaml:"modified,omitempty"`
	Framework  string    `yaml:"framework,omitempty"`
	Compatible bool      `yaml:"compatible,omitempty"`
}

// Workflow describes how a caller should drive the template. Hooks are opaque
// identifiers resolved by the caller.
type Workflow struct {
	Mode        WorkflowMode `yaml:"mode"`
	Elicitation string       `yaml:"elicitation,omitempty"`
	Hooks       Hooks        `yaml:"hooks,omitempty"`
}

// Hooks names caller-side callbacks.
type Hooks struct {
	BeforeRender string `yaml:"before_render,omitempty"`
	AfterRender  string `yaml:"after_render,omitempty"`
	OnError      string `yaml:"on_error,omitempty"`
}

// Variables is the variable contract of a template.
type Variables struct {
	Required []string       `yaml:"required"`
	Optional []string       `yaml:"optional"`
	Defaults map[string]any `yaml:"defaults"`
}

// Inheritance configures how a template extends its parent.
type Inheritance struct {
	Parent    string                    `yaml:"parent,omitempty"`
	Blocks    map[string]any            `yaml:"blocks,omitempty"`
	Overrides map[string]map[string]any `yaml:"overrides,omitempty"`
}

// Section is one node of a template's content tree.
type Section struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title,omitempty"`
	Instruction string         `yaml:"instruction,omitempty"`
	Template    string         `yaml:"template,omitempty"`
	Content     string         `yaml:"content,omitempty"`
	Type        SectionType    `yaml:"type,omitempty"`
	Elicit      bool           `yaml:"elicit,omitempty"`
	Required    bool           `yaml:"required"`
	Conditions  map[string]any `yaml:"conditions,omitempty"`
	Sections    []Section      `yaml:"sections,omitempty"`
	Examples    []string       `yaml:"examples,omitempty"`
	Validation  map[string]any `yaml:"validation,omitempty"`
}

// sectionDocument mirrors Section with an optional required flag so an absent
// value can default to true.
type sectionDocument struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Instruction string         `yaml:"instruction"`
	Template    string         `yaml:"template"`
	Content     string         `yaml:"content"`
	Type        SectionType    `yaml:"type"`
	Elicit      bool           `yaml:"elicit"`
	Required    *bool          `yaml:"required"`
	Conditions  map[string]any `yaml:"conditions"`
	Sections    []Section      `yaml:"sections"`
	Examples    []string       `yaml:"examples"`
	Validation  map[string]any `yaml:"validation"`
}

// UnmarshalYAML decodes a section, dropping unknown keys and defaulting required to true.
func (s *Section) UnmarshalYAML(node *yaml.Node) error {
	var doc sectionDocument
	if err := node.Decode(&doc); err != nil {
		return err
	}
	required := true
	if doc.Required != nil {
		required = *doc.Required
	}
	*s = Section{
		ID:          doc.ID,
		Title:       doc.Title,
		Instruction: doc.Instruction,
		Template:    doc.Template,
		Content:     doc.Content,
		Type:        doc.Type,
		Elicit:      doc.Elicit,
		Required:    required,
		Conditions:  doc.Conditions,
		Sections:    doc.Sections,
		Examples:    doc.Examples,
		Validation:  doc.Validation,
	}
	return nil
}

type metadataDocument struct {
	Author     string `yaml:"author"`
	Created    string `yaml:"created"`
	Modified   string `yaml:"modified"`
	Framework  string `yaml:"framework"`
	Compatible bool   `yaml:"compatible"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalYAML accepts timestamps as RFC 3339 values or plain dates.
func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	var doc metadataDocument
	if err := node.Decode(&doc); err != nil {
		return err
	}
	created, err := parseTimestamp(doc.Created)
	if err != nil {
		return fmt.Errorf("created: %w", err)
	}
	modified, err := parseTimestamp(doc.Modified)
	if err != nil {
		return fmt.Errorf("modified: %w", err)
	}
	*m = Metadata{
		Author:     doc.Author,
		Created:    created,
		Modified:   modified,
		Framework:  doc.Framework,
		Compatible: doc.Compatible,
	}
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// Name returns the template's display name.
func (d *TemplateDefinition) Name() string {
	return d.Header.Name
}

// Parent returns the name of the template this one extends, if any.
// template.extends wins over inheritance.parent.
func (d *TemplateDefinition) Parent() string {
	if parent := strings.TrimSpace(d.Header.Extends); parent != "" {
		return parent
	}
	return strings.TrimSpace(d.Inheritance.Parent)
}

func (d *TemplateDefinition) declaredKeys(block string) map[string]struct{} {
	if d.declared == nil {
		return nil
	}
	keys := d.declared[block]
	if keys == nil {
		return map[string]struct{}{}
	}
	return keys
}

// Clone returns a deep copy of the definition.
func (d *TemplateDefinition) Clone() *TemplateDefinition {
	if d == nil {
		return nil
	}
	out := *d
	out.Header = d.Header.clone()
	out.Variables = d.Variables.clone()
	out.Sections = cloneSections(d.Sections)
	out.Partials = cloneStringMap(d.Partials)
	out.Inheritance = d.Inheritance.clone()
	return &out
}

func (h Header) clone() Header {
	h.Tags = cloneStrings(h.Tags)
	return h
}

func (v Variables) clone() Variables {
	return Variables{
		Required: cloneStrings(v.Required),
		Optional: cloneStrings(v.Optional),
		Defaults: cloneMap(v.Defaults),
	}
}

func (i Inheritance) clone() Inheritance {
	out := Inheritance{
		Parent: i.Parent,
		Blocks: cloneMap(i.Blocks),
	}
	if i.Overrides != nil {
		out.Overrides = make(map[string]map[string]any, len(i.Overrides))
		for id, fields := range i.Overrides {
			out.Overrides[id] = cloneMap(fields)
		}
	}
	return out
}

// Clone returns a deep copy of the section and its subtree.
func (s Section) Clone() Section {
	s.Conditions = cloneMap(s.Conditions)
	s.Sections = cloneSections(s.Sections)
	s.Examples = cloneStrings(s.Examples)
	s.Validation = cloneMap(s.Validation)
	return s
}

func cloneSections(sections []Section) []Section {
	if sections == nil {
		return nil
	}
	out := make([]Section, len(sections))
	for i := range sections {
		out[i] = sections[i].Clone()
	}
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneStringMap(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func cloneMap(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return cloneStrings(v)
	default:
		return v
	}
}

// walkSections visits sections depth-first, pre-order. Returning false stops the walk.
func walkSections(sections []Section, visit func(*Section) bool) bool {
	for i := range sections {
		if !visit(&sections[i]) {
			return false
		}
		if !walkSections(sections[i].Sections, visit) {
			return false
		}
	}
	return true
}

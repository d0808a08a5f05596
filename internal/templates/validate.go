package templates

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/docforge/internal/models"
)

// Top-level document keys. Anything else is rejected; unknown keys inside
// sections are dropped while decoding.
const (
	keyTemplate    = "template"
	keyMetadata    = "metadata"
	keyWorkflow    = "workflow"
	keyVariables   = "variables"
	keySections    = "sections"
	keyPartials    = "partials"
	keyInheritance = "inheritance"
)

var documentKeys = map[string]struct{}{
	keyTemplate:    {},
	keyMetadata:    {},
	keyWorkflow:    {},
	keyVariables:   {},
	keySections:    {},
	keyPartials:    {},
	keyInheritance: {},
}

var (
	outputFormats = map[OutputFormat]struct{}{
		FormatMarkdown: {},
		FormatText:     {},
		FormatHTML:     {},
		FormatJSON:     {},
	}
	workflowModes = map[WorkflowMode]struct{}{
		ModeInteractive: {},
		ModeYolo:        {},
		ModeGuided:      {},
	}
	sectionTypes = map[SectionType]struct{}{
		SectionText:         {},
		SectionMarkdown:     {},
		SectionBulletList:   {},
		SectionNumberedList: {},
		SectionTable:        {},
		SectionCode:         {},
	}
)

// ParseDocument parses YAML source into a raw template document.
func ParseDocument(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse template document: %w", err)
	}
	if raw == nil {
		return nil, errors.New("template document is empty")
	}
	return raw, nil
}

// ParseTemplate parses and validates YAML source.
func ParseTemplate(data []byte) (*TemplateDefinition, error) {
	raw, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return Validate(raw)
}

// Validate checks a raw document against the template schema, applies defaults
// and returns the typed definition. All violations are reported together in a
// *ValidationError.
func Validate(raw map[string]any) (*TemplateDefinition, error) {
	validation := &models.ValidationErrors{}

	known := make(map[string]any, len(raw))
	for _, key := range sortedKeys(raw) {
		if _, ok := documentKeys[key]; !ok {
			validation.AddMessage(key, "unknown top-level key")
			continue
		}
		known[key] = raw[key]
	}

	header, hasHeader := raw[keyTemplate]
	switch {
	case !hasHeader || header == nil:
		validation.AddMessage(keyTemplate, "is required")
		hasHeader = false
	case !isMapping(header):
		validation.AddMessage(keyTemplate, "must be a mapping")
		hasHeader = false
		delete(known, keyTemplate)
	}

	sections, hasSections := raw[keySections]
	switch {
	case !hasSections:
		validation.AddMessage(keySections, "is required")
	case sections == nil:
	case !isList(sections):
		validation.AddMessage(keySections, "must be a list")
		delete(known, keySections)
	}

	def := &TemplateDefinition{}
	if err := decodeInto(known, def); err != nil {
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			validation.AddMessage("", err.Error())
			return nil, newValidationError(raw, validation)
		}
		for _, msg := range typeErr.Errors {
			validation.AddMessage("", msg)
		}
	}

	if hasHeader {
		if strings.TrimSpace(def.Header.ID) == "" {
			validation.AddMessage("template.id", "is required")
		}
		if strings.TrimSpace(def.Header.Name) == "" {
			validation.AddMessage("template.name", "is required")
		}
	}

	def.declared = declaredBlocks(raw)
	applyDefaults(def)
	validateEnums(def, validation)
	validateVariables(def.Variables, validation)
	validateSections(def.Sections, keySections, make(map[string]string), validation)

	for id := range def.Inheritance.Overrides {
		if strings.TrimSpace(id) == "" {
			validation.AddMessage("inheritance.overrides", "section id must not be empty")
		}
	}
	for name := range def.Partials {
		if strings.TrimSpace(name) == "" {
			validation.AddMessage(keyPartials, "partial name must not be empty")
		}
	}

	if validation.Len() > 0 {
		return nil, newValidationError(raw, validation)
	}
	return def, nil
}

func applyDefaults(def *TemplateDefinition) {
	def.Header.ID = strings.TrimSpace(def.Header.ID)
	def.Header.Name = strings.TrimSpace(def.Header.Name)
	def.Header.Extends = strings.TrimSpace(def.Header.Extends)
	def.Header.Version = strings.TrimSpace(def.Header.Version)
	if def.Header.Version == "" {
		def.Header.Version = DefaultVersion
	}
	def.Header.Tags = uniqueStrings(def.Header.Tags)
	if def.Header.Output.Format == "" {
		def.Header.Output.Format = FormatMarkdown
	}
	if def.Workflow.Mode == "" {
		def.Workflow.Mode = ModeInteractive
	}
	if def.Variables.Required == nil {
		def.Variables.Required = []string{}
	}
	if def.Variables.Optional == nil {
		def.Variables.Optional = []string{}
	}
	if def.Variables.Defaults == nil {
		def.Variables.Defaults = map[string]any{}
	}
	if def.Sections == nil {
		def.Sections = []Section{}
	}
	def.Inheritance.Parent = strings.TrimSpace(def.Inheritance.Parent)
}

func validateEnums(def *TemplateDefinition, validation *models.ValidationErrors) {
	if _, ok := outputFormats[def.Header.Output.Format]; !ok {
		validation.Addf("template.output.format", "unsupported format %q", def.Header.Output.Format)
	}
	if _, ok := workflowModes[def.Workflow.Mode]; !ok {
		validation.Addf("workflow.mode", "unsupported mode %q", def.Workflow.Mode)
	}
}

func validateVariables(vars Variables, validation *models.ValidationErrors) {
	for i, name := range vars.Required {
		if strings.TrimSpace(name) == "" {
			validation.AddMessage(fmt.Sprintf("variables.required[%d]", i), "must not be empty")
		}
	}
	for i, name := range vars.Optional {
		if strings.TrimSpace(name) == "" {
			validation.AddMessage(fmt.Sprintf("variables.optional[%d]", i), "must not be empty")
		}
	}
}

// validateSections applies the section contract at every depth. seen maps a
// section id to the path where it was first defined.
func validateSections(sections []Section, path string, seen map[string]string, validation *models.ValidationErrors) {
	for i := range sections {
		section := &sections[i]
		sectionPath := fmt.Sprintf("%s[%d]", path, i)

		section.ID = strings.TrimSpace(section.ID)
		switch first, duplicate := seen[section.ID]; {
		case section.ID == "":
			validation.AddMessage(sectionPath+".id", "is required")
		case duplicate:
			validation.Addf(sectionPath+".id", "duplicate section id %q (first defined at %s)", section.ID, first)
		default:
			seen[section.ID] = sectionPath
		}

		if section.Type == "" {
			section.Type = SectionText
		} else if _, ok := sectionTypes[section.Type]; !ok {
			validation.Addf(sectionPath+".type", "unsupported section type %q", section.Type)
		}

		for key := range section.Conditions {
			if strings.TrimSpace(key) == "" {
				validation.AddMessage(sectionPath+".conditions", "condition key must not be empty")
			}
		}

		validateSections(section.Sections, sectionPath+".sections", seen, validation)
	}
}

func declaredBlocks(raw map[string]any) map[string]map[string]struct{} {
	declared := make(map[string]map[string]struct{})
	for _, block := range []string{keyTemplate, keyMetadata, keyWorkflow, keyVariables} {
		value, ok := raw[block]
		if !ok || !isMapping(value) {
			continue
		}
		keys := make(map[string]struct{})
		iter := reflect.ValueOf(value).MapRange()
		for iter.Next() {
			keys[fmt.Sprint(iter.Key().Interface())] = struct{}{}
		}
		declared[block] = keys
	}
	return declared
}

func newValidationError(raw map[string]any, validation *models.ValidationErrors) *ValidationError {
	return &ValidationError{
		Name:       documentName(raw),
		Violations: validation.Messages(),
	}
}

func documentName(raw map[string]any) string {
	header, ok := raw[keyTemplate].(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"id", "name"} {
		if value, ok := header[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// decodeInto converts a loosely typed value into out using the YAML mapping rules.
func decodeInto(value any, out any) error {
	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return err
	}
	return node.Decode(out)
}

// Document converts the definition back into a raw document.
func (d *TemplateDefinition) Document() (map[string]any, error) {
	var raw map[string]any
	if err := decodeInto(d, &raw); err != nil {
		return nil, fmt.Errorf("encode template %q: %w", d.Header.ID, err)
	}
	return raw, nil
}

// Marshal serializes the definition to YAML.
func (d *TemplateDefinition) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal template %q: %w", d.Header.ID, err)
	}
	return data, nil
}

// MarshalSource serializes the definition keeping, in the template, metadata,
// workflow and variables blocks, only the keys its source declared. Defaults
// filled in by validation are left out so a saved child template still
// inherits them from its parent. Definitions produced by Merge carry no
// declarations and are written in full.
func (d *TemplateDefinition) MarshalSource() ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(d); err != nil {
		return nil, fmt.Errorf("marshal template %q: %w", d.Header.ID, err)
	}
	if d.declared != nil && node.Kind == yaml.MappingNode {
		node.Content = filterDeclared(node.Content, d.declared)
	}
	data, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("marshal template %q: %w", d.Header.ID, err)
	}
	return data, nil
}

// filterDeclared drops undeclared header-block keys from mapping node
// content (alternating key and value nodes).
func filterDeclared(content []*yaml.Node, declared map[string]map[string]struct{}) []*yaml.Node {
	out := make([]*yaml.Node, 0, len(content))
	for i := 0; i+1 < len(content); i += 2 {
		key, value := content[i], content[i+1]
		switch key.Value {
		case keyTemplate, keyMetadata, keyWorkflow, keyVariables:
			keys, ok := declared[key.Value]
			if !ok {
				continue
			}
			if value.Kind == yaml.MappingNode {
				kept := make([]*yaml.Node, 0, len(value.Content))
				for j := 0; j+1 < len(value.Content); j += 2 {
					if _, keep := keys[value.Content[j].Value]; keep {
						kept = append(kept, value.Content[j], value.Content[j+1])
					}
				}
				value.Content = kept
			}
		}
		out = append(out, key, value)
	}
	return out
}

// declare marks keys of block as set by the source.
func (d *TemplateDefinition) declare(block string, keys ...string) {
	if d.declared == nil {
		return
	}
	next := make(map[string]map[string]struct{}, len(d.declared)+1)
	for name, set := range d.declared {
		next[name] = set
	}
	set := make(map[string]struct{}, len(next[block])+len(keys))
	for key := range next[block] {
		set[key] = struct{}{}
	}
	for _, key := range keys {
		set[key] = struct{}{}
	}
	next[block] = set
	d.declared = next
}

func isMapping(value any) bool {
	return value != nil && reflect.TypeOf(value).Kind() == reflect.Map
}

func isList(value any) bool {
	if value == nil {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func uniqueStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

package templates

import (
	"errors"
	"fmt"

	"github.com/opencode-ai/docforge/internal/models"
)

// Merge composes child over parent. parent must already be fully resolved; the
// result is a new definition and neither input is modified.
//
// The child's template, metadata, workflow and variables blocks win key by key
// over the parent's (nested values are replaced wholesale). Section overrides
// are shallow-assigned onto the first matching section, depth-first, and the
// child's own sections are appended after the inherited ones.
func Merge(child, parent *TemplateDefinition) (*TemplateDefinition, error) {
	if child == nil || parent == nil {
		return nil, errors.New("child and parent templates are required")
	}

	merged := parent.Clone()
	merged.Source = child.Source
	merged.declared = nil

	if err := mergeBlock(parent.Header, child.Header, child.declaredKeys(keyTemplate), &merged.Header); err != nil {
		return nil, fmt.Errorf("merge template header: %w", err)
	}
	if err := mergeBlock(parent.Metadata, child.Metadata, child.declaredKeys(keyMetadata), &merged.Metadata); err != nil {
		return nil, fmt.Errorf("merge metadata: %w", err)
	}
	if err := mergeBlock(parent.Workflow, child.Workflow, child.declaredKeys(keyWorkflow), &merged.Workflow); err != nil {
		return nil, fmt.Errorf("merge workflow: %w", err)
	}
	if err := mergeBlock(parent.Variables, child.Variables, child.declaredKeys(keyVariables), &merged.Variables); err != nil {
		return nil, fmt.Errorf("merge variables: %w", err)
	}
	merged.Header.Extends = child.Header.Extends
	applyDefaults(merged)

	if len(child.Partials) > 0 {
		if merged.Partials == nil {
			merged.Partials = make(map[string]string, len(child.Partials))
		}
		for name, text := range child.Partials {
			merged.Partials[name] = text
		}
	}
	merged.Inheritance = child.Inheritance.clone()

	validation := &models.ValidationErrors{}
	for _, id := range sortedKeys(child.Inheritance.Overrides) {
		target := findSection(merged.Sections, id)
		if target == nil {
			continue
		}
		if err := applyOverride(target, child.Inheritance.Overrides[id]); err != nil {
			validation.Addf("inheritance.overrides."+id, "%v", err)
		}
	}

	merged.Sections = append(merged.Sections, cloneSections(child.Sections)...)
	validateSections(merged.Sections, keySections, make(map[string]string), validation)

	if validation.Len() > 0 {
		return nil, &ValidationError{Name: child.Header.ID, Violations: validation.Messages()}
	}
	return merged, nil
}

// mergeBlock overlays the child's declared keys onto the parent's block.
// When declared is nil every key the child encodes wins.
func mergeBlock[T any](parent, child T, declared map[string]struct{}, out *T) error {
	var base, overlay map[string]any
	if err := decodeInto(parent, &base); err != nil {
		return err
	}
	if err := decodeInto(child, &overlay); err != nil {
		return err
	}
	if base == nil {
		base = make(map[string]any)
	}

	if declared == nil {
		for key, value := range overlay {
			base[key] = value
		}
	} else {
		for key := range declared {
			if value, ok := overlay[key]; ok {
				base[key] = value
			} else {
				delete(base, key)
			}
		}
	}

	var merged T
	if err := decodeInto(base, &merged); err != nil {
		return err
	}
	*out = merged
	return nil
}

// findSection returns the first section with id, depth-first pre-order.
func findSection(sections []Section, id string) *Section {
	var found *Section
	walkSections(sections, func(section *Section) bool {
		if section.ID == id {
			found = section
			return false
		}
		return true
	})
	return found
}

// applyOverride shallow-assigns fields onto section.
func applyOverride(section *Section, fields map[string]any) error {
	var current map[string]any
	if err := decodeInto(*section, &current); err != nil {
		return err
	}
	if current == nil {
		current = make(map[string]any)
	}
	for key, value := range fields {
		current[key] = value
	}

	var updated Section
	if err := decodeInto(current, &updated); err != nil {
		return err
	}
	*section = updated
	return nil
}

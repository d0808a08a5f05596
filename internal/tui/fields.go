package tui

import (
	"fmt"
	"strings"

	"github.com/opencode-ai/docforge/internal/templates"
)

// Field is one value the form asks for.
type Field struct {
	Key      string // context key, dotted for nested values
	Label    string
	Hint     string
	Default  string
	Required bool
}

// Fields lists the values a render of def still needs: required variables,
// then optional variables, then sections marked elicit. Keys already present
// in data are skipped. An elicited section's answer is stored under the
// section id.
func Fields(def *templates.TemplateDefinition, data map[string]any) []Field {
	seen := make(map[string]struct{})
	var fields []Field
	add := func(field Field) {
		field.Key = strings.TrimSpace(field.Key)
		if field.Key == "" {
			return
		}
		if _, dup := seen[field.Key]; dup {
			return
		}
		seen[field.Key] = struct{}{}
		if hasKey(data, field.Key) {
			return
		}
		fields = append(fields, field)
	}

	for _, name := range def.Variables.Required {
		add(Field{Key: name, Label: name, Required: true, Default: defaultText(def.Variables.Defaults, name)})
	}
	for _, name := range def.Variables.Optional {
		add(Field{Key: name, Label: name, Default: defaultText(def.Variables.Defaults, name)})
	}

	var walk func(sections []templates.Section)
	walk = func(sections []templates.Section) {
		for _, section := range sections {
			if section.Elicit {
				label := strings.TrimSpace(section.Title)
				if label == "" {
					label = section.ID
				}
				add(Field{
					Key:      section.ID,
					Label:    label,
					Hint:     strings.TrimSpace(section.Instruction),
					Required: section.Required,
				})
			}
			walk(section.Sections)
		}
	}
	walk(def.Sections)

	return fields
}

func defaultText(defaults map[string]any, name string) string {
	value, ok := defaults[name]
	if !ok || value == nil {
		return ""
	}
	switch value.(type) {
	case map[string]any, []any:
		return ""
	}
	return fmt.Sprint(value)
}

// hasKey reports whether a dotted key resolves in data.
func hasKey(data map[string]any, key string) bool {
	current := data
	parts := strings.Split(key, ".")
	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		next, ok := value.(map[string]any)
		if !ok {
			return false
		}
		current = next
	}
	return false
}

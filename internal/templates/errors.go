package templates

import (
	"errors"
	"fmt"
	"strings"
)

// Template errors.
var (
	ErrNotFound         = errors.New("template not found")
	ErrValidation       = errors.New("template validation failed")
	ErrMissingVariables = errors.New("missing required variables")
	ErrRender           = errors.New("template render failed")
)

// NotFoundError is returned when no source resolves for a template name.
type NotFoundError struct {
	Name  string
	Tried []string
}

func (e *NotFoundError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("template %q not found", e.Name)
	}
	return fmt.Sprintf("template %q not found (tried %s)", e.Name, strings.Join(e.Tried, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError lists every schema violation found in a template document.
type ValidationError struct {
	Name       string
	Violations []string
}

func (e *ValidationError) Error() string {
	prefix := "template validation failed"
	if e.Name != "" {
		prefix = fmt.Sprintf("template %q validation failed", e.Name)
	}
	return prefix + ": " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// MissingVariablesError is returned when required context variables are absent at render time.
type MissingVariablesError struct {
	Template string
	Names    []string
}

func (e *MissingVariablesError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, name := range e.Names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("template %q: missing required variable(s) %s", e.Template, strings.Join(quoted, ", "))
}

func (e *MissingVariablesError) Is(target error) bool {
	return target == ErrMissingVariables
}

// RenderError wraps a failure compiling or executing one template string.
type RenderError struct {
	Template string
	Section  string
	Err      error
}

func (e *RenderError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("render template %q: %v", e.Template, e.Err)
	}
	return fmt.Sprintf("render template %q section %q: %v", e.Template, e.Section, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}

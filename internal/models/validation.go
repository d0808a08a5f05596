// Package models defines value types shared across docforge packages.
package models

import (
	"fmt"
	"strings"
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every violation found while checking a value.
type ValidationErrors struct {
	Errors []ValidationError
}

// AddMessage records a violation for field.
func (v *ValidationErrors) AddMessage(field, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// Addf records a formatted violation for field.
func (v *ValidationErrors) Addf(field, format string, args ...any) {
	v.AddMessage(field, fmt.Sprintf(format, args...))
}

// Len returns the number of violations collected.
func (v *ValidationErrors) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Errors)
}

// Messages returns each violation rendered as "field: message".
func (v *ValidationErrors) Messages() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v.Errors))
	for _, err := range v.Errors {
		out = append(out, err.String())
	}
	return out
}

// Err returns nil when nothing was collected, otherwise v itself.
func (v *ValidationErrors) Err() error {
	if v.Len() == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(v.Messages(), "; ")
}

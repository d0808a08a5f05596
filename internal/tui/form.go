// Package tui implements the interactive form used to collect template
// context before rendering.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/opencode-ai/docforge/internal/tui/styles"
)

// ErrCanceled is returned when the user leaves the form without submitting.
var ErrCanceled = errors.New("input canceled")

const (
	minWidth     = 40
	defaultWidth = 80
)

// Form is a bubbletea model that asks for each field in turn.
type Form struct {
	title    string
	fields   []Field
	values   []string
	index    int
	err      string
	width    int
	styles   styles.Styles
	done     bool
	canceled bool
}

// NewForm creates a form for fields.
func NewForm(title string, fields []Field, styleSet styles.Styles) Form {
	return Form{
		title:  title,
		fields: fields,
		values: make([]string, len(fields)),
		styles: styleSet,
	}
}

// Run shows the form on out, reading keys from in, and returns the submitted
// values keyed by field key.
func Run(ctx context.Context, form Form, in io.Reader, out io.Writer) (map[string]string, error) {
	if len(form.fields) == 0 {
		return map[string]string{}, nil
	}
	program := tea.NewProgram(form, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("run form: %w", err)
	}
	result, ok := final.(Form)
	if !ok {
		return nil, fmt.Errorf("run form: unexpected model %T", final)
	}
	if result.Canceled() {
		return nil, ErrCanceled
	}
	return result.Values(), nil
}

func (f Form) Init() tea.Cmd {
	return nil
}

func (f Form) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return f.handleKey(msg)
	case tea.WindowSizeMsg:
		f.width = msg.Width
	}
	return f, nil
}

func (f Form) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if f.done || f.canceled {
		return f, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		f.canceled = true
		return f, tea.Quit
	case tea.KeyEnter:
		if f.missing(f.index) {
			f.err = fmt.Sprintf("%s is required", f.fields[f.index].Label)
			return f, nil
		}
		f.err = ""
		if f.index == len(f.fields)-1 {
			if first := f.firstMissing(); first >= 0 {
				f.index = first
				f.err = fmt.Sprintf("%s is required", f.fields[first].Label)
				return f, nil
			}
			f.done = true
			return f, tea.Quit
		}
		f.index++
	case tea.KeyTab, tea.KeyDown:
		f.err = ""
		f.index = (f.index + 1) % len(f.fields)
	case tea.KeyShiftTab, tea.KeyUp:
		f.err = ""
		f.index = (f.index - 1 + len(f.fields)) % len(f.fields)
	case tea.KeyBackspace:
		runes := []rune(f.values[f.index])
		if len(runes) > 0 {
			f.values[f.index] = string(runes[:len(runes)-1])
		}
	case tea.KeyCtrlU:
		f.values[f.index] = ""
	case tea.KeyRunes, tea.KeySpace:
		f.values[f.index] += string(msg.Runes)
	}
	return f, nil
}

// missing reports whether a required field has neither input nor default.
func (f Form) missing(i int) bool {
	field := f.fields[i]
	return field.Required && strings.TrimSpace(f.values[i]) == "" && field.Default == ""
}

func (f Form) firstMissing() int {
	for i := range f.fields {
		if f.missing(i) {
			return i
		}
	}
	return -1
}

// Done reports whether the form was submitted.
func (f Form) Done() bool { return f.done }

// Canceled reports whether the user left the form.
func (f Form) Canceled() bool { return f.canceled }

// Values returns entered values, falling back to field defaults. Optional
// fields left blank are omitted.
func (f Form) Values() map[string]string {
	values := make(map[string]string, len(f.fields))
	for i, field := range f.fields {
		value := strings.TrimSpace(f.values[i])
		if value == "" {
			value = field.Default
		}
		if value == "" {
			continue
		}
		values[field.Key] = value
	}
	return values
}

func (f Form) View() string {
	if f.done || f.canceled {
		return ""
	}

	width := f.width
	if width <= 0 {
		width = defaultWidth
	}

	lines := []string{
		f.styles.Title.Render(f.title),
		f.styles.Muted.Render(fmt.Sprintf("Field %d of %d", f.index+1, len(f.fields))),
		"",
	}
	for i, field := range f.fields {
		label := field.Label
		if field.Required {
			label += " *"
		}
		value := f.values[i]
		if value == "" && field.Default != "" {
			value = f.styles.Muted.Render(field.Default)
		}
		if i == f.index {
			lines = append(lines, f.styles.Focus.Render("> "+label+": ")+value+"_")
			if field.Hint != "" && width >= minWidth {
				lines = append(lines, f.styles.Muted.Render("  "+truncate(field.Hint, width-2)))
			}
			continue
		}
		lines = append(lines, f.styles.Text.Render("  "+label+": ")+value)
	}
	if f.err != "" {
		lines = append(lines, "", f.styles.Error.Render(f.err))
	}
	lines = append(lines, "", f.styles.Muted.Render("enter next | tab/shift+tab move | ctrl+u clear | esc cancel"))
	return f.styles.Panel.Render(strings.Join(lines, "\n")) + "\n"
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if limit <= 3 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

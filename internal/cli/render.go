package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/docforge/internal/templates"
	"github.com/opencode-ai/docforge/internal/tui"
	"github.com/opencode-ai/docforge/internal/tui/styles"
)

var (
	renderSet          []string
	renderContextFile  string
	renderInstructions bool
	renderExamples     bool
	renderFormat       string
	renderOut          string
	renderSave         bool
	renderInteractive  bool
	renderTheme        string
)

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringArrayVar(&renderSet, "set", nil, "set a context variable (key=value, repeatable; dotted keys nest)")
	renderCmd.Flags().StringVar(&renderContextFile, "context", "", "JSON, JSONC or YAML file with context variables (- for stdin)")
	renderCmd.Flags().BoolVar(&renderInstructions, "instructions", false, "include section instructions as comments")
	renderCmd.Flags().BoolVar(&renderExamples, "examples", false, "include section examples")
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "", "output format: markdown, text, html or json")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "write the document to a file")
	renderCmd.Flags().BoolVar(&renderSave, "save", false, "write the document to its template-defined filename")
	renderCmd.Flags().BoolVarP(&renderInteractive, "interactive", "i", false, "prompt for missing variables and elicited sections")
	renderCmd.Flags().StringVar(&renderTheme, "theme", "", "color theme for --interactive (default, high-contrast)")
}

var renderCmd = &cobra.Command{
	Use:   "render <name>",
	Short: "Render a template",
	Long: `Render a template with context variables.

Context is read from --context and then overridden by --set values. Values
given with --set are parsed as YAML scalars, so count=3 is a number and
draft=true is a boolean.

With --interactive, a form asks for required and optional variables missing
from the context and for sections marked elicit. An elicited section's answer
is stored under the section id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		context, err := buildContext(cmd.InOrStdin(), renderContextFile, renderSet)
		if err != nil {
			return err
		}

		engine, closeEngine, err := newEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		if renderInteractive {
			if err := elicitContext(cmd, engine, args[0], context); err != nil {
				return err
			}
		}

		opts := renderOptions(cmd)
		result, err := engine.RenderTemplate(args[0], context, opts)
		if err != nil {
			return err
		}

		target := renderOut
		if target == "" && renderSave {
			target = result.Metadata.Filename
		}

		if IsJSONOutput() || IsJSONLOutput() {
			if target != "" {
				if err := writeDocument(target, result.Content); err != nil {
					return err
				}
			}
			return WriteOutput(cmd.OutOrStdout(), result)
		}

		if target == "" {
			_, err := io.WriteString(cmd.OutOrStdout(), result.Content)
			return err
		}

		progress := startProgress(fmt.Sprintf("Writing %s", target))
		if err := writeDocument(target, result.Content); err != nil {
			progress.Fail(err)
			return err
		}
		progress.DoneWith(humanize.Bytes(uint64(len(result.Content))))
		return nil
	},
}

// elicitContext asks for the values a render of name still needs and adds
// them to data.
func elicitContext(cmd *cobra.Command, engine *templates.Engine, name string, data map[string]any) error {
	if !IsInteractive() {
		return &PreflightError{
			Message:  "--interactive needs a terminal",
			Hint:     "Pass values with --set or --context instead",
			NextStep: fmt.Sprintf("docforge render %s --set key=value", name),
		}
	}

	def, err := engine.GetTemplate(name)
	if err != nil {
		return err
	}
	fields := tui.Fields(def, data)
	if len(fields) == 0 {
		return nil
	}

	themeName := renderTheme
	if !cmd.Flags().Changed("theme") {
		themeName = GetConfig().Render.Theme
	}
	theme, err := styles.Lookup(themeName)
	if err != nil {
		return err
	}

	title := def.Header.Name
	if title == "" {
		title = name
	}
	form := tui.NewForm("Render "+title, fields, styles.BuildStyles(theme))
	answers, err := tui.Run(cmd.Context(), form, cmd.InOrStdin(), cmd.ErrOrStderr())
	if errors.Is(err, tui.ErrCanceled) {
		return errors.New("render canceled")
	}
	if err != nil {
		return err
	}
	applyAnswers(data, answers)
	return nil
}

// applyAnswers sets form answers in data. Dotted keys nest and values are
// parsed like --set values.
func applyAnswers(data map[string]any, answers map[string]string) {
	keys := make([]string, 0, len(answers))
	for key := range answers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		setNested(data, strings.Split(key, "."), parseScalar(answers[key]))
	}
}

// renderOptions merges configured defaults with explicitly set flags.
func renderOptions(cmd *cobra.Command) templates.RenderOptions {
	cfg := GetConfig()
	opts := templates.RenderOptions{
		IncludeInstructions: cfg.Render.IncludeInstructions,
		IncludeExamples:     cfg.Render.IncludeExamples,
		Format:              templates.OutputFormat(cfg.Render.Format),
	}
	if cmd.Flags().Changed("instructions") {
		opts.IncludeInstructions = renderInstructions
	}
	if cmd.Flags().Changed("examples") {
		opts.IncludeExamples = renderExamples
	}
	if cmd.Flags().Changed("format") {
		opts.Format = templates.OutputFormat(strings.ToLower(strings.TrimSpace(renderFormat)))
	}
	return opts
}

func writeDocument(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// buildContext reads the context file, if any, and applies --set values.
func buildContext(stdin io.Reader, contextFile string, sets []string) (map[string]any, error) {
	context := map[string]any{}
	if contextFile != "" {
		loaded, err := loadContextFile(stdin, contextFile)
		if err != nil {
			return nil, err
		}
		context = loaded
	}

	vars, err := parseVars(sets)
	if err != nil {
		return nil, err
	}
	for _, v := range vars {
		setNested(context, v.path, v.value)
	}
	return context, nil
}

func loadContextFile(stdin io.Reader, path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read context: %w", err)
	}

	context := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &context); err != nil {
			return nil, fmt.Errorf("parse context %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &context); err != nil {
			return nil, fmt.Errorf("parse context %s: %w", path, err)
		}
	}
	if context == nil {
		context = map[string]any{}
	}
	return context, nil
}

type contextVar struct {
	path  []string
	value any
}

// parseVars parses key=value pairs. Values are decoded as YAML scalars;
// anything that decodes to a collection is kept as the raw string.
func parseVars(values []string) ([]contextVar, error) {
	vars := make([]contextVar, 0, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable %q: expected key=value", raw)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid variable %q: empty key", raw)
		}
		path := strings.Split(key, ".")
		for _, part := range path {
			if part == "" {
				return nil, fmt.Errorf("invalid variable %q: empty key segment", raw)
			}
		}
		vars = append(vars, contextVar{path: path, value: parseScalar(value)})
	}
	return vars, nil
}

func parseScalar(value string) any {
	if strings.TrimSpace(value) == "" {
		return value
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil {
		return value
	}
	switch decoded.(type) {
	case map[string]any, []any, nil:
		return value
	}
	return decoded
}

func setNested(target map[string]any, path []string, value any) {
	for _, key := range path[:len(path)-1] {
		next, ok := target[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			target[key] = next
		}
		target = next
	}
	target[path[len(path)-1]] = value
}

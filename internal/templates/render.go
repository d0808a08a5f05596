package templates

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"text/template"
	"text/template/parse"
	"time"

	"github.com/google/uuid"
)

// Heading levels. Top-level sections render as level-2 headings.
const (
	baseHeadingLevel = 2
	maxHeadingLevel  = 6
)

// RenderOptions controls optional parts of a render.
type RenderOptions struct {
	IncludeInstructions bool
	IncludeExamples     bool
	// Format overrides the template's output format when set.
	Format OutputFormat
}

// RenderMetadata describes a completed render.
type RenderMetadata struct {
	Template         string         `json:"template"`
	RenderID         string         `json:"render_id"`
	RenderedAt       time.Time      `json:"rendered_at"`
	Context          map[string]any `json:"context"`
	SectionCount     int            `json:"section_count"`
	RenderedSections int            `json:"rendered_sections"`
	Title            string         `json:"title,omitempty"`
	Filename         string         `json:"filename,omitempty"`
	Format           OutputFormat   `json:"format"`
}

// RenderResult is the output of a render.
type RenderResult struct {
	Content  string         `json:"content"`
	Metadata RenderMetadata `json:"metadata"`
}

// Renderer walks a template's section tree against a context.
type Renderer struct {
	registry *Registry
	now      func() time.Time
}

// NewRenderer creates a renderer that compiles strings with registry.
func NewRenderer(registry *Registry) *Renderer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Renderer{registry: registry, now: time.Now}
}

// HeadingLevel returns the markdown heading level for a section at depth.
func HeadingLevel(depth int) int {
	level := depth + baseHeadingLevel
	if level > maxHeadingLevel {
		return maxHeadingLevel
	}
	return level
}

// Render renders def against context. It fails before emitting anything when
// required variables are missing, and stops at the first failing string.
func (r *Renderer) Render(def *TemplateDefinition, context map[string]any, opts RenderOptions) (*RenderResult, error) {
	if def == nil {
		return nil, errors.New("template is required")
	}

	vars := make(map[string]any, len(def.Variables.Defaults)+len(context))
	for key, value := range def.Variables.Defaults {
		vars[key] = value
	}
	for key, value := range context {
		vars[key] = value
	}

	var missing []string
	for _, name := range def.Variables.Required {
		if value, ok := vars[name]; !ok || value == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingVariablesError{Template: def.Header.ID, Names: missing}
	}

	data := make(map[string]any, len(vars)+3)
	for key, value := range vars {
		data[key] = value
	}
	if err := addIntrospection(def, data); err != nil {
		return nil, &RenderError{Template: def.Header.ID, Err: err}
	}

	walk := &sectionWalk{renderer: r, def: def, data: data, opts: opts}
	if err := walk.sections(def.Sections, 0); err != nil {
		return nil, err
	}

	format := opts.Format
	if format == "" {
		format = def.Header.Output.Format
	}
	title, err := walk.render("output.title", "", def.Header.Output.Title)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = def.Header.Name
	}
	filename, err := walk.render("output.filename", "", def.Header.Output.Filename)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = def.Header.ID + FileExtension(format)
	}

	content := ""
	if len(walk.blocks) > 0 {
		content = strings.Join(walk.blocks, "\n\n") + "\n"
	}
	content, err = FormatContent(format, title, filename, content)
	if err != nil {
		return nil, &RenderError{Template: def.Header.ID, Err: err}
	}

	return &RenderResult{
		Content: content,
		Metadata: RenderMetadata{
			Template:         def.Header.ID,
			RenderID:         uuid.New().String(),
			RenderedAt:       r.now().UTC(),
			Context:          vars,
			SectionCount:     len(def.Sections),
			RenderedSections: walk.rendered,
			Title:            title,
			Filename:         filename,
			Format:           format,
		},
	}, nil
}

// addIntrospection exposes the definition's own header blocks as _template,
// _metadata and _workflow.
func addIntrospection(def *TemplateDefinition, data map[string]any) error {
	blocks := map[string]any{
		"_template": def.Header,
		"_metadata": def.Metadata,
		"_workflow": def.Workflow,
	}
	for key, block := range blocks {
		var out map[string]any
		if err := decodeInto(block, &out); err != nil {
			return fmt.Errorf("expose %s: %w", key, err)
		}
		if out == nil {
			out = map[string]any{}
		}
		data[key] = out
	}
	return nil
}

type sectionWalk struct {
	renderer *Renderer
	def      *TemplateDefinition
	data     map[string]any
	opts     RenderOptions
	blocks   []string
	rendered int
}

func (w *sectionWalk) sections(sections []Section, depth int) error {
	for i := range sections {
		if err := w.section(&sections[i], depth); err != nil {
			return err
		}
	}
	return nil
}

func (w *sectionWalk) section(section *Section, depth int) error {
	if !conditionsMet(section.Conditions, w.data) {
		return nil
	}
	w.rendered++

	if section.Title != "" {
		title, err := w.render(section.ID+".title", section.ID, section.Title)
		if err != nil {
			return err
		}
		if title != "" {
			w.blocks = append(w.blocks, strings.Repeat("#", HeadingLevel(depth))+" "+title)
		}
	}

	if w.opts.IncludeInstructions && section.Instruction != "" {
		instruction, err := w.render(section.ID+".instruction", section.ID, section.Instruction)
		if err != nil {
			return err
		}
		if instruction != "" {
			w.blocks = append(w.blocks, "<!-- Instruction: "+instruction+" -->")
		}
	}

	for _, body := range []struct{ field, text string }{
		{"template", section.Template},
		{"content", section.Content},
	} {
		if body.text == "" {
			continue
		}
		out, err := w.render(section.ID+"."+body.field, section.ID, body.text)
		if err != nil {
			return err
		}
		if out != "" {
			w.blocks = append(w.blocks, out)
		}
	}

	if err := w.sections(section.Sections, depth+1); err != nil {
		return err
	}

	if w.opts.IncludeExamples && len(section.Examples) > 0 {
		lines := make([]string, 0, len(section.Examples)+1)
		lines = append(lines, "**Examples:**")
		for i, example := range section.Examples {
			out, err := w.render(fmt.Sprintf("%s.examples[%d]", section.ID, i), section.ID, example)
			if err != nil {
				return err
			}
			lines = append(lines, "- "+out)
		}
		w.blocks = append(w.blocks, strings.Join(lines, "\n"))
	}
	return nil
}

// render compiles and executes one template string. Missing values render empty.
func (w *sectionWalk) render(name, sectionID, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	tmpl, err := w.renderer.registry.Compile(w.def.Header.ID+"/"+name, text, w.def.Partials)
	if err != nil {
		return "", &RenderError{Template: w.def.Header.ID, Section: sectionID, Err: err}
	}
	data := w.data
	if seed := missingFields(tmpl, w.data); len(seed) > 0 {
		data = maps.Clone(w.data)
		maps.Copy(data, seed)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", &RenderError{Template: w.def.Header.ID, Section: sectionID, Err: err}
	}
	return strings.TrimSpace(out.String()), nil
}

// missingFields returns empty values for top-level fields that tmpl prints
// directly but data lacks. Fields used as range or with pipelines stay
// unset so they iterate or branch as nil.
func missingFields(tmpl *template.Template, data map[string]any) map[string]any {
	scan := fieldScan{structural: map[string]bool{}}
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			scan.list(t.Tree.Root, true)
		}
	}

	var seed map[string]any
	for _, path := range scan.printed {
		if _, ok := data[path[0]]; ok || scan.structural[path[0]] {
			continue
		}
		if seed == nil {
			seed = map[string]any{}
		}
		node := seed
		for i, name := range path {
			if i == len(path)-1 {
				if _, ok := node[name]; !ok {
					node[name] = ""
				}
				break
			}
			child, ok := node[name].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[name] = child
			}
			node = child
		}
	}
	return seed
}

type fieldScan struct {
	printed    [][]string
	structural map[string]bool
}

// list walks a node list. topDot is false inside range and with bodies,
// where dot no longer refers to the render data.
func (s *fieldScan) list(list *parse.ListNode, topDot bool) {
	if list == nil {
		return
	}
	for _, node := range list.Nodes {
		switch n := node.(type) {
		case *parse.ActionNode:
			if len(n.Pipe.Decl) == 0 && len(n.Pipe.Cmds) == 1 && len(n.Pipe.Cmds[0].Args) == 1 {
				if path := dataPath(n.Pipe.Cmds[0].Args[0], topDot); path != nil {
					s.printed = append(s.printed, path)
				}
			}
		case *parse.IfNode:
			s.list(n.List, topDot)
			s.list(n.ElseList, topDot)
		case *parse.RangeNode:
			s.branch(&n.BranchNode, topDot)
		case *parse.WithNode:
			s.branch(&n.BranchNode, topDot)
		}
	}
}

func (s *fieldScan) branch(n *parse.BranchNode, topDot bool) {
	for _, cmd := range n.Pipe.Cmds {
		for _, arg := range cmd.Args {
			if path := dataPath(arg, topDot); path != nil {
				s.structural[path[0]] = true
			}
		}
	}
	s.list(n.List, false)
	s.list(n.ElseList, topDot)
}

// dataPath returns the field path node reads from the render data, if any.
func dataPath(node parse.Node, topDot bool) []string {
	switch n := node.(type) {
	case *parse.FieldNode:
		if topDot {
			return n.Ident
		}
	case *parse.VariableNode:
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			return n.Ident[1:]
		}
	}
	return nil
}

// conditionsMet reports whether every condition equals the context value.
func conditionsMet(conditions map[string]any, data map[string]any) bool {
	for key, expected := range conditions {
		actual, ok := data[key]
		if !ok || !valuesEqual(actual, expected) {
			return false
		}
	}
	return true
}

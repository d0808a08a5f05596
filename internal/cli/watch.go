package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/logging"
	"github.com/opencode-ai/docforge/internal/templates"
	"github.com/opencode-ai/docforge/internal/watcher"
)

var (
	watchRender string
	watchOut    string
	watchSet    []string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchRender, "render", "", "re-render this template after every change")
	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "file written by --render (default: stdout)")
	watchCmd.Flags().StringArrayVar(&watchSet, "set", nil, "context variable for --render (key=value, repeatable)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch template directories and revalidate on change",
	Long: `Watch the template directories. Changed templates are evicted from the
cache and revalidated; with --render a template is re-rendered after each change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := buildContext(nil, "", watchSet)
		if err != nil {
			return err
		}

		engine, closeEngine, err := newEngine()
		if err != nil {
			return err
		}
		defer closeEngine()
		if err := engine.Initialize(); err != nil {
			return err
		}

		dirs := watchableDirs(engine.Roots())
		if len(dirs) == 0 {
			return &PreflightError{
				Message:  "no template directories to watch",
				Hint:     "Create .docforge/templates or pass --templates-dir",
				NextStep: "docforge init",
			}
		}

		cfg := watcher.DefaultConfig(dirs...)
		cfg.DebounceDur = GetConfig().Watch.Debounce
		cfg.Logger = logging.Component("watcher")
		w, err := watcher.New(cfg)
		if err != nil {
			return err
		}
		changes, err := w.Start()
		if err != nil {
			_ = w.Stop()
			return err
		}
		defer func() { _ = w.Stop() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", strings.Join(dirs, ", "))

		session := &watchSession{
			engine:  engine,
			out:     out,
			render:  watchRender,
			target:  watchOut,
			context: vars,
			opts:    renderOptions(cmd),
		}
		if session.render != "" {
			session.rerender()
		}
		return session.run(ctx, changes)
	},
}

type watchSession struct {
	engine  *templates.Engine
	out     io.Writer
	render  string
	target  string
	context map[string]any
	opts    templates.RenderOptions
}

func (s *watchSession) run(ctx context.Context, changes <-chan []string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case names, ok := <-changes:
			if !ok {
				return nil
			}
			s.handle(names)
		}
	}
}

// handle revalidates changed templates. Every cached entry is evicted since
// templates extending a changed one hold a stale merge.
func (s *watchSession) handle(names []string) {
	for _, cached := range s.engine.GetStats().Cached {
		s.engine.Evict(cached)
	}

	for _, name := range names {
		if !s.engine.TemplateExists(name) {
			fmt.Fprintf(s.out, "%s: %s\n", name, styled(mutedStyle, "removed"))
			continue
		}
		if _, err := s.engine.GetTemplate(name); err != nil {
			fmt.Fprintf(s.out, "%s: %s %v\n", name, styled(errorStyle, "invalid"), err)
			continue
		}
		fmt.Fprintf(s.out, "%s: %s\n", name, styled(successStyle, "ok"))
	}

	if s.render != "" {
		s.rerender()
	}
}

func (s *watchSession) rerender() {
	result, err := s.engine.RenderTemplate(s.render, s.context, s.opts)
	if err != nil {
		fmt.Fprintf(s.out, "%s: %s %v\n", s.render, styled(errorStyle, "render failed"), err)
		return
	}
	if s.target == "" {
		_, _ = io.WriteString(s.out, result.Content)
		return
	}
	if err := writeDocument(s.target, result.Content); err != nil {
		fmt.Fprintf(s.out, "%s: %s %v\n", s.render, styled(errorStyle, "write failed"), err)
		return
	}
	fmt.Fprintf(s.out, "%s: rendered to %s\n", s.render, s.target)
}

// watchableDirs returns the OS directories among roots.
func watchableDirs(roots []templates.Root) []string {
	var dirs []string
	for _, root := range roots {
		dir := root.Dir
		if dir == "" && root.Name != templates.BuiltinSource {
			dir = root.Name
		}
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

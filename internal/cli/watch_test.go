package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencode-ai/docforge/internal/templates"
)

func newWatchSession(t *testing.T) (*watchSession, string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	writeTemplateFile(t, dir, "brief.yaml", `
template: {id: brief, name: Brief}
sections:
  - id: summary
    title: Summary
    template: "Project {{.project}}"
`)
	engine := templates.New(templates.WithDir(dir), templates.WithBuiltins(false))
	if err := engine.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var out bytes.Buffer
	return &watchSession{
		engine:  engine,
		out:     &out,
		context: map[string]any{"project": "Atlas"},
		opts:    templates.RenderOptions{Format: templates.FormatMarkdown},
	}, dir, &out
}

func TestWatchSessionRevalidatesChanges(t *testing.T) {
	session, dir, out := newWatchSession(t)

	if _, err := session.engine.GetTemplate("brief"); err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}

	writeTemplateFile(t, dir, "brief.yaml", `
template: {id: brief}
sections: []
`)
	session.handle([]string{"brief"})
	if !strings.Contains(out.String(), "brief: invalid") {
		t.Errorf("expected invalid report, got %q", out.String())
	}
	if n := session.engine.GetStats().CachedTemplates; n != 0 {
		t.Errorf("expected empty cache, got %d entries", n)
	}

	out.Reset()
	if err := os.Remove(filepath.Join(dir, "brief.yaml")); err != nil {
		t.Fatal(err)
	}
	session.handle([]string{"brief"})
	if out.String() != "brief: removed\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestWatchSessionRerendersToFile(t *testing.T) {
	session, dir, out := newWatchSession(t)
	target := filepath.Join(t.TempDir(), "docs", "brief.md")
	session.render = "brief"
	session.target = target

	session.handle([]string{"brief"})
	if !strings.Contains(out.String(), "brief: ok") {
		t.Errorf("expected ok report, got %q", out.String())
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read rendered file: %v", err)
	}
	if !strings.Contains(string(data), "Project Atlas") {
		t.Errorf("unexpected document %q", data)
	}

	writeTemplateFile(t, dir, "brief.yaml", `
template: {id: brief, name: Brief}
sections:
  - id: summary
    title: Summary
    template: "Codename {{.project}}"
`)
	session.handle([]string{"brief"})
	data, err = os.ReadFile(target)
	if err != nil {
		t.Fatalf("read rendered file: %v", err)
	}
	if !strings.Contains(string(data), "Codename Atlas") {
		t.Errorf("change not re-rendered: %q", data)
	}
}

func TestWatchSessionRun(t *testing.T) {
	session, _, out := newWatchSession(t)
	changes := make(chan []string, 1)
	changes <- []string{"brief"}
	close(changes)

	if err := session.run(context.Background(), changes); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "brief: ok\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := session.run(ctx, make(chan []string)); err != nil {
		t.Errorf("run after cancel: %v", err)
	}
}

func TestWatchableDirs(t *testing.T) {
	dir := t.TempDir()
	roots := []templates.Root{
		templates.DirRoot(dir),
		templates.DirRoot(filepath.Join(dir, "missing")),
		{Name: templates.BuiltinSource},
	}
	got := watchableDirs(roots)
	if len(got) != 1 || got[0] != dir {
		t.Errorf("watchableDirs = %v, want [%s]", got, dir)
	}
}

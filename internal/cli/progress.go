// Package cli provides progress output helpers for long-running commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"
)

type progressStep struct {
	out     io.Writer
	label   string
	started time.Time
}

// startProgress prints label to stderr and returns a step to finish, or nil
// when progress output is disabled. Methods on a nil step are no-ops.
func startProgress(label string) *progressStep {
	if !progressEnabled() {
		return nil
	}
	return startProgressTo(os.Stderr, label)
}

func startProgressTo(out io.Writer, label string) *progressStep {
	fmt.Fprintf(out, "%s... ", label)
	return &progressStep{out: out, label: label, started: time.Now()}
}

func (p *progressStep) Done() {
	p.DoneWith("")
}

// DoneWith finishes the step with an extra detail, e.g. a written size.
func (p *progressStep) DoneWith(detail string) {
	if p == nil {
		return
	}
	elapsed := formatDuration(time.Since(p.started))
	if detail != "" {
		fmt.Fprintf(p.out, "%s (%s, %s)\n", styled(successStyle, "done"), detail, elapsed)
		return
	}
	fmt.Fprintf(p.out, "%s (%s)\n", styled(successStyle, "done"), elapsed)
}

func (p *progressStep) Fail(err error) {
	if p == nil {
		return
	}
	if err != nil {
		fmt.Fprintf(p.out, "%s: %v\n", styled(errorStyle, "failed"), err)
		return
	}
	fmt.Fprintln(p.out, styled(errorStyle, "failed"))
}

func progressEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() || noProgress {
		return false
	}
	if _, ok := os.LookupEnv("DOCFORGE_NO_PROGRESS"); ok {
		return false
	}
	if _, ok := os.LookupEnv("NO_PROGRESS"); ok {
		return false
	}
	return true
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

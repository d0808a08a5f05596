// Package cli provides helpers for interactive mode detection and prompts.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// IsNonInteractive reports whether prompts should be skipped and defaults used.
func IsNonInteractive() bool {
	if nonInteractive {
		return true
	}
	if _, ok := os.LookupEnv("DOCFORGE_NON_INTERACTIVE"); ok {
		return true
	}
	return !hasTTY()
}

// IsInteractive reports whether the session can prompt for user input.
func IsInteractive() bool {
	return !IsNonInteractive()
}

// confirm asks a yes/no question and returns fallback when input is empty or
// unreadable.
func confirm(in io.Reader, out io.Writer, question string, fallback bool) bool {
	choices := "[y/N]"
	if fallback {
		choices = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s ", question, choices)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return fallback
	}
}

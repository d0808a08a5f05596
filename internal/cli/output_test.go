package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func withOutputFlags(t *testing.T, json, jsonl bool) {
	t.Helper()
	origJSON, origJSONL := jsonOutput, jsonlOutput
	jsonOutput, jsonlOutput = json, jsonl
	t.Cleanup(func() { jsonOutput, jsonlOutput = origJSON, origJSONL })
}

func TestWriteOutputJSON(t *testing.T) {
	withOutputFlags(t, true, false)

	var buf bytes.Buffer
	if err := WriteOutput(&buf, map[string]int{"templates": 2}); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	if buf.String() != "{\n  \"templates\": 2\n}\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWriteOutputJSONLSlices(t *testing.T) {
	withOutputFlags(t, false, true)

	var buf bytes.Buffer
	if err := WriteOutput(&buf, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	if buf.String() != "\"a\"\n\"b\"\n\"c\"\n" {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	if err := WriteOutput(&buf, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	if buf.String() != "{\"k\":\"v\"}\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWriteTable(t *testing.T) {
	withOutputFlags(t, false, false)

	var buf bytes.Buffer
	err := writeTable(&buf, []string{"NAME", "TITLE"}, [][]string{
		{"prd", "Product Requirements"},
		{"architecture", strings.Repeat("x", 80)},
	})
	if err != nil {
		t.Fatalf("writeTable: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "prd           Product") {
		t.Errorf("columns not aligned: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "...") {
		t.Errorf("long cell not truncated: %q", lines[2])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		value string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"needs truncation", 8, "needs..."},
		{"abc", 2, "ab"},
		{"line\nbreak", 20, "line break"},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.value, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.value, tt.limit, got, tt.want)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	if formatWhen(time.Time{}) != "-" {
		t.Error("zero time should render as -")
	}
	if got := formatWhen(time.Now().Add(-2 * time.Hour)); got != "2 hours ago" {
		t.Errorf("formatWhen = %q", got)
	}
	if orDash("  ") != "-" || orDash("x") != "x" {
		t.Error("orDash mismatch")
	}
	if formatYesNo(true) != "yes" || formatYesNo(false) != "no" {
		t.Error("formatYesNo mismatch")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input    string
		fallback bool
		want     bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"", false, false},
		{"maybe\n", false, false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "Overwrite?", tt.fallback); got != tt.want {
			t.Errorf("confirm(%q, %v) = %v, want %v", tt.input, tt.fallback, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Overwrite? [") {
			t.Errorf("unexpected prompt %q", out.String())
		}
	}
}

func TestProgressStep(t *testing.T) {
	var buf bytes.Buffer
	step := startProgressTo(&buf, "Writing prd.md")
	step.DoneWith("1.2 kB")
	if !strings.HasPrefix(buf.String(), "Writing prd.md... done (1.2 kB, ") {
		t.Errorf("unexpected progress output %q", buf.String())
	}

	var nilStep *progressStep
	nilStep.Done()
	nilStep.Fail(nil)
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(500 * time.Microsecond); got != "500µs" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := formatDuration(1234 * time.Millisecond); got != "1.2s" {
		t.Errorf("formatDuration = %q", got)
	}
}

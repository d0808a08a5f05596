package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	instructionPattern = regexp.MustCompile(`(?s)<!-- Instruction: .*? -->\n*`)
	headingPattern     = regexp.MustCompile(`(?m)^#{1,6} `)
	markdown           = goldmark.New(goldmark.WithExtensions(extension.GFM))
	htmlPolicy         = bluemonday.UGCPolicy()
)

// FileExtension returns the conventional file extension for format.
func FileExtension(format OutputFormat) string {
	switch format {
	case FormatText:
		return ".txt"
	case FormatHTML:
		return ".html"
	case FormatJSON:
		return ".json"
	default:
		return ".md"
	}
}

// FormatContent converts rendered markdown into format.
func FormatContent(format OutputFormat, title, filename, content string) (string, error) {
	switch format {
	case FormatMarkdown, "":
		return content, nil
	case FormatText:
		text := instructionPattern.ReplaceAllString(content, "")
		return headingPattern.ReplaceAllString(text, ""), nil
	case FormatHTML:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("convert markdown: %w", err)
		}
		return string(htmlPolicy.SanitizeBytes(buf.Bytes())), nil
	case FormatJSON:
		data, err := json.MarshalIndent(struct {
			Title    string `json:"title"`
			Filename string `json:"filename"`
			Content  string `json:"content"`
		}{title, filename, content}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json output: %w", err)
		}
		return string(data) + "\n", nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

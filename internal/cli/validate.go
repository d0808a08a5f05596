package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/templates"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

// ValidationReport is the result of validating one template file.
type ValidationReport struct {
	File     string   `json:"file"`
	Template string   `json:"template,omitempty"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate template files",
	Long:  "Check template files against the template schema and report every violation.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeEngine, err := newEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		reports := make([]ValidationReport, 0, len(args))
		invalid := 0
		for _, file := range args {
			report := validateFile(file, engine.TemplateExists)
			if !report.Valid {
				invalid++
			}
			reports = append(reports, report)
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			if err := WriteOutput(out, reports); err != nil {
				return err
			}
		} else {
			for _, report := range reports {
				status := styled(successStyle, "ok")
				if !report.Valid {
					status = styled(errorStyle, "invalid")
				}
				fmt.Fprintf(out, "%s: %s\n", report.File, status)
				for _, msg := range report.Errors {
					fmt.Fprintf(out, "  - %s\n", msg)
				}
				for _, msg := range report.Warnings {
					fmt.Fprintf(out, "  %s %s\n", styled(warningStyle, "warning:"), msg)
				}
			}
		}

		if invalid > 0 {
			return fmt.Errorf("%d of %d templates invalid", invalid, len(reports))
		}
		return nil
	},
}

// validateFile parses and validates one file. exists reports whether a
// parent template resolves.
func validateFile(file string, exists func(string) bool) ValidationReport {
	report := ValidationReport{File: file, Template: templates.NameFromFile(filepath.Base(file))}

	data, err := os.ReadFile(file)
	if err != nil {
		report.Errors = []string{err.Error()}
		return report
	}

	def, err := templates.ParseTemplate(data)
	if err != nil {
		var verr *templates.ValidationError
		if errors.As(err, &verr) {
			report.Errors = verr.Violations
		} else {
			report.Errors = []string{err.Error()}
		}
		return report
	}

	report.Valid = true
	if parent := def.Parent(); parent != "" && exists != nil && !exists(parent) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("parent template %q not found", parent))
	}
	return report
}

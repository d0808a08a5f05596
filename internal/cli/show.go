package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/templates"
)

var showOutline bool

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showOutline, "outline", false, "print the section outline instead of the document")
}

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a resolved template",
	Long:  "Print a template after inheritance is resolved, as YAML (or JSON with --json).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeEngine, err := newEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		def, err := engine.GetTemplate(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			doc, err := def.Document()
			if err != nil {
				return err
			}
			return WriteOutput(out, doc)
		}

		if showOutline {
			fmt.Fprintf(out, "%s (%s v%s)\n", styled(headingStyle, def.Header.Name), def.Header.ID, def.Header.Version)
			fmt.Fprintln(out, styled(mutedStyle, def.Source))
			writeOutline(out, def.Sections, 0)
			return nil
		}

		data, err := def.Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	},
}

func writeOutline(out io.Writer, sections []templates.Section, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, section := range sections {
		var notes []string
		if !section.Required {
			notes = append(notes, "optional")
		}
		if len(section.Conditions) > 0 {
			notes = append(notes, "conditional")
		}
		if section.Elicit {
			notes = append(notes, "elicit")
		}

		label := section.ID
		if section.Title != "" {
			label = fmt.Sprintf("%s: %s", section.ID, section.Title)
		}
		if len(notes) > 0 {
			label += " " + styled(mutedStyle, "("+strings.Join(notes, ", ")+")")
		}
		fmt.Fprintf(out, "%s- %s\n", indent, label)
		writeOutline(out, section.Sections, depth+1)
	}
}

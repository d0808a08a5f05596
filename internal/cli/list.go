package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/templates"
)

var listTag string

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listTag, "tag", "", "only list templates with this tag")
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List available templates",
	Long:    "List every loadable template across the template directories and the bundled templates.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeEngine, err := newEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		summaries, err := engine.ListTemplates()
		if err != nil {
			return err
		}
		summaries = filterByTag(summaries, listTag)

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No templates found.")
			return nil
		}

		rows := make([][]string, 0, len(summaries))
		for _, s := range summaries {
			rows = append(rows, []string{
				s.Name,
				s.Title,
				s.Version,
				orDash(s.Extends),
				strconv.Itoa(s.SectionCount),
				s.Source,
			})
		}
		return writeTable(out, []string{"NAME", "TITLE", "VERSION", "EXTENDS", "SECTIONS", "SOURCE"}, rows)
	},
}

func filterByTag(summaries []templates.Summary, tag string) []templates.Summary {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return summaries
	}
	filtered := make([]templates.Summary, 0, len(summaries))
	for _, s := range summaries {
		for _, t := range s.Tags {
			if strings.EqualFold(t, tag) {
				filtered = append(filtered, s)
				break
			}
		}
	}
	return filtered
}

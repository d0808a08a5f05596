package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/db"
	"github.com/opencode-ai/docforge/internal/templates"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

// StatsReport is the payload of `docforge stats`.
type StatsReport struct {
	Templates     int             `json:"templates"`
	Engine        templates.Stats `json:"engine"`
	EventsEnabled bool            `json:"events_enabled"`
	Events        map[string]int  `json:"events,omitempty"`
	ConfigFile    string          `json:"config_file,omitempty"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine and event log statistics",
	Args:  cobra.NoArgs,
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

		report := StatsReport{
			Templates:     len(summaries),
			Engine:        engine.GetStats(),
			EventsEnabled: GetConfig().Events.Enabled,
			ConfigFile:    configFileUsed,
		}

		if report.EventsEnabled {
			database, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			counts, err := db.NewEventRepository(database).CountByType(cmd.Context())
			if err != nil {
				return err
			}
			report.Events = make(map[string]int, len(counts))
			for eventType, count := range counts {
				report.Events[string(eventType)] = count
			}
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, report)
		}

		writer := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Templates:\t%s\n", humanize.Comma(int64(report.Templates)))
		fmt.Fprintf(writer, "Cached:\t%s\n", humanize.Comma(int64(report.Engine.CachedTemplates)))
		fmt.Fprintf(writer, "Helpers:\t%d\n", report.Engine.Helpers)
		fmt.Fprintf(writer, "Partials:\t%d\n", report.Engine.Partials)
		fmt.Fprintf(writer, "Roots:\t%s\n", strings.Join(report.Engine.Roots, ", "))
		fmt.Fprintf(writer, "Config:\t%s\n", orDash(report.ConfigFile))
		fmt.Fprintf(writer, "Events:\t%s\n", formatYesNo(report.EventsEnabled))

		types := make([]string, 0, len(report.Events))
		for eventType := range report.Events {
			types = append(types, eventType)
		}
		sort.Strings(types)
		for _, eventType := range types {
			fmt.Fprintf(writer, "  %s:\t%s\n", eventType, humanize.Comma(int64(report.Events[eventType])))
		}
		return writer.Flush()
	},
}

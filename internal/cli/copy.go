package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var copySet []string

func init() {
	rootCmd.AddCommand(copyCmd)
	copyCmd.Flags().StringArrayVar(&copySet, "set", nil, "override a header field on the copy (field=value, repeatable)")
}

var copyCmd = &cobra.Command{
	Use:   "copy <source> <target>",
	Short: "Copy a template into the template directory",
	Long: `Save a resolved copy of a template under a new name. The copy no longer
extends its parent. Use --set to change header fields such as name or
description.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		modifications, err := buildContext(nil, "", copySet)
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

		def, err := engine.CopyTemplate(args[0], args[1], modifications)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, map[string]string{
				"source": args[0],
				"target": args[1],
				"path":   def.Source,
			})
		}
		fmt.Fprintf(out, "Copied %s to %s (%s)\n", args[0], styled(headingStyle, args[1]), def.Source)
		return nil
	},
}

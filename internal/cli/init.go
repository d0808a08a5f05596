// Package cli provides the init command for docforge projects.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/config"
)

var (
	initForce bool

	configDirFunc = defaultConfigDir
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up docforge in the current project",
	Long:  "Create .docforge/config.yaml and the .docforge/templates directory, and prepare the event log.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := []initResult{
			createTemplateDir(),
			createConfigFile(),
		}
		if GetConfig().Events.Enabled {
			results = append(results, initEventLog())
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, results)
		}

		failed := 0
		for _, r := range results {
			status := r.status
			switch r.status {
			case "done":
				status = styled(successStyle, r.status)
			case "skipped":
				status = styled(mutedStyle, r.status)
			case "failed":
				status = styled(errorStyle, r.status)
				failed++
			}
			fmt.Fprintf(out, "%-16s %s  %s\n", r.name, status, r.message)
		}
		if failed > 0 {
			return fmt.Errorf("%d setup steps failed", failed)
		}
		return nil
	},
}

type initResult struct {
	name    string
	status  string // done, skipped or failed
	message string
}

// MarshalJSON exposes the unexported fields for --json output.
func (r initResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name    string `json:"name"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}{r.name, r.status, r.message})
}

func defaultConfigDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ".docforge"
	}
	return filepath.Join(cwd, ".docforge")
}

func createTemplateDir() initResult {
	dir := filepath.Join(configDirFunc(), "templates")
	if templatesDir != "" {
		dir = templatesDir
	}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return initResult{name: "Template dir", status: "skipped", message: "Already exists: " + dir}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return initResult{name: "Template dir", status: "failed", message: err.Error()}
	}
	return initResult{name: "Template dir", status: "done", message: "Created " + dir}
}

func createConfigFile() initResult {
	path := filepath.Join(configDirFunc(), "config.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		if IsNonInteractive() || !confirm(os.Stdin, os.Stderr, fmt.Sprintf("Overwrite %s?", path), false) {
			return initResult{name: "Config file", status: "skipped", message: "Already exists: " + path}
		}
	}
	if err := config.WriteDefaultConfig(path); err != nil {
		return initResult{name: "Config file", status: "failed", message: err.Error()}
	}
	return initResult{name: "Config file", status: "done", message: "Wrote " + path}
}

func initEventLog() initResult {
	database, err := openDatabase()
	if err != nil {
		return initResult{name: "Event log", status: "failed", message: err.Error()}
	}
	defer database.Close()
	return initResult{name: "Event log", status: "done", message: GetConfig().Events.DatabasePath}
}

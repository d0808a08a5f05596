// Package cli implements the docforge command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/docforge/internal/config"
	"github.com/opencode-ai/docforge/internal/db"
	"github.com/opencode-ai/docforge/internal/events"
	"github.com/opencode-ai/docforge/internal/logging"
	"github.com/opencode-ai/docforge/internal/templates"
)

var (
	version = "dev"

	cfgFile        string
	templatesDir   string
	logLevel       string
	jsonOutput     bool
	jsonlOutput    bool
	nonInteractive bool
	noProgress     bool
	noEvents       bool

	appConfig      *config.Config
	configFileUsed string
)

var rootCmd = &cobra.Command{
	Use:   "docforge",
	Short: "Render structured documents from YAML templates",
	Long: `docforge loads YAML document templates, resolves template inheritance,
and renders them to markdown, text, html or json.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .docforge/config.yaml or ~/.config/docforge/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&templatesDir, "templates-dir", "t", "",
		"writable template directory (default: .docforge/templates)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; use defaults")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress output")
	rootCmd.PersistentFlags().BoolVar(&noEvents, "no-events", false, "do not record events")
}

// Execute runs the root command and prints any error.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// GetConfig returns the loaded configuration, or defaults before loading.
func GetConfig() *config.Config {
	if appConfig == nil {
		cfg := config.Defaults()
		return &cfg
	}
	return appConfig
}

func initConfig() error {
	cfg, used, err := config.Load(cfgFile)
	if err != nil {
		return &PreflightError{
			Message:  err.Error(),
			Hint:     "Fix the config file or pass --config with a valid file",
			NextStep: "docforge init --force",
		}
	}

	if templatesDir != "" {
		cfg.Templates.Dir = templatesDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if noEvents {
		cfg.Events.Enabled = false
	}

	if err := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return err
	}

	appConfig = &cfg
	configFileUsed = used
	logger := logging.Component("cli")
	logger.Debug().Str("config", used).Msg("configuration loaded")
	return nil
}

// newEngine builds a template engine from the loaded configuration. The
// returned close function releases the event database, if one was opened.
func newEngine() (*templates.Engine, func(), error) {
	cfg := GetConfig()
	logger := logging.Component("templates")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("getting current directory: %w", err)
	}
	dirs := cfg.TemplateDirs(cwd)

	observers := templates.MultiObserver{templates.NewLogObserver(logger)}
	closeFn := func() {}
	if cfg.Events.Enabled {
		database, err := openDatabase()
		if err != nil {
			logger.Warn().Err(err).Msg("event log unavailable")
		} else {
			repo := db.NewEventRepository(database)
			observers = append(observers, events.NewRecorder(repo, logging.Component("events")))
			closeFn = func() { _ = database.Close() }
		}
	}

	opts := []templates.Option{
		templates.WithLogger(logger),
		templates.WithObserver(observers),
		templates.WithBuiltins(cfg.Templates.Builtins),
		templates.WithCacheTTL(cfg.Templates.CacheTTL, cfg.Templates.CleanupInterval),
	}
	for i, dir := range dirs {
		if i == 0 {
			opts = append(opts, templates.WithDir(dir))
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			opts = append(opts, templates.WithFS(dir, os.DirFS(dir)))
		}
	}

	return templates.New(opts...), closeFn, nil
}

func openDatabase() (*db.DB, error) {
	cfg := GetConfig()
	database, err := db.Open(db.Config{
		Path:   cfg.Events.DatabasePath,
		Logger: logging.Component("db"),
	})
	if err != nil {
		return nil, &PreflightError{
			Message:  fmt.Sprintf("cannot open event database: %v", err),
			Hint:     "Check events.database_path or disable events with --no-events",
			NextStep: "docforge --no-events <command>",
		}
	}
	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate event database: %w", err)
	}
	return database, nil
}

// PreflightError is a user-facing error with remediation guidance.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(e.Hint)
	}
	if e.NextStep != "" {
		b.WriteString("\nNext: ")
		b.WriteString(e.NextStep)
	}
	return b.String()
}

func printError(err error) {
	if IsJSONOutput() || IsJSONLOutput() {
		_ = WriteOutput(os.Stderr, map[string]string{"error": err.Error()})
		return
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", styled(errorStyle, "Error:"), err)
}

// Package config provides configuration types and defaults for docforge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opencode-ai/docforge/internal/templates"
	"github.com/opencode-ai/docforge/internal/tui/styles"
)

// Config holds all configuration options for docforge.
type Config struct {
	Templates TemplatesConfig `mapstructure:"templates"`
	Render    RenderConfig    `mapstructure:"render"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Events    EventsConfig    `mapstructure:"events"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// TemplatesConfig controls template discovery and caching.
type TemplatesConfig struct {
	Dir             string        `mapstructure:"dir"`      // writable template directory; empty = .docforge/templates
	Builtins        bool          `mapstructure:"builtins"` // include bundled templates as the last root
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RenderConfig holds default render options.
type RenderConfig struct {
	IncludeInstructions bool   `mapstructure:"include_instructions"`
	IncludeExamples     bool   `mapstructure:"include_examples"`
	Format              string `mapstructure:"format"` // empty uses the template's output.format
	Theme               string `mapstructure:"theme"`  // color theme for interactive forms
}

// LoggingConfig holds logger options.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console (default) or json
}

// EventsConfig controls the SQLite event log.
type EventsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DatabasePath string `mapstructure:"database_path"`
}

// WatchConfig holds options for `docforge watch`.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Templates: TemplatesConfig{
			Builtins: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Events: EventsConfig{
			Enabled:      true,
			DatabasePath: DefaultDatabasePath(),
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}

// DefaultDatabasePath returns ~/.local/share/docforge/events.db, or a
// relative path when the home directory is unknown.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".docforge", "events.db")
	}
	return filepath.Join(home, ".local", "share", "docforge", "events.db")
}

// Load reads configuration from path, or from the first config file found in
// the lookup order when path is empty:
//  1. .docforge/config.yaml (current directory)
//  2. ~/.config/docforge/config.yaml (user config)
//
// DOCFORGE_* environment variables override file values. A missing config
// file is not an error.
func Load(path string) (Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DOCFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(filepath.Join(".docforge", "config.yaml")); err == nil {
		v.SetConfigFile(filepath.Join(".docforge", "config.yaml"))
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "docforge"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

func setDefaults(v *viper.Viper) {
	defaults := Defaults()
	v.SetDefault("templates.dir", defaults.Templates.Dir)
	v.SetDefault("templates.builtins", defaults.Templates.Builtins)
	v.SetDefault("templates.cache_ttl", defaults.Templates.CacheTTL)
	v.SetDefault("templates.cleanup_interval", defaults.Templates.CleanupInterval)
	v.SetDefault("render.include_instructions", defaults.Render.IncludeInstructions)
	v.SetDefault("render.include_examples", defaults.Render.IncludeExamples)
	v.SetDefault("render.format", defaults.Render.Format)
	v.SetDefault("render.theme", defaults.Render.Theme)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("events.enabled", defaults.Events.Enabled)
	v.SetDefault("events.database_path", defaults.Events.DatabasePath)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
}

// Validate checks enumerated and numeric settings.
func (c Config) Validate() error {
	switch c.Render.Format {
	case "", "markdown", "text", "html", "json":
	default:
		return fmt.Errorf("render.format: unsupported format %q", c.Render.Format)
	}
	if _, err := styles.Lookup(c.Render.Theme); err != nil {
		return fmt.Errorf("render.theme: %w", err)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: must be console or json, got %q", c.Logging.Format)
	}
	if c.Templates.CacheTTL < 0 {
		return fmt.Errorf("templates.cache_ttl: must not be negative")
	}
	if c.Templates.CleanupInterval < 0 {
		return fmt.Errorf("templates.cleanup_interval: must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce: must not be negative")
	}
	return nil
}

// TemplateDirs returns the writable template directory followed by the
// read-only fallback directories. The configured dir, when set, replaces the
// project directory.
func (c Config) TemplateDirs(projectDir string) []string {
	var dirs []string
	if c.Templates.Dir != "" {
		dirs = append(dirs, c.Templates.Dir)
	}
	for _, dir := range templates.TemplateSearchPaths(projectDir) {
		if c.Templates.Dir != "" && dir == filepath.Join(projectDir, ".docforge", "templates") {
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

// DefaultConfigTemplate returns a commented config file with default values.
func DefaultConfigTemplate() string {
	return `# docforge configuration
#
# Values shown are the defaults. Environment variables override file values,
# e.g. DOCFORGE_RENDER_FORMAT=html.

templates:
  # Writable template directory. Empty means .docforge/templates.
  dir: ""
  # Include the templates bundled with docforge.
  builtins: true
  # Cache entry lifetime, e.g. 10m. 0 keeps entries until the source changes.
  cache_ttl: 0s
  cleanup_interval: 0s

render:
  include_instructions: false
  include_examples: false
  # markdown, text, html or json. Empty uses the template's output.format.
  format: ""
  # Color theme for render --interactive: default or high-contrast.
  theme: ""

logging:
  level: info
  # console or json
  format: console

events:
  enabled: true
  # database_path: ~/.local/share/docforge/events.db

watch:
  debounce: 100ms
`
}

// WriteDefaultConfig creates a config file at configPath with default
// settings, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

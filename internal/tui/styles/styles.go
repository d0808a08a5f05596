// Package styles defines the color themes used by the interactive form.
package styles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ThemeTokens defines the semantic color roles.
type ThemeTokens struct {
	Text      string
	TextMuted string
	Border    string
	Accent    string
	Focus     string
	Success   string
	Warning   string
	Error     string
}

// Theme bundles a palette with a name.
type Theme struct {
	Name   string
	Tokens ThemeTokens
}

// DefaultTheme is the baseline palette.
var DefaultTheme = Theme{
	Name: "default",
	Tokens: ThemeTokens{
		Text:      "#E6EDF3",
		TextMuted: "#8B9AAE",
		Border:    "#223043",
		Accent:    "#5B8DEF",
		Focus:     "#7AA2F7",
		Success:   "#3FB950",
		Warning:   "#D29922",
		Error:     "#F85149",
	},
}

// HighContrastTheme favors visibility on low-contrast terminals.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Tokens: ThemeTokens{
		Text:      "#FFFFFF",
		TextMuted: "#D0D0D0",
		Border:    "#FFFFFF",
		Accent:    "#00FFFF",
		Focus:     "#FFFF00",
		Success:   "#00FF00",
		Warning:   "#FFB000",
		Error:     "#FF4040",
	},
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	DefaultTheme.Name:      DefaultTheme,
	HighContrastTheme.Name: HighContrastTheme,
}

// Lookup returns the named theme. An empty name selects the default.
func Lookup(name string) (Theme, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultTheme, nil
	}
	theme, ok := Themes[name]
	if !ok {
		names := make([]string, 0, len(Themes))
		for key := range Themes {
			names = append(names, key)
		}
		sort.Strings(names)
		return Theme{}, fmt.Errorf("unknown theme %q (available: %s)", name, strings.Join(names, ", "))
	}
	return theme, nil
}

// Styles contains lipgloss styles derived from theme tokens.
type Styles struct {
	Theme   Theme
	Title   lipgloss.Style
	Text    lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
	Focus   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Panel   lipgloss.Style
}

// DefaultStyles builds styles from the default theme.
func DefaultStyles() Styles {
	return BuildStyles(DefaultTheme)
}

// BuildStyles converts theme tokens into lipgloss styles.
func BuildStyles(theme Theme) Styles {
	tokens := theme.Tokens
	color := func(value string) lipgloss.Color { return lipgloss.Color(value) }

	return Styles{
		Theme:   theme,
		Title:   lipgloss.NewStyle().Foreground(color(tokens.Text)).Bold(true),
		Text:    lipgloss.NewStyle().Foreground(color(tokens.Text)),
		Muted:   lipgloss.NewStyle().Foreground(color(tokens.TextMuted)),
		Accent:  lipgloss.NewStyle().Foreground(color(tokens.Accent)),
		Focus:   lipgloss.NewStyle().Foreground(color(tokens.Focus)).Bold(true),
		Success: lipgloss.NewStyle().Foreground(color(tokens.Success)),
		Warning: lipgloss.NewStyle().Foreground(color(tokens.Warning)),
		Error:   lipgloss.NewStyle().Foreground(color(tokens.Error)),
		Panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(color(tokens.Border)).
			Padding(0, 1),
	}
}

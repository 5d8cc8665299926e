package gridtui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the ANSI-256 color codes of the grid viewer.
type Theme struct {
	Name      string
	Header    string
	Muted     string
	Accent    string
	Cursor    string
	Selection string
	Locked    string
	OK        string
	Error     string
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default": DefaultTheme,
	"dark":    DefaultTheme,
	"light":   LightTheme,
}

// DefaultTheme is the dark palette.
var DefaultTheme = Theme{
	Name:      "default",
	Header:    "111",
	Muted:     "245",
	Accent:    "75",
	Cursor:    "25",
	Selection: "238",
	Locked:    "214",
	OK:        "41",
	Error:     "203",
}

// LightTheme suits light terminal backgrounds.
var LightTheme = Theme{
	Name:      "light",
	Header:    "25",
	Muted:     "243",
	Accent:    "31",
	Cursor:    "153",
	Selection: "254",
	Locked:    "130",
	OK:        "28",
	Error:     "160",
}

func resolveTheme(name string) Theme {
	if theme, ok := Themes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return theme
	}
	return DefaultTheme
}

type styles struct {
	header    lipgloss.Style
	muted     lipgloss.Style
	cursor    lipgloss.Style
	selection lipgloss.Style
	locked    lipgloss.Style
	ok        lipgloss.Style
	err       lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Header)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		cursor:    lipgloss.NewStyle().Background(lipgloss.Color(t.Cursor)).Bold(true),
		selection: lipgloss.NewStyle().Background(lipgloss.Color(t.Selection)),
		locked:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Locked)),
		ok:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.OK)),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color(t.Error)).Bold(true),
	}
}

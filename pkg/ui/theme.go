package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile, computed once at
// package init.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeFg returns the given hex color for ANSI256+ terminals and ANSI white
// (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

// Theme is the set of styles the editor renders with.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary lipgloss.AdaptiveColor
	Subtext lipgloss.AdaptiveColor

	// Event types
	Inhale lipgloss.AdaptiveColor
	Exhale lipgloss.AdaptiveColor
	Apnea  lipgloss.AdaptiveColor

	// Score levels
	Healthy  lipgloss.AdaptiveColor
	Warning  lipgloss.AdaptiveColor
	Critical lipgloss.AdaptiveColor

	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	Base     lipgloss.Style
	Selected lipgloss.Style
	Header   lipgloss.Style

	MutedText   lipgloss.Style
	PrimaryBold lipgloss.Style
	ErrorText   lipgloss.Style
	Marked      lipgloss.Style
}

// DefaultTheme returns the Dracula-inspired adaptive theme.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary: lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Subtext: lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},

		Inhale: ColorInhale,
		Exhale: ColorExhale,
		Apnea:  ColorApnea,

		Healthy:  ColorSuccess,
		Warning:  ColorWarning,
		Critical: ColorDanger,

		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
	}

	t.Base = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#F8F8F2"})

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(t.Primary).
		PaddingLeft(1).
		Bold(true)

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.MutedText = r.NewStyle().Foreground(t.Muted)
	t.PrimaryBold = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.ErrorText = r.NewStyle().Foreground(t.Critical).Bold(true)
	t.Marked = r.NewStyle().Foreground(ThemeFg("#FFD700")).Bold(true)

	return t
}

// EventColor returns the color used for an event type.
func (t Theme) EventColor(typ string) lipgloss.AdaptiveColor {
	switch typ {
	case "inhalation":
		return t.Inhale
	case "exhalation":
		return t.Exhale
	case "apnea":
		return t.Apnea
	default:
		return t.Subtext
	}
}

// LevelColor returns the color used for a score level.
func (t Theme) LevelColor(level string) lipgloss.AdaptiveColor {
	switch level {
	case "healthy":
		return t.Healthy
	case "warning":
		return t.Warning
	case "critical":
		return t.Critical
	default:
		return t.Subtext
	}
}

// TestTheme returns a theme suitable for use in tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout))
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ══════════════════════════════════════════════════════════════════════════════
// DESIGN TOKENS
// ══════════════════════════════════════════════════════════════════════════════

const (
	SpaceXS = 1
	SpaceSM = 2
	SpaceMD = 3
)

// ══════════════════════════════════════════════════════════════════════════════
// COLOR PALETTE - Adaptive colors for light and dark terminals
// Light mode colors tuned for WCAG AA compliance (contrast ratio >= 4.5:1)
// ══════════════════════════════════════════════════════════════════════════════

var (
	ColorBgSubtle    = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#363949"}
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}

	// Event type colors
	ColorInhale = lipgloss.AdaptiveColor{Light: "#2684FF", Dark: "#4C9AFF"} // Blue
	ColorExhale = lipgloss.AdaptiveColor{Light: "#36B37E", Dark: "#57D9A3"} // Green
	ColorApnea  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#E5493A"} // Red

	ColorBadgeText = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}
)

// ══════════════════════════════════════════════════════════════════════════════
// PANEL STYLES
// ══════════════════════════════════════════════════════════════════════════════

var (
	// PanelStyle is the default style for unfocused panels
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBgHighlight)

	// FocusedPanelStyle is the style for focused panels
	FocusedPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary)
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE RENDERING
// ══════════════════════════════════════════════════════════════════════════════

// RenderEventBadge returns a fixed-width badge for an event type:
// IN, EX or AP on the type color.
func RenderEventBadge(typ string) string {
	var bg lipgloss.AdaptiveColor
	var label string
	switch typ {
	case "inhalation":
		bg, label = ColorInhale, "IN"
	case "exhalation":
		bg, label = ColorExhale, "EX"
	case "apnea":
		bg, label = ColorApnea, "AP"
	default:
		bg, label = ColorBgSubtle, "??"
	}
	return lipgloss.NewStyle().
		Foreground(ColorBadgeText).
		Background(bg).
		Bold(true).
		Padding(0, 1).
		Render(label)
}

// RenderLevelBadge returns an upper-case badge for a score level.
func RenderLevelBadge(level string) string {
	fg := ColorMuted
	switch level {
	case "healthy":
		fg = ColorSuccess
	case "warning":
		fg = ColorWarning
	case "critical":
		fg = ColorDanger
	}
	if level == "" {
		level = "n/a"
	}
	return lipgloss.NewStyle().
		Foreground(fg).
		Bold(true).
		Render(strings.ToUpper(level))
}

// RenderScoreBar renders a 0-100 score as a bar of width cells.
func RenderScoreBar(score float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(score / 100 * float64(width))
	filled = max(0, min(width, filled))

	fg := ColorSuccess
	switch {
	case score < 40:
		fg = ColorDanger
	case score < 70:
		fg = ColorWarning
	}
	bar := lipgloss.NewStyle().Foreground(fg).Render(strings.Repeat("█", filled))
	rest := lipgloss.NewStyle().Foreground(ColorBgHighlight).Render(strings.Repeat("░", width-filled))
	return bar + rest
}

// RenderKeyHint renders "key desc" with the key highlighted.
func RenderKeyHint(key, desc string) string {
	k := lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render(key)
	d := lipgloss.NewStyle().Foreground(ColorMuted).Render(desc)
	return fmt.Sprintf("%s %s", k, d)
}

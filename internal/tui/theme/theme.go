// Package theme provides the Lip Gloss color palette and reusable styles
// for the mixer TUI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Session colors.
var (
	ColorActive   = lipgloss.Color("#22c55e")
	ColorInactive = lipgloss.Color("#6b7280")
	ColorMuted    = lipgloss.Color("#dc2626")
	ColorSystem   = lipgloss.Color("#7c3aed")
)

// Volume bar gradient.
const (
	GradientLow  = "#2563eb"
	GradientHigh = "#06b6d4"
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorInfo    = lipgloss.Color("#3b82f6")
)

// StateColor returns the name color for a session.
func StateColor(active, muted bool) lipgloss.Color {
	switch {
	case muted:
		return ColorMuted
	case active:
		return ColorActive
	default:
		return ColorInactive
	}
}

// StateGlyph returns a glyph for a session's playback state.
func StateGlyph(active, muted bool) string {
	switch {
	case muted:
		return "✗"
	case active:
		return "●"
	default:
		return "○"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)

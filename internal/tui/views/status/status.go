package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/tabmix/mixer/internal/tui/theme"
)

const maxNoteLen = 48

// Model holds the status bar state.
type Model struct {
	Connected   bool
	Sessions    int
	Active      int
	LastMessage string // last frame relayed from the browser extension
	LastError   string
	Width       int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// SetCounts updates the session counts.
func (m *Model) SetCounts(sessions, active int) {
	m.Sessions = sessions
	m.Active = active
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	counts := fmt.Sprintf("%d sessions  %d playing", m.Sessions, m.Active)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts
	if m.LastMessage != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorInfo).Render("ext: "+truncate(m.LastMessage))
	}
	if m.LastError != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("error: "+truncate(m.LastError))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxNoteLen {
		return string(r[:maxNoteLen-3]) + "..."
	}
	return s
}

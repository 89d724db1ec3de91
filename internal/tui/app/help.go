package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// helpMarkdown describes the key bindings as a markdown table.
func helpMarkdown(keys KeyMap) string {
	var b strings.Builder
	b.WriteString("# Mixer\n\n")
	b.WriteString("Per-application volume control for the default output device.\n\n")
	b.WriteString("| Key | Action |\n|---|---|\n")
	for _, kb := range keys.bindings() {
		h := kb.Help()
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	b.WriteString("\nMuted sessions are marked in red. Sessions with no audio stream are dimmed.\n")
	return b.String()
}

// renderHelp renders the help overlay for the given width. The raw
// markdown is returned when rendering fails.
func renderHelp(keys KeyMap, width int) string {
	md := helpMarkdown(keys)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

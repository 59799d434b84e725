// Package tui provides the Bubble Tea surfaces of storyline: the story
// picker, the collaborative chat and the export reader.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	bulletStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	authorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	selfStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)

	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	typingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Italic(true)
	likeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	quoteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))

	stateStyles = map[string]lipgloss.Style{
		"connected":    lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
		"connecting":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"reconnecting": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"closed":       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func bullet(text string) string {
	return bulletStyle.Render("  •") + "  " + text + "\n"
}

// statusBar renders hint on the left and right-aligned info across width.
func statusBar(width int, hint, right string) string {
	pad := width - lipgloss.Width(hint) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	return statusBarStyle.Width(width).Render(hint + strings.Repeat(" ", pad) + right)
}

// wrap soft-wraps s to width columns, indented by prefix.
func wrap(s string, width int, prefix string) string {
	w := width - lipgloss.Width(prefix) - 2
	if w < 10 {
		w = 10
	}
	wrapped := lipgloss.NewStyle().Width(w).Render(s)
	return indent(wrapped, prefix)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

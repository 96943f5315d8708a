// Package style holds the terminal styles shared by the dispatcher and the
// built-in capsules.
package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Red   = lipgloss.Color("#e53935")
	Muted = lipgloss.Color("#8a94a6")
	Blue  = lipgloss.Color("#2196F3")
)

var (
	Heading = lipgloss.NewStyle().Bold(true).Foreground(Blue)
	Label   = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Foreground(Muted)
	Error   = lipgloss.NewStyle().Bold(true).Foreground(Red)
)

// Columns renders rows as left-aligned columns separated by two spaces.
// The last column is never padded.
func Columns(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				sb.WriteString(cell)
				break
			}
			sb.WriteString(cell)
			sb.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

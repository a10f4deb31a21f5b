package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/antigravity-dev/planboard/internal/graph"
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1).
			Width(28)
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	taskStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Strikethrough(true)
	detailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	emptyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).Italic(true)
)

// Render draws the board as side-by-side bordered columns for a terminal.
func Render(b Board) string {
	blocks := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		blocks = append(blocks, columnStyle.Render(renderColumn(c)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, blocks...)
}

func renderColumn(c Column) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", c.Title, len(c.Tasks))))
	sb.WriteString("\n")
	if len(c.Tasks) == 0 {
		sb.WriteString(emptyStyle.Render("no tasks"))
		return sb.String()
	}
	for _, t := range c.Tasks {
		sb.WriteString("\n")
		sb.WriteString(renderTask(t))
	}
	return sb.String()
}

func renderTask(t graph.Task) string {
	title := t.Title
	if title == "" {
		title = t.ID
	}
	line := taskStyle.Render("[ ] " + title)
	if t.Completed {
		line = completedStyle.Render("[x] " + title)
	}
	detail := fmt.Sprintf("%s · %gh", t.Category, t.DurationHours)
	if t.StartTime != "" {
		detail += " · " + t.StartTime
	}
	return line + "\n" + detailStyle.Render(detail)
}

package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	barColor   = lipgloss.Color("#4db6ac")
	titleColor = lipgloss.Color("#8BC34A")
)

// RenderBars draws counts as a horizontal bar chart. The longest bar is width
// cells wide.
func RenderBars(w io.Writer, title string, counts []Count, width int) error {
	if width <= 0 {
		width = 40
	}
	r := lipgloss.NewRenderer(w)
	titleStyle := r.NewStyle().Bold(true).Foreground(titleColor)
	barStyle := r.NewStyle().Foreground(barColor)

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if len(counts) == 0 {
		b.WriteString("  (no data)\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	labelWidth, maxValue := 0, 0
	for _, c := range counts {
		labelWidth = max(labelWidth, lipgloss.Width(c.Name))
		maxValue = max(maxValue, c.Value)
	}

	label := r.NewStyle().Width(labelWidth)
	for _, c := range counts {
		n := 0
		if maxValue > 0 {
			n = c.Value * width / maxValue
		}
		if n == 0 && c.Value > 0 {
			n = 1
		}
		fmt.Fprintf(&b, "  %s %s %d\n", label.Render(c.Name), barStyle.Render(strings.Repeat("█", n)), c.Value)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

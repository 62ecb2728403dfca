package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/amterp/kanflow/internal/model"
)

// Adaptive colors that work in both light and dark terminals.
// First value is for dark terminals, second for light terminals.
var (
	ColorSuccess = lipgloss.AdaptiveColor{Dark: "#22c55e", Light: "#16a34a"} // green
	ColorError   = lipgloss.AdaptiveColor{Dark: "#ef4444", Light: "#dc2626"} // red
	ColorWarning = lipgloss.AdaptiveColor{Dark: "#f59e0b", Light: "#d97706"} // amber
	ColorMuted   = lipgloss.AdaptiveColor{Dark: "#6b7280", Light: "#9ca3af"} // gray
	ColorAccent  = lipgloss.AdaptiveColor{Dark: "#a78bfa", Light: "#7c3aed"} // purple for IDs
	ColorURL     = lipgloss.AdaptiveColor{Dark: "#38bdf8", Light: "#0284c7"} // cyan for URLs
)

// Reusable text styles
var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleID      = lipgloss.NewStyle().Foreground(ColorAccent)
	StyleURL     = lipgloss.NewStyle().Foreground(ColorURL)
	StyleBold    = lipgloss.NewStyle().Bold(true)
)

// Icons for status messages
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconInfo    = "→"
	IconLocked  = "⊘"
)

const groupWidth = 28

// PrintSuccess prints a success message with a green checkmark.
func PrintSuccess(format string, args ...any) {
	icon := StyleSuccess.Render(IconSuccess)
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s %s\n", icon, msg)
}

// PrintError prints an error message with a red X to stderr.
func PrintError(format string, args ...any) {
	icon := StyleError.Render(IconError)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s %s\n", icon, msg)
}

// PrintWarning prints a warning message with an amber icon to stderr.
func PrintWarning(format string, args ...any) {
	icon := StyleWarning.Render(IconWarning)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s %s\n", icon, msg)
}

// PrintInfo prints an info message with a muted arrow.
func PrintInfo(format string, args ...any) {
	icon := StyleMuted.Render(IconInfo)
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s %s\n", icon, msg)
}

// RenderID renders a board, group or item ID in accent color.
func RenderID(id string) string {
	return StyleID.Render(id)
}

// RenderURL renders a URL in the URL color.
func RenderURL(url string) string {
	return StyleURL.Render(url)
}

// RenderMuted renders text in muted color.
func RenderMuted(text string) string {
	return StyleMuted.Render(text)
}

// RenderBold renders text in bold.
func RenderBold(text string) string {
	return StyleBold.Render(text)
}

// RenderGroupColor renders text in the given hex color.
// Falls back to muted if color is empty.
func RenderGroupColor(text, hexColor string) string {
	if hexColor == "" {
		return StyleMuted.Render(text)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hexColor)).Bold(true).Render(text)
}

// FormatValue renders a value in minor currency units as major units.
func FormatValue(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// RenderBoard renders a board as side-by-side group columns.
func RenderBoard(view BoardView) string {
	columns := make([]string, 0, len(view.Groups))
	for _, g := range view.Groups {
		columns = append(columns, renderGroup(g))
	}
	title := StyleBold.Render(view.Name) + " " + RenderMuted("("+view.ID+")")
	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinHorizontal(lipgloss.Top, columns...))
}

func renderGroup(g GroupView) string {
	var b strings.Builder

	header := RenderGroupColor(g.Title, g.Color)
	if !g.Policy.AcceptsOutgoing || !g.Policy.AcceptsIncoming {
		header += " " + StyleWarning.Render(IconLocked)
	}
	b.WriteString(header)
	b.WriteString("\n")

	summary := fmt.Sprintf("%d item(s)", g.Count)
	if g.ValueSum != 0 {
		summary += " · " + FormatValue(g.ValueSum)
	}
	if g.Kind != model.GroupKindActive {
		summary += " · " + string(g.Kind)
	}
	b.WriteString(RenderMuted(summary))

	for _, it := range g.Items {
		b.WriteString("\n")
		line := it.Title
		if it.Value != 0 {
			line += " " + RenderMuted(FormatValue(it.Value))
		}
		b.WriteString(line)
		b.WriteString("\n")
		b.WriteString(RenderID(it.ID))
		if it.Assignee != "" {
			b.WriteString(RenderMuted(" @" + it.Assignee))
		}
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(orDefault(g.Color, "#6b7280"))).
		Width(groupWidth).
		Padding(0, 1)
	return style.Render(b.String())
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

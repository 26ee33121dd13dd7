package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Detail is one key/value line of a header or result box. Details keep the
// order they were given in.
type Detail struct {
	Key   string
	Value string
}

// RenderHeader renders the banner printed before an operation.
func RenderHeader(title, command string, params []Detail, width int) string {
	width = max(width, MinTerminalWidth)

	top := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(strings.ToUpper(title)),
		CommandStyle.Render(command),
	)

	content := top
	if len(params) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", max(width-6, 10)))
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, renderDetails(params))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// RenderSuccessBox renders a green result box.
func RenderSuccessBox(title string, details []Detail, width int) string {
	width = max(width, MinTerminalWidth)
	lines := []string{"", SuccessTitleStyle.Render(" " + MarkerComplete + "  SUCCESS  ─  " + title), ""}
	if len(details) > 0 {
		lines = append(lines, renderDetails(details), "")
	}
	return boxStyle(SuccessColor, width).Render(strings.Join(lines, "\n"))
}

// RenderWarningBox renders an orange result box.
func RenderWarningBox(title string, details []Detail, width int) string {
	width = max(width, MinTerminalWidth)
	lines := []string{"", WarningTitleStyle.Render(" " + MarkerWarning + "  WARNING  ─  " + title), ""}
	if len(details) > 0 {
		lines = append(lines, renderDetails(details), "")
	}
	return boxStyle(WarningColor, width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders a red result box with troubleshooting hints.
func RenderErrorBox(title string, err error, hints []string, width int) string {
	width = max(width, MinTerminalWidth)
	lines := []string{"", ErrorTitleStyle.Render(" " + MarkerFailed + "  FAILED  ─  " + title), ""}

	if err != nil {
		lines = append(lines, ErrorMessageStyle.Width(width-8).Render(" Error: "+err.Error()), "")
	}

	if len(hints) > 0 {
		hintLines := []string{HintTitleStyle.Render("Troubleshooting:"), ""}
		for _, hint := range hints {
			hintLines = append(hintLines, HintItemStyle.Render("  • "+hint))
		}
		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Width(max(width-12, 40)).
			Padding(0, 1).
			MarginLeft(1).
			Render(strings.Join(hintLines, "\n"))
		lines = append(lines, box, "")
	}

	return boxStyle(ErrorColor, width).Render(strings.Join(lines, "\n"))
}

func renderDetails(details []Detail) string {
	keyWidth := 0
	for _, d := range details {
		keyWidth = max(keyWidth, lipgloss.Width(d.Key)+1)
	}

	lines := make([]string, 0, len(details))
	for _, d := range details {
		key := KeyStyle.Render(d.Key + ":" + strings.Repeat(" ", keyWidth-lipgloss.Width(d.Key)-1))
		lines = append(lines, key+" "+ValueStyle.Render(d.Value))
	}
	return strings.Join(lines, "\n")
}

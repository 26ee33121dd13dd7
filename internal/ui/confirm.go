package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase must be typed exactly to approve a destructive operation.
const ConfirmPhrase = "I AGREE"

// Confirmer prompts before destructive operations.
type Confirmer struct {
	In    io.Reader
	Out   io.Writer
	Width int
}

// Confirm shows a warning box and reads one line from In. It returns true
// only if the line is ConfirmPhrase.
func (c *Confirmer) Confirm(title string, warnings []string) bool {
	width := max(c.Width, MinTerminalWidth)

	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf(" %s  WARNING  ─  %s", MarkerWarning, title)), ""}
	for _, w := range warnings {
		lines = append(lines, ValueStyle.Render(" • "+w))
	}
	lines = append(lines, "")

	_, _ = fmt.Fprintln(c.Out, boxStyle(WarningColor, width).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(c.Out)
	_, _ = fmt.Fprint(c.Out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", ConfirmPhrase)))

	input, err := bufio.NewReader(c.In).ReadString('\n')
	_, _ = fmt.Fprintln(c.Out)
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == ConfirmPhrase {
		return true
	}

	_, _ = fmt.Fprintln(c.Out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}

package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - success, checkmarks
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors, X marks
	WarningColor = lipgloss.Color("#FFA500") // Orange - warnings, running steps
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
)

var (
	// TitleStyle is for the operation title (e.g., "CLUSTER JOIN")
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true).
			PaddingLeft(2)

	// CommandStyle is for the invoked command (e.g., "appliancectl cluster join")
	CommandStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	// KeyStyle is for parameter and detail keys
	KeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	// ValueStyle is for parameter and detail values
	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	StepCompleteStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	StepRunningStyle  = lipgloss.NewStyle().Foreground(WarningColor)
	StepPendingStyle  = lipgloss.NewStyle().Foreground(MutedColor)
	StepFailedStyle   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)

	// StepNoteStyle is for optional notes in parentheses
	StepNoteStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	SuccessTitleStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	ErrorTitleStyle   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	WarningTitleStyle = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	ErrorMessageStyle = lipgloss.NewStyle().Foreground(ErrorColor)
	HintTitleStyle    = lipgloss.NewStyle().Foreground(MutedColor).Bold(true)
	HintItemStyle     = lipgloss.NewStyle().Foreground(MutedColor)
)

// Status markers
const (
	MarkerComplete = "✓"
	MarkerRunning  = "●"
	MarkerPending  = "·"
	MarkerSkipped  = "⊘"
	MarkerFailed   = "✗"
	MarkerWarning  = "⚠"
)

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	return clampWidth(width, err)
}

func clampWidth(width int, err error) int {
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func boxStyle(color lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 2)
}

package ui

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// RunOnceModel is a Bubble Tea model that renders once and exits.
type RunOnceModel struct {
	content string
}

func NewRunOnceModel(content string) RunOnceModel {
	return RunOnceModel{content: content}
}

// Init implements tea.Model
func (m RunOnceModel) Init() tea.Cmd {
	return tea.Quit
}

// Update implements tea.Model
func (m RunOnceModel) Update(tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

// View implements tea.Model
func (m RunOnceModel) View() string {
	return m.content
}

// RenderOnce renders content through Bubble Tea and exits immediately.
func RenderOnce(w io.Writer, content string) error {
	p := tea.NewProgram(NewRunOnceModel(content), tea.WithOutput(w), tea.WithInput(nil))
	_, err := p.Run()
	return err
}

// Printer writes styled UI components to a writer.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer for w. If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) *Printer {
	p.width = width
	return p
}

func (p *Printer) Width() int {
	return p.width
}

func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params []Detail) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details []Detail) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details []Detail) {
	p.Println(RenderWarningBox(title, details, p.width))
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, hints []string) {
	p.Println(RenderErrorBox(title, err, hints, p.width))
}

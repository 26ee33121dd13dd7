package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped, already in the desired state
)

func (s StepStatus) String() string {
	switch s {
	case StepRunning:
		return "running"
	case StepComplete:
		return "complete"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Step represents a single step in a multi-step operation
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Message string // e.g. "already trusted", "3 devices"
}

// Progress tracks a fixed list of steps and renders them with a bar.
type Progress struct {
	Steps   []Step
	Current int
	Percent float64
	bar     progress.Model
}

const stepNameWidth = 45

// NewProgress creates a progress tracker for the named steps.
func NewProgress(names []string) *Progress {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	p := &Progress{Steps: steps}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sizes the progress bar for a terminal of the given width.
func (p *Progress) SetWidth(width int) *Progress {
	barWidth := min(max(width-20, 20), 50)
	p.bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth))
	return p
}

// Total returns the number of steps.
func (p *Progress) Total() int {
	return len(p.Steps)
}

// UpdateStep updates a step's status and message. Out of range step numbers
// are ignored.
func (p *Progress) UpdateStep(number int, status StepStatus, message string) {
	if number < 1 || number > len(p.Steps) {
		return
	}
	step := &p.Steps[number-1]
	step.Status = status
	step.Message = message

	if status == StepRunning {
		p.Current = number
		return
	}

	done := 0
	for _, s := range p.Steps {
		if s.Status == StepComplete || s.Status == StepSkipped {
			done++
		}
	}
	p.Percent = float64(done) / float64(len(p.Steps))
}

// Render returns the bar followed by the step list.
func (p *Progress) Render() string {
	var b strings.Builder
	b.WriteString(p.RenderBar())
	b.WriteString("\n\n")

	lines := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		lines = append(lines, p.RenderStep(step))
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// RenderBar renders the progress bar with percentage and step counter.
func (p *Progress) RenderBar() string {
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %3.0f%%  [%d/%d]", p.bar.ViewAs(p.Percent), p.Percent*100, p.Current, p.Total()))
}

// RenderStep renders a single step line, e.g. "[2/5] Adding to trust   ✓".
func (p *Progress) RenderStep(step Step) string {
	marker, style := stepMarker(step.Status)

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", step.Number, p.Total())
	b.WriteString(style.Render(step.Name))
	b.WriteString(strings.Repeat(" ", max(stepNameWidth-lipgloss.Width(step.Name), 1)))
	b.WriteString(style.Render(marker))
	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

func stepMarker(status StepStatus) (string, lipgloss.Style) {
	switch status {
	case StepComplete:
		return MarkerComplete, StepCompleteStyle
	case StepRunning:
		return MarkerRunning, StepRunningStyle
	case StepFailed:
		return MarkerFailed, StepFailedStyle
	case StepSkipped:
		return MarkerSkipped, StepPendingStyle
	default:
		return MarkerPending, StepPendingStyle
	}
}

func (p *Progress) String() string {
	return p.Render()
}

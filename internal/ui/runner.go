package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muurk/appliancectl/internal/restapi"
)

// ErrSkipped is returned by a Task that found nothing to do. The runner
// records the step as skipped and carries on.
var ErrSkipped = errors.New("skipped")

// Task is one step of a multi-step operation. Run returns an optional short
// note shown next to the step.
type Task struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// RunnerConfig describes a multi-step operation for display.
type RunnerConfig struct {
	Title   string    // e.g. "Cluster Join"
	Command string    // e.g. "appliancectl cluster join"
	Params  []Detail  // Shown in the header
	Output  io.Writer // Defaults to os.Stdout
	Width   int       // Defaults to the terminal width

	// Hints returns troubleshooting tips for a failure. Defaults to
	// restapi.GetTroubleshootingHint.
	Hints func(error) []string
}

// StepRunner runs tasks in order and renders header, step progress and a
// result box.
type StepRunner struct {
	config RunnerConfig
	out    io.Writer
	width  int
	now    func() time.Time
}

// NewStepRunner creates a runner for the given operation.
func NewStepRunner(config RunnerConfig) *StepRunner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Hints == nil {
		config.Hints = restapi.GetTroubleshootingHint
	}
	width := config.Width
	if width == 0 {
		width = GetTerminalWidth()
	}
	return &StepRunner{config: config, out: config.Output, width: width, now: time.Now}
}

// Run executes tasks until one fails. Remaining tasks stay pending.
func (r *StepRunner) Run(ctx context.Context, tasks []Task) error {
	start := r.now()

	_, _ = fmt.Fprintln(r.out, RenderHeader(r.config.Title, r.config.Command, r.config.Params, r.width))
	_, _ = fmt.Fprintln(r.out)

	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	prog := NewProgress(names).SetWidth(r.width)

	var failed error
	for i, task := range tasks {
		n := i + 1
		if err := ctx.Err(); err != nil {
			failed = err
			break
		}

		prog.UpdateStep(n, StepRunning, "")
		note, err := task.Run(ctx)
		switch {
		case errors.Is(err, ErrSkipped):
			prog.UpdateStep(n, StepSkipped, note)
		case err != nil:
			prog.UpdateStep(n, StepFailed, "")
			failed = fmt.Errorf("%s: %w", task.Name, err)
		default:
			prog.UpdateStep(n, StepComplete, note)
		}
		_, _ = fmt.Fprintln(r.out, prog.RenderStep(prog.Steps[i]))
		if failed != nil {
			break
		}
	}

	_, _ = fmt.Fprintln(r.out)
	elapsed := r.now().Sub(start).Round(time.Millisecond)
	if failed != nil {
		_, _ = fmt.Fprintln(r.out, RenderErrorBox(r.config.Title+" failed", failed, r.config.Hints(failed), r.width))
		return failed
	}

	details := []Detail{
		{Key: "Steps", Value: fmt.Sprintf("%d", len(tasks))},
		{Key: "Duration", Value: elapsed.String()},
	}
	_, _ = fmt.Fprintln(r.out, RenderSuccessBox(r.config.Title+" complete", details, r.width))
	return nil
}

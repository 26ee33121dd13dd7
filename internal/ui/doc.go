// Package ui renders terminal output for the appliancectl CLI.
//
// Output follows a "run once and exit" pattern: a header box naming the
// operation, a step list for multi-step workflows, and a success or failure
// box. Styling is done with Lipgloss and the progress bar comes from Bubbles.
//
// Multi-step commands such as cluster join use a StepRunner:
//
//	runner := ui.NewStepRunner(ui.RunnerConfig{
//	    Title:   "Cluster Join",
//	    Command: "appliancectl cluster join",
//	    Params:  []ui.Detail{{Key: "Group", Value: "dg1"}},
//	})
//
//	err := runner.Run(ctx, []ui.Task{
//	    {Name: "Waiting for appliance", Run: waitReady},
//	    {Name: "Adding peer to trust", Run: addTrust},
//	})
//
// A task that finds the appliance already in the desired state returns
// ErrSkipped. Failures are shown with hints from the restapi package.
//
// Logging stays silent unless APPLIANCECTL_LOG_LEVEL is set, so the UI
// output is not interleaved with log lines.
package ui

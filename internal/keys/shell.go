package keys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// TMSHPath is the appliance configuration shell.
const TMSHPath = "/usr/bin/tmsh"

// Shell runs local commands and returns their standard output.
type Shell interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecShell runs commands with os/exec.
type ExecShell struct{}

// Run executes name with args. On failure the error carries stderr.
func (ExecShell) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && msg != "" {
			return stdout.String(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return stdout.String(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

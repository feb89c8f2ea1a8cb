package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// waitDelay bounds how long Execute waits for output pipes after the
// command was killed.
const waitDelay = 2 * time.Second

type CommandResult struct {
	Success  bool
	Output   string
	ExitCode int
	Duration time.Duration
}

// Executor runs shell commands on the local host.
type Executor struct {
	shell string
	dir   string
}

func NewExecutor(shell, dir string) *Executor {
	if shell == "" {
		shell = "sh"
	}
	return &Executor{shell: shell, dir: dir}
}

// Execute runs command through the shell until it exits or ctx is done.
// A non-zero exit returns the result together with an error whose text is
// the command's stderr.
func (e *Executor) Execute(ctx context.Context, command string) (*CommandResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	cmd.Dir = e.dir
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{
		Duration: time.Since(start),
		Output:   stdout.String(),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.ExitCode = -1
			return result, ctxErr
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			msg := stderr.String()
			if msg == "" {
				msg = err.Error()
			}
			return result, fmt.Errorf("exit status %d: %s", result.ExitCode, msg)
		}
		result.ExitCode = -1
		return result, err
	}

	result.Success = true
	return result, nil
}

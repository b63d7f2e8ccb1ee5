package typeset

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Runner executes a command and returns its exit code and stderr.
type Runner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, stderr []byte, err error)
}

// ErrToolNotFound is returned when the typesetter binary is not on PATH.
var ErrToolNotFound = errors.New("typesetter not found")

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner. A non-zero exit is reported through exitCode,
// not err.
func (ExecRunner) Run(ctx context.Context, cmd Command) (int, []byte, error) {
	bin, err := exec.LookPath(cmd.Name)
	if err != nil {
		return -1, nil, ErrToolNotFound
	}
	c := exec.CommandContext(ctx, bin, cmd.Args...) // #nosec G204 -- configured typesetter binary
	c.Dir = cmd.Dir
	var stderr bytes.Buffer
	c.Stderr = &stderr
	c.Stdout = &stderr
	err = c.Run()
	if ctx.Err() != nil {
		return -1, stderr.Bytes(), ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stderr.Bytes(), nil
	}
	if err != nil {
		return -1, stderr.Bytes(), err
	}
	return 0, stderr.Bytes(), nil
}

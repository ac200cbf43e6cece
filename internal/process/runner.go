// Package process runs external commands and captures their output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"driftwatch/internal/apperrors"
)

// Command describes one invocation. Env entries ("KEY=value") are appended
// to the parent environment.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured outcome of a process that started.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands. The zero value is ready to use and safe for
// concurrent use by independent callers.
type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Run executes cmd and returns its exit code and output. A non-zero exit is
// reported in Result, not as an error; the only error is a CodeSpawn failure
// when the executable could not be launched.
func (r *Runner) Run(ctx context.Context, cmd Command) (Result, error) {
	if ctx == nil {
		return Result{}, apperrors.New(apperrors.CodeSpawn, "process: ctx is nil")
	}
	if cmd.Name == "" {
		return Result{}, apperrors.New(apperrors.CodeSpawn, "process: empty command name")
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	// Killed by signal (including context cancellation) or never started.
	if exitErr != nil {
		res.ExitCode = -1
		return res, nil
	}
	return res, apperrors.Wrap(apperrors.CodeSpawn, fmt.Sprintf("start %s", cmd.Name), err)
}

// RunStrict runs a trusted local utility and returns its stdout. Any non-zero
// exit or any stderr output is a CodeExecution failure.
func (r *Runner) RunStrict(ctx context.Context, name string, args ...string) (string, error) {
	cmd := Command{Name: name, Args: args}
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", apperrors.Newf(apperrors.CodeExecution, "%s exited with code %d: %s", cmd, res.ExitCode, strings.TrimSpace(res.Stderr)).
			WithContext("exit_code", res.ExitCode)
	}
	if res.Stderr != "" {
		return "", apperrors.Newf(apperrors.CodeExecution, "%s wrote to stderr: %s", cmd, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

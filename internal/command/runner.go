// Package command runs the external tools the pipeline drives (poppler,
// tesseract) and captures their output.
package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"pdf-ocr-batch/internal/domain"
)

// maxStderr bounds how much stderr is kept for error reports.
const maxStderr = 4096

// Result is a captured process execution response.
type Result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// NewExecRunner returns the production runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes one command and captures stdout, stderr and exit code.
func (r *ExecRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, err
	}

	return result, nil
}

// Log converts an invocation into the loggable form carried by errors.
func Log(name string, args []string, res Result) domain.CommandLog {
	stderr := strings.TrimSpace(res.Stderr)
	if len(stderr) > maxStderr {
		stderr = stderr[len(stderr)-maxStderr:]
	}
	return domain.CommandLog{
		Command:  name,
		Args:     append([]string(nil), args...),
		ExitCode: res.ExitCode,
		Stderr:   stderr,
	}
}

// RunFunc adapts a function to the Runner interface.
type RunFunc func(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error)

// Run calls f.
func (f RunFunc) Run(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error) {
	return f(ctx, stdin, name, args...)
}

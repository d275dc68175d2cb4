package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/pendergraft/sitelaunch/internal/logging"
)

// ErrCommandNotFound is returned when the binary is not on PATH
var ErrCommandNotFound = errors.New("command not found")

// Result is the captured outcome of a finished command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a local command and captures its output. A non-zero exit
// is reported in Result.ExitCode, not as an error; err is reserved for
// failures to start or wait for the process.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	logger   *slog.Logger
	redactor *logging.Redactor
}

// NewExecRunner creates a runner that logs redacted command lines
func NewExecRunner(logger *slog.Logger, redactor *logging.Redactor) *ExecRunner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExecRunner{logger: logger, redactor: redactor}
}

// LookPath reports the resolved path of a binary
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return path, nil
}

// Run executes name with args
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	line := r.CommandLine(name, args...)
	r.logger.Debug("running command", "command", line)

	// #nosec G204 - arguments are built by the adapters, never by a shell
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	default:
		return nil, fmt.Errorf("running %s: %s", line, r.redactor.Redact(err.Error()))
	}

	r.logger.Debug("command finished", "command", line, "exit_code", res.ExitCode)
	return res, nil
}

// CommandLine renders a command for logs with secrets masked
func (r *ExecRunner) CommandLine(name string, args ...string) string {
	return strings.Join(r.redactor.RedactArgs(append([]string{name}, args...)), " ")
}

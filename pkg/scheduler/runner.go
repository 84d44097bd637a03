// Package scheduler invokes the external batch-scheduler and storage commands.
//
// Commands run synchronously; a non-zero exit is returned as a *CommandError
// and is fatal to the calling operation. No retry happens at this layer.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

// ErrCommandFailed indicates an external command exited non-zero or could not start.
var ErrCommandFailed = errors.New("external command failed")

// stderrTailBytes bounds how much stderr is kept on a CommandError.
const stderrTailBytes = 4096

// CommandError reports a failed external command.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	line := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	msg := fmt.Sprintf("%s: %s", ErrCommandFailed, line)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Err}
}

// Runner runs one external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	stdout io.Writer
	stderr io.Writer
	env    []string
	logger *zap.Logger
}

var _ Runner = (*ExecRunner)(nil)

type RunnerOption func(*ExecRunner)

// WithOutput sets where command stdout and stderr are forwarded.
func WithOutput(stdout, stderr io.Writer) RunnerOption {
	return func(r *ExecRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithEnv appends entries to the inherited environment.
func WithEnv(env ...string) RunnerOption {
	return func(r *ExecRunner) { r.env = append(r.env, env...) }
}

func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *ExecRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewExecRunner(opts ...RunnerOption) *ExecRunner {
	r := &ExecRunner{stdout: os.Stdout, stderr: os.Stderr, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	var tail bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, &tail)
	cmd.Env = append(os.Environ(), r.env...)

	r.logger.Debug("Running command", zap.String("command", name), zap.Strings("args", args))
	err := cmd.Run()
	if err == nil {
		return nil
	}

	cerr := &CommandError{Command: name, Args: append([]string{}, args...), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cerr.ExitCode = exitErr.ExitCode()
		cerr.Err = nil
	}
	stderr := tail.Bytes()
	if len(stderr) > stderrTailBytes {
		stderr = stderr[len(stderr)-stderrTailBytes:]
	}
	cerr.Stderr = string(stderr)
	return cerr
}

// SplitCommand splits a configured command line into argv using shell quoting rules.
func SplitCommand(line string) ([]string, error) {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	return argv, nil
}

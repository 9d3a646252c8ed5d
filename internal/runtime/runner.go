// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"boxman-cli/internal/command"
)

type (
	// ShellRunner executes a raw shell command line. Implementations
	// never return an error: failures are reported through the Result's
	// exit code and stderr, which matches how runtime operations probe
	// and retry. env entries are added on top of the ambient process
	// environment; stream controls whether output is echoed to the
	// runner's writers in addition to being captured.
	ShellRunner interface {
		RunShell(ctx context.Context, cmdline string, env map[string]string, stream bool) *command.Result
	}

	// ShellRunnerFunc adapts a function to the ShellRunner interface.
	ShellRunnerFunc func(ctx context.Context, cmdline string, env map[string]string, stream bool) *command.Result

	// ExecRunnerOption configures an execRunner.
	ExecRunnerOption func(*execRunner)

	execRunner struct {
		execCommand command.ExecCommandFunc
		stdout      io.Writer
		stderr      io.Writer
	}
)

// RunShell implements ShellRunner.
func (f ShellRunnerFunc) RunShell(ctx context.Context, cmdline string, env map[string]string, stream bool) *command.Result {
	return f(ctx, cmdline, env, stream)
}

// WithRunnerExecCommand sets a custom exec command function for testing.
func WithRunnerExecCommand(fn command.ExecCommandFunc) ExecRunnerOption {
	return func(r *execRunner) { r.execCommand = fn }
}

// WithRunnerOutput sets the writers used when a call streams output.
func WithRunnerOutput(stdout, stderr io.Writer) ExecRunnerOption {
	return func(r *execRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// NewExecRunner returns a ShellRunner backed by /bin/sh on the host.
func NewExecRunner(opts ...ExecRunnerOption) ShellRunner {
	r := &execRunner{
		execCommand: exec.CommandContext,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *execRunner) RunShell(ctx context.Context, cmdline string, env map[string]string, stream bool) *command.Result {
	cmd := r.execCommand(ctx, "/bin/sh", "-c", cmdline)
	if len(env) > 0 {
		merged := os.Environ()
		for k, v := range env {
			merged = append(merged, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = merged
	}

	var outBuf, errBuf bytes.Buffer
	if stream {
		cmd.Stdout = io.MultiWriter(r.stdout, &outBuf)
		cmd.Stderr = io.MultiWriter(r.stderr, &errBuf)
	} else {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	}

	res := &command.Result{}
	err := cmd.Run()
	res.Stdout = outBuf.String()
	res.Stderr = errBuf.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = 1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}
	return res
}

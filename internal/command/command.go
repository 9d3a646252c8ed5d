// SPDX-License-Identifier: MPL-2.0

// Package command builds and executes shell command lines for external
// provisioning tools (virsh, virt-clone, vboxmanage, oras, ...).
//
// An Executor turns a logical operation (subcommand, positional args,
// flag options) into a single command string, asks the active runtime to
// wrap it for the right execution environment, and runs it under the
// shell, capturing exit status and both output streams. It performs no
// validation of flag semantics; those belong to the calling provider.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/syntax"

	"boxman-cli/internal/provider"
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// Wrapper transforms a command string for the active execution
	// environment. The runtime package's Runtime satisfies it.
	Wrapper interface {
		WrapCommand(command string) string
	}

	// Result captures the outcome of a single command invocation.
	// It is created fresh per invocation and never reused.
	Result struct {
		ExitCode int
		Stdout   string
		Stderr   string
	}

	// Flag is a keyword option for Executor.Build. A true Value renders
	// as a bare --name flag, false or nil is omitted, and anything else
	// renders as --name=value. Underscores in Name become hyphens.
	Flag struct {
		Name  string
		Value any
	}

	// ExecOpts controls output handling and failure signaling per call.
	ExecOpts struct {
		// Hide suppresses streaming of the child's output to the
		// executor's writers; output is still captured in the Result.
		Hide bool
		// Warn returns the failing Result instead of an ExecError when
		// the command exits non-zero.
		Warn bool
	}

	// Option configures an Executor.
	Option func(*Executor)

	// Executor builds and runs command lines for one external tool.
	Executor struct {
		cfg         *provider.Config
		wrapper     Wrapper
		logger      *log.Logger
		tool        string
		baseArgs    []string
		execCommand ExecCommandFunc
		stdout      io.Writer
		stderr      io.Writer
	}
)

// OK reports whether the command exited successfully.
func (r *Result) OK() bool { return r.ExitCode == 0 }

// F is shorthand for constructing a Flag.
func F(name string, value any) Flag { return Flag{Name: name, Value: value} }

// ErrCommandFailed is the sentinel error wrapped by ExecError.
var ErrCommandFailed = errors.New("command failed")

// ExecError is returned when a command exits non-zero and the caller did
// not opt into warn mode. It carries the full command line and both
// captured output streams for diagnosis.
type ExecError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return fmt.Sprintf("command failed: %s\nexit code: %d\nstdout: %s\nstderr: %s",
		e.Command, e.ExitCode, e.Stdout, e.Stderr)
}

// Unwrap returns ErrCommandFailed so callers can use errors.Is for
// programmatic detection.
func (e *ExecError) Unwrap() error { return ErrCommandFailed }

// WithTool sets the executable invoked before the subcommand.
func WithTool(path string) Option {
	return func(e *Executor) { e.tool = path }
}

// WithBaseArgs sets arguments inserted between the tool and the
// subcommand on every invocation (e.g. "-c", "qemu:///system").
func WithBaseArgs(args ...string) Option {
	return func(e *Executor) { e.baseArgs = args }
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(e *Executor) { e.execCommand = fn }
}

// WithOutput sets the writers used when a call streams output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// New creates an Executor for the given provider configuration. The
// wrapper may be nil, in which case commands run unwrapped (equivalent
// to the local runtime). A nil logger discards log output.
func New(cfg *provider.Config, wrapper Wrapper, logger *log.Logger, opts ...Option) *Executor {
	if cfg == nil {
		cfg = &provider.Config{}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	e := &Executor{
		cfg:         cfg,
		wrapper:     wrapper,
		logger:      logger,
		execCommand: exec.CommandContext,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build assembles the full command line for a subcommand. Positional
// arguments are appended verbatim; flags follow the Flag rendering
// rules. An empty subcommand and empty argument sets still produce a
// valid command line (the bare tool).
func (e *Executor) Build(sub string, positional []string, flags ...Flag) string {
	parts := make([]string, 0, 4+len(positional)+len(flags))
	if e.cfg.UseSudo {
		parts = append(parts, "sudo")
	}
	if e.tool != "" {
		parts = append(parts, e.tool)
	}
	parts = append(parts, e.baseArgs...)
	if sub != "" {
		parts = append(parts, sub)
	}
	parts = append(parts, positional...)
	for _, f := range flags {
		if rendered, ok := renderFlag(f); ok {
			parts = append(parts, rendered)
		}
	}
	return strings.Join(parts, " ")
}

// renderFlag converts a Flag into its command-line form. The second
// return value is false when the flag is omitted entirely.
func renderFlag(f Flag) (string, bool) {
	name := strings.ReplaceAll(f.Name, "_", "-")
	switch v := f.Value.(type) {
	case nil:
		return "", false
	case bool:
		if !v {
			return "", false
		}
		return "--" + name, true
	default:
		return "--" + name + "=" + quoteValue(fmt.Sprint(v)), true
	}
}

// quoteValue shell-quotes a flag value only when it needs quoting.
func quoteValue(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return s
	}
	return q
}

// Execute builds the command line for a subcommand and runs it through
// the active runtime. On non-zero exit it returns the Result together
// with an *ExecError unless opts.Warn is set, in which case the failing
// Result is returned with a nil error.
func (e *Executor) Execute(ctx context.Context, sub string, positional []string, opts ExecOpts, flags ...Flag) (*Result, error) {
	return e.run(ctx, e.Build(sub, positional, flags...), opts)
}

// ExecuteShell runs a pre-built raw command string with the same
// semantics as Execute. It exists for shell pipelines the flag builder
// cannot express. sudo is prefixed when configured and not already
// present.
func (e *Executor) ExecuteShell(ctx context.Context, raw string, opts ExecOpts) (*Result, error) {
	if e.cfg.UseSudo && !strings.HasPrefix(raw, "sudo ") {
		raw = "sudo " + raw
	}
	return e.run(ctx, raw, opts)
}

func (e *Executor) run(ctx context.Context, cmdline string, opts ExecOpts) (*Result, error) {
	if e.wrapper != nil {
		cmdline = e.wrapper.WrapCommand(cmdline)
	}
	if e.cfg.Verbose {
		e.logger.Info("executing", "command", cmdline)
	}

	cmd := e.execCommand(ctx, "/bin/sh", "-c", cmdline)

	var outBuf, errBuf bytes.Buffer
	if opts.Hide {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	} else {
		cmd.Stdout = io.MultiWriter(e.stdout, &outBuf)
		cmd.Stderr = io.MultiWriter(e.stderr, &errBuf)
	}

	err := cmd.Run()
	res := &Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// The process could not be started at all.
			res.ExitCode = 1
			if opts.Warn {
				res.Stderr = err.Error()
				return res, nil
			}
			return res, fmt.Errorf("run command %q: %w", cmdline, err)
		}
	}

	if !res.OK() && !opts.Warn {
		execErr := &ExecError{
			Command:  cmdline,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
		e.logger.Error("command failed",
			"command", cmdline, "exit_code", res.ExitCode)
		return res, execErr
	}
	return res, nil
}

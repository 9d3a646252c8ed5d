// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"io"
	"os/exec"
	"strconv"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
)

// reply is one canned response for a scripted executor.
type reply struct {
	stdout   string
	exitCode int
}

// scriptedExecutor builds a command.Executor whose child processes are
// faked. Every command line is appended to commands; respond maps a
// command line to its canned outcome.
func scriptedExecutor(commands *[]string, respond func(cmdline string) reply, opts ...command.Option) *command.Executor {
	fake := func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		cmdline := arg[len(arg)-1]
		*commands = append(*commands, cmdline)
		r := respond(cmdline)
		if r.exitCode != 0 {
			return exec.CommandContext(ctx, "sh", "-c", "exit "+strconv.Itoa(r.exitCode))
		}
		if r.stdout == "" {
			return exec.CommandContext(ctx, "true")
		}
		return exec.CommandContext(ctx, "printf", "%s", r.stdout)
	}
	opts = append([]command.Option{command.WithExecCommand(fake)}, opts...)
	return command.New(nil, nil, log.New(io.Discard), opts...)
}

// ok is the respond function for tests that only care about the issued
// command lines.
func ok(string) reply { return reply{} }

// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"boxman-cli/internal/provider"
)

// fakeExec records the shell command line it was asked to run and
// substitutes a harmless process with a scripted exit code.
func fakeExec(t *testing.T, captured *string, exitCode int) ExecCommandFunc {
	t.Helper()
	return func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		if name != "/bin/sh" || len(arg) != 2 || arg[0] != "-c" {
			t.Fatalf("unexpected exec invocation: %s %v", name, arg)
		}
		*captured = arg[1]
		if exitCode == 0 {
			return exec.CommandContext(ctx, "true")
		}
		return exec.CommandContext(ctx, "false")
	}
}

func TestBuildFlagRendering(t *testing.T) {
	e := New(&provider.Config{}, nil, nil, WithTool("virsh"))

	tests := []struct {
		name  string
		sub   string
		pos   []string
		flags []Flag
		want  string
	}{
		{
			name: "bare tool and subcommand",
			sub:  "list",
			want: "virsh list",
		},
		{
			name: "true renders bare flag",
			sub:  "list",
			flags: []Flag{
				F("all", true),
			},
			want: "virsh list --all",
		},
		{
			name: "false and nil are omitted",
			sub:  "list",
			flags: []Flag{
				F("all", false),
				F("name", nil),
			},
			want: "virsh list",
		},
		{
			name: "value flags use equals form",
			sub:  "snapshot-create-as",
			pos:  []string{"myvm"},
			flags: []Flag{
				F("name", "snap1"),
			},
			want: "virsh snapshot-create-as myvm --name=snap1",
		},
		{
			name: "underscores become hyphens",
			sub:  "snapshot-list",
			pos:  []string{"myvm"},
			flags: []Flag{
				F("no_metadata", true),
			},
			want: "virsh snapshot-list myvm --no-metadata",
		},
		{
			name: "integer values render verbatim",
			sub:  "setmem",
			pos:  []string{"myvm"},
			flags: []Flag{
				F("size", 4096),
			},
			want: "virsh setmem myvm --size=4096",
		},
		{
			name: "values with spaces are quoted",
			sub:  "desc",
			pos:  []string{"myvm"},
			flags: []Flag{
				F("title", "my vm"),
			},
			want: "virsh desc myvm --title='my vm'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Build(tt.sub, tt.pos, tt.flags...)
			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildSudoPrefix(t *testing.T) {
	e := New(&provider.Config{UseSudo: true}, nil, nil, WithTool("virsh"))
	got := e.Build("list", nil)
	if got != "sudo virsh list" {
		t.Errorf("Build() = %q, want %q", got, "sudo virsh list")
	}
}

func TestBuildBaseArgs(t *testing.T) {
	e := New(&provider.Config{}, nil, nil,
		WithTool("virsh"),
		WithBaseArgs("-c", "qemu:///system"))
	got := e.Build("list", nil, F("all", true))
	want := "virsh -c qemu:///system list --all"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

type prefixWrapper struct{ prefix string }

func (w prefixWrapper) WrapCommand(cmd string) string { return w.prefix + cmd }

func TestExecuteWrapsCommand(t *testing.T) {
	var captured string
	e := New(&provider.Config{}, prefixWrapper{prefix: "wrapped: "}, nil,
		WithTool("virsh"),
		WithExecCommand(fakeExec(t, &captured, 0)))

	res, err := e.Execute(context.Background(), "list", nil, ExecOpts{Hide: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.OK() {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if captured != "wrapped: virsh list" {
		t.Errorf("executed %q, want wrapped command", captured)
	}
}

func TestExecuteFailureReturnsExecError(t *testing.T) {
	var captured string
	e := New(&provider.Config{}, nil, nil,
		WithTool("virsh"),
		WithExecCommand(fakeExec(t, &captured, 1)))

	res, err := e.Execute(context.Background(), "list", nil, ExecOpts{Hide: true})
	if err == nil {
		t.Fatal("Execute() expected error on non-zero exit")
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecError", err)
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Error("error does not wrap ErrCommandFailed")
	}
	if execErr.ExitCode != 1 || res.ExitCode != 1 {
		t.Errorf("exit code = %d/%d, want 1", execErr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(execErr.Command, "virsh list") {
		t.Errorf("ExecError.Command = %q, missing command line", execErr.Command)
	}
}

func TestExecuteWarnSuppressesError(t *testing.T) {
	var captured string
	e := New(&provider.Config{}, nil, nil,
		WithTool("virsh"),
		WithExecCommand(fakeExec(t, &captured, 1)))

	res, err := e.Execute(context.Background(), "list", nil, ExecOpts{Hide: true, Warn: true})
	if err != nil {
		t.Fatalf("Execute() with Warn error = %v", err)
	}
	if res.OK() {
		t.Error("expected failing result with Warn")
	}
}

func TestExecuteShellSudo(t *testing.T) {
	var captured string
	e := New(&provider.Config{UseSudo: true}, nil, nil,
		WithExecCommand(fakeExec(t, &captured, 0)))

	if _, err := e.ExecuteShell(context.Background(), "qemu-img info disk.qcow2", ExecOpts{Hide: true}); err != nil {
		t.Fatalf("ExecuteShell() error = %v", err)
	}
	if captured != "sudo qemu-img info disk.qcow2" {
		t.Errorf("executed %q, want sudo prefix", captured)
	}

	// Already-prefixed commands are not doubled.
	if _, err := e.ExecuteShell(context.Background(), "sudo ls /", ExecOpts{Hide: true}); err != nil {
		t.Fatalf("ExecuteShell() error = %v", err)
	}
	if captured != "sudo ls /" {
		t.Errorf("executed %q, want single sudo prefix", captured)
	}
}

func TestExecuteCapturesOutput(t *testing.T) {
	e := New(&provider.Config{}, nil, nil,
		WithExecCommand(func(ctx context.Context, name string, arg ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", "echo out; echo err 1>&2")
		}))

	res, err := e.ExecuteShell(context.Background(), "ignored", ExecOpts{Hide: true})
	if err != nil {
		t.Fatalf("ExecuteShell() error = %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out")
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "err")
	}
}

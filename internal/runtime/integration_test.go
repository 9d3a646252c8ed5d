// SPDX-License-Identifier: MPL-2.0

// Integration tests for runtime command wrapping against a real
// container. These require Docker to be available.
package runtime

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// checkTestcontainersAvailable safely checks if testcontainers can be used.
// Returns true if containers are available, false otherwise.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

// TestWrapCommand_Integration verifies that a wrapped command actually
// executes inside a running container, including quoting of awkward
// command lines.
func TestWrapCommand_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping integration test: testcontainers provider not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const containerName = "boxman-runtime-inttest"
	req := testcontainers.ContainerRequest{
		Image:      "debian:bookworm-slim",
		Name:       containerName,
		Cmd:        []string{"sleep", "300"},
		WaitingFor: wait.ForExec([]string{"true"}),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("skipping: could not start container: %v", err)
	}
	defer func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}()

	rt := NewComposeRuntime(Options{ContainerName: containerName})
	runner := NewExecRunner()

	t.Run("BasicExecution", func(t *testing.T) {
		res := runner.RunShell(ctx, rt.WrapCommand("echo hello-from-container"), nil, false)
		if !res.OK() {
			t.Fatalf("wrapped command failed: exit %d, stderr %q", res.ExitCode, res.Stderr)
		}
		if !strings.Contains(res.Stdout, "hello-from-container") {
			t.Errorf("stdout = %q", res.Stdout)
		}
	})

	t.Run("SingleQuoteEscaping", func(t *testing.T) {
		res := runner.RunShell(ctx, rt.WrapCommand("echo 'quoted value'"), nil, false)
		if !res.OK() {
			t.Fatalf("wrapped command failed: exit %d, stderr %q", res.ExitCode, res.Stderr)
		}
		if !strings.Contains(res.Stdout, "quoted value") {
			t.Errorf("stdout = %q", res.Stdout)
		}
	})

	t.Run("ExitCode", func(t *testing.T) {
		res := runner.RunShell(ctx, rt.WrapCommand("exit 42"), nil, false)
		if res.ExitCode != 42 {
			t.Errorf("exit code = %d, want 42", res.ExitCode)
		}
	})

	t.Run("RunsAsRoot", func(t *testing.T) {
		res := runner.RunShell(ctx, rt.WrapCommand("id -u"), nil, false)
		if !res.OK() {
			t.Fatalf("wrapped command failed: exit %d, stderr %q", res.ExitCode, res.Stderr)
		}
		if strings.TrimSpace(res.Stdout) != "0" {
			t.Errorf("uid = %q, want 0", strings.TrimSpace(res.Stdout))
		}
	})
}

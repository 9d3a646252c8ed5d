// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for programmatic detection with errors.Is.
var (
	// ErrReadyTimeout indicates the managed runtime did not reach a
	// usable state before its deadline.
	ErrReadyTimeout = errors.New("runtime not ready within timeout")

	// ErrComposeFileNotFound indicates no compose descriptor could be
	// resolved for the managed runtime.
	ErrComposeFileNotFound = errors.New("compose file not found")

	// ErrComposeUpFailed indicates the compose environment failed to
	// start.
	ErrComposeUpFailed = errors.New("compose up failed")
)

// ReadyTimeoutError reports which readiness phase exceeded its deadline.
type ReadyTimeoutError struct {
	Container string
	Timeout   time.Duration
	// Phase is "container" while waiting for the container to reach the
	// running state, or "libvirtd" while waiting for the daemon inside
	// it to respond.
	Phase string
}

// Error implements the error interface.
func (e *ReadyTimeoutError) Error() string {
	switch e.Phase {
	case "libvirtd":
		return fmt.Sprintf("libvirtd inside %q did not become responsive within %s",
			e.Container, e.Timeout)
	default:
		return fmt.Sprintf("container %q did not start within %s",
			e.Container, e.Timeout)
	}
}

// Unwrap returns ErrReadyTimeout for use with errors.Is.
func (e *ReadyTimeoutError) Unwrap() error { return ErrReadyTimeout }

// ComposeFileNotFoundError reports a configured compose path that does
// not exist on disk. Source identifies where the path came from.
type ComposeFileNotFoundError struct {
	Path   string
	Source string
}

// Error implements the error interface.
func (e *ComposeFileNotFoundError) Error() string {
	if e.Path == "" {
		return "cannot locate a docker-compose.yml for the runtime; " +
			"set runtime.compose_file in boxman.yml or the " +
			EnvComposeFile + " env var"
	}
	return fmt.Sprintf("compose file from %s not found: %s", e.Source, e.Path)
}

// Unwrap returns ErrComposeFileNotFound for use with errors.Is.
func (e *ComposeFileNotFoundError) Unwrap() error { return ErrComposeFileNotFound }

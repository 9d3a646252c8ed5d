// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/provider"
)

// Runtime names accepted by New. "docker" is an alias kept for
// configuration convenience.
const (
	Local         = "local"
	Docker        = "docker"
	DockerCompose = "docker-compose"
)

// DefaultReadyTimeout bounds how long EnsureReady waits for the managed
// container and its libvirt daemon, per phase.
const DefaultReadyTimeout = 60 * time.Second

type (
	// Runtime wraps provider commands so they execute in the right place.
	Runtime interface {
		// Name returns the short identifier, e.g. "local" or
		// "docker-compose".
		Name() string

		// WrapCommand rewrites a command line for execution in this
		// runtime. The local runtime returns it unchanged.
		WrapCommand(command string) string

		// EnsureReady brings the runtime environment up and blocks
		// until it can accept commands.
		EnsureReady(ctx context.Context) error

		// InjectProviderConfig returns a copy of cfg enriched with
		// runtime information. The original is never mutated.
		InjectProviderConfig(cfg *provider.Config) *provider.Config
	}

	// Options configures a runtime created by New. Zero values select
	// sensible defaults; only the docker-compose runtime consults the
	// project-related fields.
	Options struct {
		// ProjectName scopes container, compose project, volume and
		// network names per project.
		ProjectName string

		// ProjectDir is the directory holding the project's boxman.yml.
		// Defaults to the current working directory.
		ProjectDir string

		// Workdirs lists additional directories that must be reachable
		// inside the managed container.
		Workdirs []string

		// ComposeFile overrides compose descriptor resolution with an
		// explicit path.
		ComposeFile string

		// ContainerName overrides the derived container name when no
		// project name is set.
		ContainerName string

		// ReadyTimeout bounds each readiness phase. Defaults to
		// DefaultReadyTimeout. A negative value means no waiting.
		ReadyTimeout time.Duration

		Logger *log.Logger
		Runner ShellRunner
	}
)

// UnknownRuntimeError is returned by New for an unrecognized runtime
// name.
type UnknownRuntimeError struct {
	Name  string
	Valid []string
}

// Error implements the error interface.
func (e *UnknownRuntimeError) Error() string {
	return fmt.Sprintf("unknown runtime %q, supported: %s",
		e.Name, strings.Join(e.Valid, ", "))
}

// New returns the runtime for the given name.
func New(name string, opts Options) (Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}
	switch name {
	case Local:
		return &LocalRuntime{}, nil
	case Docker, DockerCompose:
		return NewComposeRuntime(opts), nil
	default:
		return nil, &UnknownRuntimeError{
			Name:  name,
			Valid: []string{Local, Docker, DockerCompose},
		}
	}
}

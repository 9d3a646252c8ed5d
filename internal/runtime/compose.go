// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/provider"
)

const (
	containerNamePrefix  = "boxman-libvirt-"
	defaultContainerName = "boxman-libvirt-default"
	composeProjectPrefix = "boxman-"

	containerPollInterval = 2 * time.Second
	servicePollInterval   = 3 * time.Second
)

var invalidProjectChars = regexp.MustCompile(`[^a-z0-9-]`)

// ComposeRuntime executes provider commands inside a managed
// docker-compose service container running libvirtd.
type ComposeRuntime struct {
	opts   Options
	logger *log.Logger
	runner ShellRunner
}

// NewComposeRuntime creates a docker-compose runtime. Usually reached
// through New.
func NewComposeRuntime(opts Options) *ComposeRuntime {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr)
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}
	if opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	return &ComposeRuntime{
		opts:   opts,
		logger: opts.Logger,
		runner: opts.Runner,
	}
}

// sanitizeProjectName lowercases a project name and replaces anything
// outside [a-z0-9-] with hyphens. Compose project names must be
// lowercase alphanumerics and hyphens only.
func sanitizeProjectName(name string) string {
	return strings.Trim(invalidProjectChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// ContainerName returns the managed container's name, derived from the
// project name when set: boxman-libvirt-<sanitized project name>. Falls
// back to the configured container name, then to the default.
func (r *ComposeRuntime) ContainerName() string {
	if r.opts.ProjectName != "" {
		return containerNamePrefix + sanitizeProjectName(r.opts.ProjectName)
	}
	if r.opts.ContainerName != "" {
		return r.opts.ContainerName
	}
	return defaultContainerName
}

// composeProjectName returns the docker compose -p project name.
func (r *ComposeRuntime) composeProjectName() string {
	if r.opts.ProjectName != "" {
		return composeProjectPrefix + sanitizeProjectName(r.opts.ProjectName)
	}
	return composeProjectPrefix + "default"
}

// composeBaseCmd returns the docker compose invocation with project
// scoping applied.
func (r *ComposeRuntime) composeBaseCmd(composePath, composeDir string) string {
	return fmt.Sprintf("docker compose -p %s -f %s --project-directory %s",
		r.composeProjectName(), composePath, composeDir)
}

// Name implements Runtime.
func (r *ComposeRuntime) Name() string { return DockerCompose }

// escapeSingleQuotes makes s safe for interpolation inside a
// single-quoted shell word.
func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// WrapCommand implements Runtime. The command runs as root inside the
// managed container; single quotes are escaped so arbitrary command
// lines survive the bash -c quoting.
func (r *ComposeRuntime) WrapCommand(command string) string {
	return fmt.Sprintf("docker exec --user root %s bash -c '%s'",
		r.ContainerName(), escapeSingleQuotes(command))
}

// InjectProviderConfig implements Runtime.
func (r *ComposeRuntime) InjectProviderConfig(cfg *provider.Config) *provider.Config {
	out := cfg.Clone()
	out.Runtime = DockerCompose
	out.RuntimeContainer = r.ContainerName()
	return out
}

// projectDir returns the absolute project directory, defaulting to the
// current working directory.
func (r *ComposeRuntime) projectDir() string {
	base := r.opts.ProjectDir
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return base
	}
	return abs
}

// EnsureReady implements Runtime. It resolves the compose descriptor,
// reconciles bind mounts and the .env file, and brings the environment
// up if it is not already running and usable.
func (r *ComposeRuntime) EnsureReady(ctx context.Context) error {
	composePath, err := r.ComposeFilePath()
	if err != nil {
		return err
	}
	composeDir := filepath.Dir(composePath)
	absProjectDir := r.projectDir()

	bindDirs := r.collectBindMountDirs(absProjectDir)
	if err := r.injectBindMounts(composePath, bindDirs); err != nil {
		return fmt.Errorf("inject bind mounts: %w", err)
	}

	// Always rewrite .env with the current paths.
	if err := r.writeEnvFile(composeDir, absProjectDir); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}

	r.logComposeFile(composePath)

	if r.containerRunning(ctx) {
		// Check that every bind dir is reachable inside the container;
		// a stale container started before a workdir was added must be
		// recreated to pick up the new mounts.
		allAccessible := true
		for _, d := range bindDirs {
			if !r.dirAccessible(ctx, d) {
				allAccessible = false
				break
			}
		}
		if allAccessible {
			r.logger.Info("runtime container already running, all bind-mount dirs accessible",
				"container", r.ContainerName())
			return r.waitForLibvirtd(ctx)
		}
		r.logger.Info("bind-mount dirs missing inside container, recreating",
			"container", r.ContainerName())
		r.stopCompose(ctx, composePath, composeDir)
	}

	r.logger.Info("starting docker-compose environment", "compose_file", composePath)

	absDataDir, err := filepath.Abs(filepath.Join(composeDir, "data"))
	if err != nil {
		absDataDir = filepath.Join(composeDir, "data")
	}
	env := map[string]string{
		"BOXMAN_DATA_DIR":    absDataDir,
		"BOXMAN_PROJECT_DIR": absProjectDir,
		"HOST_UID":           fmt.Sprint(os.Getuid()),
		"HOST_GID":           fmt.Sprint(os.Getgid()),
	}
	for k, v := range env {
		r.logger.Debug("compose environment", "key", k, "value", v)
	}

	up := r.composeBaseCmd(composePath, composeDir) + " up -d --build"
	if res := r.runner.RunShell(ctx, up, env, true); !res.OK() {
		return fmt.Errorf("%w: %s", ErrComposeUpFailed, strings.TrimSpace(res.Stderr))
	}

	if err := r.waitForContainerRunning(ctx); err != nil {
		return err
	}
	if err := r.waitForLibvirtd(ctx); err != nil {
		return err
	}

	r.logger.Info("runtime container is ready", "container", r.ContainerName())
	return nil
}

// logComposeFile logs the descriptor contents so the user can see what
// will be started.
func (r *ComposeRuntime) logComposeFile(composePath string) {
	contents, err := os.ReadFile(composePath)
	if err != nil {
		r.logger.Warn("could not read compose file for logging", "error", err)
		return
	}
	r.logger.Debug("compose descriptor", "path", composePath, "contents", string(contents))
}

// containerRunning reports whether the managed container is in the
// running state.
func (r *ComposeRuntime) containerRunning(ctx context.Context) bool {
	probe := fmt.Sprintf("docker inspect -f '{{.State.Running}}' %s", r.ContainerName())
	res := r.runner.RunShell(ctx, probe, nil, false)
	return res.OK() && strings.TrimSpace(res.Stdout) == "true"
}

// Running reports whether the managed container is currently up. It
// never starts anything.
func (r *ComposeRuntime) Running(ctx context.Context) bool {
	return r.containerRunning(ctx)
}

// dirAccessible reports whether absDir exists inside the container.
// The path gets the same quote escaping as WrapCommand; an unescaped
// quote would make the probe fail forever and recreate the container on
// every call.
func (r *ComposeRuntime) dirAccessible(ctx context.Context, absDir string) bool {
	probe := fmt.Sprintf("docker exec --user root %s test -d '%s'",
		r.ContainerName(), escapeSingleQuotes(absDir))
	return r.runner.RunShell(ctx, probe, nil, false).OK()
}

// waitForContainerRunning blocks until the container reaches the
// running state or the ready timeout elapses.
func (r *ComposeRuntime) waitForContainerRunning(ctx context.Context) error {
	deadline := time.Now().Add(r.opts.ReadyTimeout)
	for time.Now().Before(deadline) {
		if r.containerRunning(ctx) {
			r.logger.Info("container is running", "container", r.ContainerName())
			return nil
		}
		r.logger.Info("waiting for container to start", "container", r.ContainerName())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(containerPollInterval):
		}
	}
	return &ReadyTimeoutError{
		Container: r.ContainerName(),
		Timeout:   r.opts.ReadyTimeout,
		Phase:     "container",
	}
}

// waitForLibvirtd blocks until virsh responds inside the container or
// the ready timeout elapses.
func (r *ComposeRuntime) waitForLibvirtd(ctx context.Context) error {
	deadline := time.Now().Add(r.opts.ReadyTimeout)
	for time.Now().Before(deadline) {
		if r.runner.RunShell(ctx, r.WrapCommand("virsh version"), nil, false).OK() {
			r.logger.Info("libvirtd is responsive inside the container")
			return nil
		}
		r.logger.Info("waiting for libvirtd to become responsive")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(servicePollInterval):
		}
	}
	return &ReadyTimeoutError{
		Container: r.ContainerName(),
		Timeout:   r.opts.ReadyTimeout,
		Phase:     "libvirtd",
	}
}

// stopCompose stops the compose environment so it can be recreated.
// Failures are logged and otherwise ignored.
func (r *ComposeRuntime) stopCompose(ctx context.Context, composePath, composeDir string) {
	down := r.composeBaseCmd(composePath, composeDir) + " down"
	if res := r.runner.RunShell(ctx, down, nil, true); !res.OK() {
		r.logger.Warn("failed to stop compose environment",
			"stderr", strings.TrimSpace(res.Stderr))
	}
}

// DestroyPlan describes what Destroy will do without doing it.
type DestroyPlan struct {
	ComposePath      string
	ContainerName    string
	ContainerRunning bool
	StateDir         string
	Actions          []string
	Commands         []string
	PathsToDelete    []string
}

// containerCleanupCmd removes root-owned state inside the container.
// Without it, removing the data directory on the host silently fails on
// permission-denied entries (sockets, libvirt state).
func (r *ComposeRuntime) containerCleanupCmd() string {
	return fmt.Sprintf("docker exec --user root %s bash -c "+
		"'rm -rf /var/run/libvirt/* /var/lib/libvirt/images/* /etc/boxman/ssh/*'",
		r.ContainerName())
}

// PlanDestroy builds a plan describing the teardown Destroy performs.
func (r *ComposeRuntime) PlanDestroy(ctx context.Context) *DestroyPlan {
	plan := &DestroyPlan{ContainerName: r.ContainerName()}

	composePath, err := r.ComposeFilePath()
	if err != nil {
		plan.Actions = append(plan.Actions, "no compose file found, nothing to tear down")
		return plan
	}
	plan.ComposePath = composePath
	composeDir := filepath.Dir(composePath)
	plan.ContainerRunning = r.containerRunning(ctx)

	if plan.ContainerRunning {
		plan.Actions = append(plan.Actions,
			fmt.Sprintf("clean up root-owned data inside container %q", r.ContainerName()))
		plan.Commands = append(plan.Commands, r.containerCleanupCmd())
	}

	plan.Actions = append(plan.Actions,
		"tear down docker-compose environment (stop container, remove volumes and networks)")
	plan.Commands = append(plan.Commands,
		r.composeBaseCmd(composePath, composeDir)+" down --volumes --remove-orphans")

	stateDir := filepath.Join(r.projectDir(), stateDirName)
	plan.StateDir = stateDir
	if fi, err := os.Stat(stateDir); err == nil && fi.IsDir() {
		plan.Actions = append(plan.Actions, fmt.Sprintf("remove directory tree %s", stateDir))
		plan.PathsToDelete = append(plan.PathsToDelete, stateDir)
	}
	return plan
}

// Destroy tears down the compose environment, removing its volumes and
// networks, and returns the project state directory for the caller to
// remove. An empty string means no compose file was found and nothing
// was torn down.
func (r *ComposeRuntime) Destroy(ctx context.Context) (string, error) {
	composePath, err := r.ComposeFilePath()
	if err != nil {
		r.logger.Warn("no compose file found, nothing to tear down")
		return "", nil
	}
	composeDir := filepath.Dir(composePath)

	r.logger.Info("destroying docker-compose environment", "compose_file", composePath)

	if r.containerRunning(ctx) {
		r.logger.Info("cleaning up container data dirs", "container", r.ContainerName())
		if res := r.runner.RunShell(ctx, r.containerCleanupCmd(), nil, true); !res.OK() {
			r.logger.Warn("in-container cleanup failed",
				"stderr", strings.TrimSpace(res.Stderr))
		}
	}

	down := r.composeBaseCmd(composePath, composeDir) + " down --volumes --remove-orphans"
	if res := r.runner.RunShell(ctx, down, nil, true); !res.OK() {
		r.logger.Warn("docker compose down failed",
			"stderr", strings.TrimSpace(res.Stderr))
	}

	return filepath.Join(r.projectDir(), stateDirName), nil
}

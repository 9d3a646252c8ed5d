// SPDX-License-Identifier: MPL-2.0

// Command boxman provisions VM clusters from a declarative boxman.yml.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"boxman-cli/internal/command"
	"boxman-cli/internal/config"
	"boxman-cli/internal/issue"
	"boxman-cli/internal/runtime"
	"boxman-cli/internal/session"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string
	// projectDir overrides where the project descriptor search starts
	projectDir string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "boxman",
		Short: "Declarative VM cluster provisioning",
		Long: TitleStyle.Render("boxman") + SubtitleStyle.Render(" - declarative VM cluster provisioning") + `

boxman provisions clusters of virtual machines described in a
'boxman.yml' file. It drives libvirt/QEMU or VirtualBox through their
command-line tools, either directly on the host or inside a managed
docker-compose container that ships the whole toolchain.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Write a boxman.yml describing clusters, networks and VMs
  2. Run: boxman up
  3. Connect with the generated ssh_config in your workdir

` + SubtitleStyle.Render("Examples:") + `
  boxman up                 Provision every cluster in the project
  boxman destroy            Tear down all provisioned resources
  boxman snapshot take pre-upgrade   Snapshot every cluster VM
  boxman runtime status     Inspect the execution runtime
  boxman image pull oci://registry.example/lab/ubuntu:24.04`,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/boxman/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "directory to start the "+config.ProjectFileName+" search from (default is the working directory)")

	// Add subcommands
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(runtimeCmd)
	rootCmd.AddCommand(imageCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

func main() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		// Provider tool failures carry the tool's exit code; pass it on.
		var execErr *command.ExecError
		if errors.As(err, &execErr) && execErr.ExitCode > 0 {
			os.Exit(execErr.ExitCode)
		}
		os.Exit(1)
	}
}

// loadAppConfig loads the application-level configuration. A broken or
// unreadable config file is surfaced as a warning, never fatal; the
// defaults apply instead.
func loadAppConfig(ctx context.Context) *config.Config {
	cfg, err := config.NewLoader().Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		return config.DefaultConfig()
	}

	// Apply verbose from config if not set via flag
	if !verbose {
		verbose = cfg.UI.Verbose
	}
	return cfg
}

// loadProject locates and parses the project descriptor, starting from
// --project or the working directory and walking toward the root.
func loadProject() (*config.Project, error) {
	start := projectDir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		start = wd
	}
	path, err := config.FindProjectFile(start)
	if err != nil {
		renderIssue(issue.ConfigNotFoundId)
		return nil, err
	}
	project, err := config.LoadProject(path)
	if err != nil {
		renderIssue(issue.ConfigParseErrorId)
		return nil, err
	}
	return project, nil
}

// openSession loads both configuration layers and builds a provisioning
// session. The session's runtime is constructed but not started.
func openSession(ctx context.Context) (*session.Session, *config.Project, error) {
	project, err := loadProject()
	if err != nil {
		return nil, nil, err
	}
	app := loadAppConfig(ctx)
	s, err := session.New(project, app, session.WithLogger(newLogger()))
	if err != nil {
		var unknownRT *runtime.UnknownRuntimeError
		if errors.As(err, &unknownRT) {
			renderIssue(issue.UnknownRuntimeId)
		}
		return nil, nil, err
	}
	return s, project, nil
}

// ensureReady starts the session's runtime, printing the matching help
// card when it cannot come up.
func ensureReady(ctx context.Context, s *session.Session) error {
	err := s.EnsureReady(ctx)
	switch {
	case err == nil:
	case errors.Is(err, runtime.ErrReadyTimeout):
		renderIssue(issue.RuntimeNotReadyId)
	case errors.Is(err, runtime.ErrComposeFileNotFound):
		renderIssue(issue.ComposeFileNotFoundId)
	}
	return err
}

// renderIssue prints the styled help card for a known failure mode.
func renderIssue(id issue.Id) {
	if rendered, err := issue.Get(id).Render("dark"); err == nil {
		fmt.Fprint(os.Stderr, rendered)
	}
}

// newLogger builds the stderr logger handed to the session and every
// provider constructor below it.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

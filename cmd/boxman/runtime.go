// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"boxman-cli/internal/runtime"
)

var (
	runtimeDestroyDryRun bool

	runtimeCmd = &cobra.Command{
		Use:   "runtime",
		Short: "Inspect and manage the execution runtime",
		Long: `Inspect and manage the execution runtime.

With the local runtime, provider tools run directly on the host and
there is nothing to manage. With the docker-compose runtime, boxman
keeps a sidecar container that ships the virtualization toolchain;
'status' shows its state and 'destroy' tears the environment down,
including its volumes and networks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	runtimeCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the runtime environment state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, _, err := openSession(ctx)
			if err != nil {
				return err
			}

			rt := s.Runtime()
			fmt.Println("runtime: " + CmdStyle.Render(rt.Name()))

			cr, ok := rt.(*runtime.ComposeRuntime)
			if !ok {
				fmt.Println(SubtitleStyle.Render("provider commands run directly on the host"))
				return nil
			}

			state := WarningStyle.Render("stopped")
			if cr.Running(ctx) {
				state = SuccessStyle.Render("running")
			}
			fmt.Println("container: " + CmdStyle.Render(cr.ContainerName()) + " (" + state + ")")

			if path, err := cr.ComposeFilePath(); err == nil {
				fmt.Println("compose file: " + path)
			} else {
				fmt.Println(SubtitleStyle.Render("compose file: not generated yet"))
			}
			return nil
		},
	})

	destroyRuntimeCmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down the managed runtime environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, project, err := openSession(ctx)
			if err != nil {
				return err
			}

			cr, ok := s.Runtime().(*runtime.ComposeRuntime)
			if !ok {
				fmt.Println(SubtitleStyle.Render("local runtime, nothing to tear down"))
				return nil
			}

			if runtimeDestroyDryRun {
				printDestroyPlan(cr.PlanDestroy(ctx))
				return nil
			}

			stateDir, err := cr.Destroy(ctx)
			if err != nil {
				return err
			}
			if stateDir != "" {
				if err := os.RemoveAll(stateDir); err != nil {
					return fmt.Errorf("failed to remove state directory %s: %w", stateDir, err)
				}
			}

			fmt.Println(SuccessStyle.Render("✓") + " runtime environment for " +
				CmdStyle.Render(project.Name) + " destroyed")
			return nil
		},
	}
	destroyRuntimeCmd.Flags().BoolVar(&runtimeDestroyDryRun, "dry-run", false, "show the teardown plan without executing it")

	runtimeCmd.AddCommand(destroyRuntimeCmd)
}

// printDestroyPlan renders what 'runtime destroy' would do.
func printDestroyPlan(plan *runtime.DestroyPlan) {
	fmt.Println(TitleStyle.Render("Teardown plan"))
	for _, action := range plan.Actions {
		fmt.Println("  - " + action)
	}
	for _, c := range plan.Commands {
		fmt.Println("    " + CmdStyle.Render(c))
	}
	for _, p := range plan.PathsToDelete {
		fmt.Println("  - remove " + p)
	}
}

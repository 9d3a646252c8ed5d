// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down every provisioned cluster",
	Long: `Tear down every provisioned cluster.

Networks are destroyed first, then each VM is stopped, undefined and its
disk files removed. Resources that are already gone are skipped, so
'destroy' is safe to re-run. The execution runtime itself is left alone;
use 'boxman runtime destroy' to remove a managed container environment.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, project, err := openSession(ctx)
		if err != nil {
			return err
		}
		if err := ensureReady(ctx, s); err != nil {
			return err
		}
		if err := s.Deprovision(ctx); err != nil {
			return err
		}

		fmt.Println(SuccessStyle.Render("✓") + " project " + CmdStyle.Render(project.Name) + " is destroyed")
		return nil
	},
}

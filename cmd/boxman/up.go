// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"boxman-cli/internal/session"
)

var (
	upWait   time.Duration
	upNoWait bool

	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Provision every cluster in the project",
		Long: `Provision every cluster in the project.

Existing resources with the same names are removed first, so 'up' always
converges on the descriptor: networks are defined, VMs cloned from the
cluster base image, interfaces and extra disks attached, cloud-init
seeds inserted and the VMs started. Once every VM holds a DHCP lease an
ssh_config is written into each cluster workdir.`,
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

			wait := upWait
			if upNoWait {
				wait = 0
			}
			if err := s.Provision(ctx, session.ProvisionOptions{WaitForAddresses: wait}); err != nil {
				return err
			}

			fmt.Println(SuccessStyle.Render("✓") + " project " + CmdStyle.Render(project.Name) + " is up")
			return nil
		},
	}
)

func init() {
	upCmd.Flags().DurationVar(&upWait, "wait", 10*time.Minute, "how long to wait for DHCP leases before writing SSH configs")
	upCmd.Flags().BoolVar(&upNoWait, "no-wait", false, "start the VMs without waiting for addresses or writing SSH configs")
}

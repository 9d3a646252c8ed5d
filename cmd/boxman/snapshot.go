// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"boxman-cli/internal/session"
)

var (
	snapshotDescription string

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Manage snapshots of every cluster VM",
		Long: `Manage snapshots of every cluster VM.

Snapshot operations apply project-wide: 'take' snapshots every VM in
every cluster under the same name, and 'restore'/'delete' act on that
name across the whole project.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	takeCmd := &cobra.Command{
		Use:   "take <name>",
		Short: "Snapshot every cluster VM under the given name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadySession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				if err := s.SnapshotTake(ctx, args[0], snapshotDescription); err != nil {
					return err
				}
				fmt.Println(SuccessStyle.Render("✓") + " snapshot " + CmdStyle.Render(args[0]) + " taken")
				return nil
			})
		},
	}
	takeCmd.Flags().StringVarP(&snapshotDescription, "description", "d", "", "free-form snapshot description")

	snapshotCmd.AddCommand(takeCmd)

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots per VM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withReadySession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				snaps, err := s.SnapshotList(ctx)
				if err != nil {
					return err
				}
				printSnapshots(snaps)
				return nil
			})
		},
	})

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "restore <name>",
		Short: "Revert every cluster VM to the named snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadySession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				if err := s.SnapshotRestore(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println(SuccessStyle.Render("✓") + " snapshot " + CmdStyle.Render(args[0]) + " restored")
				return nil
			})
		},
	})

	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete the named snapshot from every cluster VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadySession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
				if err := s.SnapshotDelete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println(SuccessStyle.Render("✓") + " snapshot " + CmdStyle.Render(args[0]) + " deleted")
				return nil
			})
		},
	})
}

// withReadySession opens a session, brings its runtime up and runs fn
// against it.
func withReadySession(ctx context.Context, fn func(context.Context, *session.Session) error) error {
	s, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	if err := ensureReady(ctx, s); err != nil {
		return err
	}
	return fn(ctx, s)
}

// printSnapshots renders the per-VM snapshot listing.
func printSnapshots(snaps map[string][]session.Snapshot) {
	vms := make([]string, 0, len(snaps))
	for vm := range snaps {
		vms = append(vms, vm)
	}
	sort.Strings(vms)

	for _, vm := range vms {
		fmt.Println(TitleStyle.Render(vm))
		if len(snaps[vm]) == 0 {
			fmt.Println(SubtitleStyle.Render("  (no snapshots)"))
			continue
		}
		for _, sn := range snaps[vm] {
			line := "  " + CmdStyle.Render(sn.Name)
			if sn.Description != "" {
				line += "  " + SubtitleStyle.Render(sn.Description)
			}
			fmt.Println(line)
		}
	}
}

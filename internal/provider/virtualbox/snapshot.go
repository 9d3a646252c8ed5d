// SPDX-License-Identifier: MPL-2.0

package virtualbox

import (
	"context"
	"fmt"
	"time"

	"boxman-cli/internal/command"
)

// TakeSnapshot captures a snapshot of a VM. An empty name gets a UTC
// timestamp. live captures a running VM without pausing it.
func (m *Manager) TakeSnapshot(ctx context.Context, vmName, snapName, description string, live bool) error {
	if snapName == "" {
		snapName = time.Now().UTC().Format("2006-01-02T15:04:05")
	}

	flags := make([]command.Flag, 0, 2)
	if description != "" {
		flags = append(flags, command.F("description", description))
	}
	if live {
		flags = append(flags, command.F("live", true))
	}

	m.logger.Info("taking snapshot", "vm", vmName, "snapshot", snapName)
	if _, err := m.vbox.Execute(ctx, "snapshot", []string{vmName, "take", snapName},
		command.ExecOpts{Hide: true}, flags...); err != nil {
		return fmt.Errorf("take snapshot %s of %s: %w", snapName, vmName, err)
	}
	return nil
}

// ListSnapshots returns the raw snapshot listing for a VM.
func (m *Manager) ListSnapshots(ctx context.Context, vmName string) (string, error) {
	res, err := m.vbox.Execute(ctx, "snapshot", []string{vmName, "list"}, command.ExecOpts{Hide: true})
	if err != nil {
		return "", fmt.Errorf("list snapshots of %s: %w", vmName, err)
	}
	return res.Stdout, nil
}

// DeleteSnapshot removes the named snapshot.
func (m *Manager) DeleteSnapshot(ctx context.Context, vmName, snapName string) error {
	m.logger.Info("deleting snapshot", "vm", vmName, "snapshot", snapName)
	if _, err := m.vbox.Execute(ctx, "snapshot", []string{vmName, "delete", snapName},
		command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("delete snapshot %s of %s: %w", snapName, vmName, err)
	}
	return nil
}

// RestoreSnapshot reverts a VM to a snapshot. The VM's state is saved
// first and the machine is started again afterwards.
func (m *Manager) RestoreSnapshot(ctx context.Context, vmName, snapName string) error {
	if m.IsRunning(ctx, vmName) {
		if err := m.SaveState(ctx, vmName); err != nil {
			return err
		}
	}

	m.logger.Info("restoring snapshot", "vm", vmName, "snapshot", snapName)
	if _, err := m.vbox.Execute(ctx, "snapshot", []string{vmName, "restore", snapName},
		command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("restore snapshot %s of %s: %w", snapName, vmName, err)
	}

	return m.Start(ctx, vmName)
}

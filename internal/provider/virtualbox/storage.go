// SPDX-License-Identifier: MPL-2.0

package virtualbox

import (
	"context"
	"fmt"

	"boxman-cli/internal/command"
)

// CreateMedium creates a new disk image. sizeMB is the virtual size in
// megabytes.
func (m *Manager) CreateMedium(ctx context.Context, filename string, sizeMB int) error {
	if sizeMB <= 0 {
		return fmt.Errorf("medium size must be positive, got %d", sizeMB)
	}
	m.logger.Info("creating medium", "filename", filename, "size_mb", sizeMB)
	if _, err := m.vbox.Execute(ctx, "createmedium", []string{"disk"},
		command.ExecOpts{Hide: true},
		command.F("filename", filename),
		command.F("format", "VDI"),
		command.F("size", sizeMB),
		command.F("variant", "Standard")); err != nil {
		return fmt.Errorf("create medium %s: %w", filename, err)
	}
	return nil
}

// StorageAttach attaches a medium to a VM's storage controller port.
func (m *Manager) StorageAttach(ctx context.Context, vmName, controller string, port int, medium string) error {
	m.logger.Info("attaching medium", "vm", vmName, "controller", controller, "port", port, "medium", medium)
	if _, err := m.vbox.Execute(ctx, "storageattach", []string{vmName},
		command.ExecOpts{Hide: true},
		command.F("storagectl", controller),
		command.F("port", port),
		command.F("medium", medium),
		command.F("type", "hdd")); err != nil {
		return fmt.Errorf("attach medium %s to VM %s: %w", medium, vmName, err)
	}
	return nil
}

// CloseMedium detaches a medium from the registry and optionally
// deletes the backing file.
func (m *Manager) CloseMedium(ctx context.Context, medium string, remove bool) error {
	var flags []command.Flag
	if remove {
		flags = append(flags, command.F("delete", true))
	}
	if _, err := m.vbox.Execute(ctx, "closemedium", []string{"disk", medium},
		command.ExecOpts{Hide: true}, flags...); err != nil {
		return fmt.Errorf("close medium %s: %w", medium, err)
	}
	return nil
}

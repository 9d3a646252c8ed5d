// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"libvirt.org/go/libvirtxml"

	"boxman-cli/internal/command"
)

// Snapshot is one point-in-time capture of a VM.
type Snapshot struct {
	Name        string
	Description string
}

// SnapshotManager takes, lists, restores and deletes VM snapshots
// through virsh snapshot-* subcommands.
type SnapshotManager struct {
	virsh  *command.Executor
	logger *log.Logger
}

// NewSnapshotManager creates a snapshot manager over the given virsh
// executor.
func NewSnapshotManager(virsh *command.Executor, logger *log.Logger) *SnapshotManager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &SnapshotManager{virsh: virsh, logger: logger}
}

// Create takes a snapshot of the VM. The snapshot definition is written
// to a temporary XML file handed to snapshot-create and removed
// afterwards.
func (m *SnapshotManager) Create(ctx context.Context, vmName, snapshotName, description string) error {
	snap := &libvirtxml.DomainSnapshot{
		Name:        snapshotName,
		Description: description,
	}
	xml, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snapshotName, err)
	}

	xmlPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("%s_snapshot_%s.xml", vmName, snapshotName))
	if err := os.WriteFile(xmlPath, []byte(xml), 0o644); err != nil {
		return fmt.Errorf("write snapshot XML: %w", err)
	}
	defer os.Remove(xmlPath)

	m.logger.Info("creating snapshot", "vm", vmName, "snapshot", snapshotName)
	if _, err := m.virsh.Execute(ctx, "snapshot-create", []string{vmName},
		command.ExecOpts{Hide: true}, command.F("xmlfile", xmlPath)); err != nil {
		return fmt.Errorf("create snapshot %s of %s: %w", snapshotName, vmName, err)
	}
	return nil
}

// List returns the snapshots of a VM with their descriptions. A
// snapshot whose detail dump fails is skipped.
func (m *SnapshotManager) List(ctx context.Context, vmName string) ([]Snapshot, error) {
	res, err := m.virsh.Execute(ctx, "snapshot-list", []string{vmName},
		command.ExecOpts{Hide: true}, command.F("name", true))
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", vmName, err)
	}

	var snapshots []Snapshot
	for _, name := range splitNonEmptyLines(res.Stdout) {
		dump, err := m.virsh.Execute(ctx, "snapshot-dumpxml", []string{vmName, name},
			command.ExecOpts{Hide: true, Warn: true})
		if err != nil || !dump.OK() {
			m.logger.Warn("could not dump snapshot XML", "vm", vmName, "snapshot", name)
			continue
		}

		var parsed libvirtxml.DomainSnapshot
		if err := parsed.Unmarshal(dump.Stdout); err != nil {
			m.logger.Warn("could not parse snapshot XML", "vm", vmName, "snapshot", name, "err", err)
			snapshots = append(snapshots, Snapshot{Name: name})
			continue
		}
		snapshots = append(snapshots, Snapshot{Name: name, Description: parsed.Description})
	}
	return snapshots, nil
}

// Restore reverts the VM to the named snapshot.
func (m *SnapshotManager) Restore(ctx context.Context, vmName, snapshotName string) error {
	m.logger.Info("reverting to snapshot", "vm", vmName, "snapshot", snapshotName)
	if _, err := m.virsh.Execute(ctx, "snapshot-revert", []string{vmName, snapshotName},
		command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("revert %s to snapshot %s: %w", vmName, snapshotName, err)
	}
	return nil
}

// Delete removes the named snapshot.
func (m *SnapshotManager) Delete(ctx context.Context, vmName, snapshotName string) error {
	m.logger.Info("deleting snapshot", "vm", vmName, "snapshot", snapshotName)
	if _, err := m.virsh.Execute(ctx, "snapshot-delete", []string{vmName, snapshotName},
		command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("delete snapshot %s of %s: %w", snapshotName, vmName, err)
	}
	return nil
}

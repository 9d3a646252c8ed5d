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
	"boxman-cli/internal/config"
)

const diskFormat = "qcow2"

// DiskManager creates additional disk images with qemu-img and attaches
// them to a VM.
type DiskManager struct {
	vmName string
	virsh  *command.Executor
	shell  *command.Executor
	logger *log.Logger
}

// NewDiskManager creates a disk manager for the named VM. The shell
// executor runs qemu-img; the virsh executor performs the attach.
func NewDiskManager(vmName string, virsh, shell *command.Executor, logger *log.Logger) *DiskManager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &DiskManager{vmName: vmName, virsh: virsh, shell: shell, logger: logger}
}

// CreateDisk creates a disk image at path with the given qemu-img size
// spec (e.g. "10G"). The parent directory is created if missing.
func (m *DiskManager) CreateDisk(ctx context.Context, path, size string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create disk directory: %w", err)
	}

	cmdline := fmt.Sprintf("qemu-img create -f %s %s %s", diskFormat, path, size)
	m.logger.Info("creating disk image", "vm", m.vmName, "path", path, "size", size)
	if _, err := m.shell.ExecuteShell(ctx, cmdline, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("create disk image %s: %w", path, err)
	}
	return nil
}

// AttachDisk attaches an existing disk image to the VM at the given
// target device (vdb, vdc, ...). The attachment XML is written to a
// temporary file consumed by virsh attach-device and persists across
// VM restarts.
func (m *DiskManager) AttachDisk(ctx context.Context, path, targetDev string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve disk path %s: %w", path, err)
	}

	disk := &libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: diskFormat,
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{File: abs},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: targetDev,
			Bus: "virtio",
		},
	}
	xml, err := disk.Marshal()
	if err != nil {
		return fmt.Errorf("marshal disk XML: %w", err)
	}

	tmp, err := os.CreateTemp("", "boxman-disk-*.xml")
	if err != nil {
		return fmt.Errorf("create disk XML file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(xml); err != nil {
		tmp.Close()
		return fmt.Errorf("write disk XML: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close disk XML: %w", err)
	}

	m.logger.Info("attaching disk", "vm", m.vmName, "path", abs, "target", targetDev)
	if _, err := m.virsh.Execute(ctx, "attach-device", []string{m.vmName, tmp.Name()},
		command.ExecOpts{Hide: true}, command.F("persistent", true)); err != nil {
		return fmt.Errorf("attach disk %s to %s: %w", abs, m.vmName, err)
	}
	return nil
}

// AttachCDROM attaches an ISO image as a read-only cdrom device. Used
// for NoCloud seed images written by WriteSeedISO.
func (m *DiskManager) AttachCDROM(ctx context.Context, path, targetDev string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve iso path %s: %w", path, err)
	}

	disk := &libvirtxml.DomainDisk{
		Device: "cdrom",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "raw",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{File: abs},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: targetDev,
			Bus: "sata",
		},
		ReadOnly: &libvirtxml.DomainDiskReadOnly{},
	}
	xml, err := disk.Marshal()
	if err != nil {
		return fmt.Errorf("marshal cdrom XML: %w", err)
	}

	tmp, err := os.CreateTemp("", "boxman-cdrom-*.xml")
	if err != nil {
		return fmt.Errorf("create cdrom XML file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(xml); err != nil {
		tmp.Close()
		return fmt.Errorf("write cdrom XML: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cdrom XML: %w", err)
	}

	m.logger.Info("attaching seed iso", "vm", m.vmName, "path", abs, "target", targetDev)
	if _, err := m.virsh.Execute(ctx, "attach-device", []string{m.vmName, tmp.Name()},
		command.ExecOpts{Hide: true}, command.F("persistent", true)); err != nil {
		return fmt.Errorf("attach cdrom %s to %s: %w", abs, m.vmName, err)
	}
	return nil
}

// ConfigureDisks creates and attaches every disk in the VM descriptor.
// Disk images land in the cluster workdir named <prefix>_<disk>.qcow2
// unless the descriptor sets an explicit path. Target devices are
// assigned in order starting at vdb (vda is the cloned root disk).
func (m *DiskManager) ConfigureDisks(ctx context.Context, disks []config.Disk, workdir, prefix string) error {
	for i, disk := range disks {
		name := stringOr(disk.Name, fmt.Sprintf("disk%d", i))
		path := disk.Path
		if path == "" {
			path = filepath.Join(workdir, fmt.Sprintf("%s_%s.%s", prefix, name, diskFormat))
		}
		size := stringOr(disk.Size, "1G")
		targetDev := fmt.Sprintf("vd%c", 'b'+i)

		if err := m.CreateDisk(ctx, path, size); err != nil {
			return err
		}
		if err := m.AttachDisk(ctx, path, targetDev); err != nil {
			return err
		}
	}
	return nil
}

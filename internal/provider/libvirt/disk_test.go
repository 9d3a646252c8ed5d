// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"libvirt.org/go/libvirtxml"

	"boxman-cli/internal/config"
)

func TestCreateDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images", "data.qcow2")

	var commands []string
	exe := scriptedExecutor(&commands, ok)
	m := NewDiskManager("lab_vm1", exe, exe, nil)

	if err := m.CreateDisk(context.Background(), path, "10G"); err != nil {
		t.Fatalf("CreateDisk() error = %v", err)
	}

	if len(commands) != 1 {
		t.Fatalf("commands = %v", commands)
	}
	want := "qemu-img create -f qcow2 " + path + " 10G"
	if commands[0] != want {
		t.Errorf("command = %q, want %q", commands[0], want)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("disk directory not created: %v", err)
	}
}

func TestAttachDisk(t *testing.T) {
	var commands []string
	var attachedXML string
	virsh := scriptedExecutor(&commands, func(cmdline string) reply {
		if strings.HasPrefix(cmdline, "attach-device") {
			// The XML file exists while the command runs; capture it.
			fields := strings.Fields(cmdline)
			data, err := os.ReadFile(fields[2])
			if err == nil {
				attachedXML = string(data)
			}
		}
		return reply{}
	})
	m := NewDiskManager("lab_vm1", virsh, virsh, nil)

	if err := m.AttachDisk(context.Background(), "/var/lib/images/data.qcow2", "vdb"); err != nil {
		t.Fatalf("AttachDisk() error = %v", err)
	}

	if len(commands) != 1 {
		t.Fatalf("commands = %v", commands)
	}
	if !strings.HasPrefix(commands[0], "attach-device lab_vm1 ") ||
		!strings.HasSuffix(commands[0], " --persistent") {
		t.Errorf("command = %q", commands[0])
	}

	var parsed libvirtxml.DomainDisk
	if err := parsed.Unmarshal(attachedXML); err != nil {
		t.Fatalf("attached XML does not parse: %v", err)
	}
	if parsed.Source == nil || parsed.Source.File == nil ||
		parsed.Source.File.File != "/var/lib/images/data.qcow2" {
		t.Errorf("Source = %+v", parsed.Source)
	}
	if parsed.Target == nil || parsed.Target.Dev != "vdb" {
		t.Errorf("Target = %+v", parsed.Target)
	}
}

func TestAttachCDROM(t *testing.T) {
	var commands []string
	var attachedXML string
	virsh := scriptedExecutor(&commands, func(cmdline string) reply {
		if strings.HasPrefix(cmdline, "attach-device") {
			fields := strings.Fields(cmdline)
			data, err := os.ReadFile(fields[2])
			if err == nil {
				attachedXML = string(data)
			}
		}
		return reply{}
	})
	m := NewDiskManager("lab_vm1", virsh, virsh, nil)

	if err := m.AttachCDROM(context.Background(), "/srv/seeds/lab_vm1-seed.iso", "sda"); err != nil {
		t.Fatalf("AttachCDROM() error = %v", err)
	}

	var parsed libvirtxml.DomainDisk
	if err := parsed.Unmarshal(attachedXML); err != nil {
		t.Fatalf("attached XML does not parse: %v", err)
	}
	if parsed.Device != "cdrom" {
		t.Errorf("Device = %q", parsed.Device)
	}
	if parsed.ReadOnly == nil {
		t.Error("cdrom not marked read-only")
	}
	if parsed.Source == nil || parsed.Source.File == nil ||
		parsed.Source.File.File != "/srv/seeds/lab_vm1-seed.iso" {
		t.Errorf("Source = %+v", parsed.Source)
	}
	if parsed.Target == nil || parsed.Target.Dev != "sda" || parsed.Target.Bus != "sata" {
		t.Errorf("Target = %+v", parsed.Target)
	}
}

func TestConfigureDisks(t *testing.T) {
	dir := t.TempDir()

	var commands []string
	exe := scriptedExecutor(&commands, ok)
	m := NewDiskManager("lab_vm1", exe, exe, nil)

	disks := []config.Disk{
		{Name: "data", Size: "10G"},
		{Name: "scratch", Size: "5G"},
	}
	if err := m.ConfigureDisks(context.Background(), disks, dir, "lab_vm1"); err != nil {
		t.Fatalf("ConfigureDisks() error = %v", err)
	}

	var creates, attaches []string
	for _, cmd := range commands {
		switch {
		case strings.HasPrefix(cmd, "qemu-img create"):
			creates = append(creates, cmd)
		case strings.HasPrefix(cmd, "attach-device"):
			attaches = append(attaches, cmd)
		}
	}
	if len(creates) != 2 || len(attaches) != 2 {
		t.Fatalf("creates = %v, attaches = %v", creates, attaches)
	}
	if !strings.Contains(creates[0], filepath.Join(dir, "lab_vm1_data.qcow2")) {
		t.Errorf("first create = %q", creates[0])
	}
	if !strings.Contains(creates[1], filepath.Join(dir, "lab_vm1_scratch.qcow2")) {
		t.Errorf("second create = %q", creates[1])
	}
}

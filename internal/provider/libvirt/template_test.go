// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTemplateExists(t *testing.T) {
	var commands []string
	virsh := scriptedExecutor(&commands, func(cmdline string) reply {
		return reply{stdout: "base-template\nother-vm\n"}
	})
	tm := NewTemplateManager(virsh, nil, nil, nil)

	if !tm.Exists(context.Background(), "base-template") {
		t.Error("Exists() = false for defined template")
	}
	if tm.Exists(context.Background(), "missing") {
		t.Error("Exists() = true for undefined template")
	}
	if len(commands) != 2 || commands[0] != "list --all --name" {
		t.Errorf("commands = %v", commands)
	}
}

func TestEnsureTemplateSkipsExisting(t *testing.T) {
	var commands []string
	virsh := scriptedExecutor(&commands, func(cmdline string) reply {
		return reply{stdout: "lab-template\n"}
	})
	tm := NewTemplateManager(virsh, nil, nil, nil)

	err := tm.EnsureTemplate(context.Background(), TemplateSpec{Name: "lab-template"}, false)
	if err != nil {
		t.Fatalf("EnsureTemplate() error = %v", err)
	}
	if len(commands) != 1 {
		t.Errorf("expected only the existence probe, got %v", commands)
	}
}

func TestEnsureTemplateImports(t *testing.T) {
	workdir := t.TempDir()
	src := filepath.Join(workdir, "cloud.img")
	if err := os.WriteFile(src, []byte("disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	var virshCmds, installCmds, shellCmds []string
	virsh := scriptedExecutor(&virshCmds, func(cmdline string) reply {
		switch {
		case strings.HasPrefix(cmdline, "list"):
			return reply{}
		case strings.HasPrefix(cmdline, "domstate"):
			return reply{stdout: "shut off\n"}
		}
		return reply{}
	})
	install := scriptedExecutor(&installCmds, ok)
	// rsync unavailable: force the plain-copy fallback.
	shell := scriptedExecutor(&shellCmds, func(string) reply { return reply{exitCode: 1} })

	tm := NewTemplateManager(virsh, install, shell, nil,
		WithBootTimeout(time.Second), WithBootPollInterval(time.Millisecond))

	spec := TemplateSpec{
		Name:      "lab-template",
		ImagePath: src,
		Workdir:   workdir,
	}
	if err := tm.EnsureTemplate(context.Background(), spec, false); err != nil {
		t.Fatalf("EnsureTemplate() error = %v", err)
	}

	stageDir := filepath.Join(workdir, ".boxman", "templates", "lab-template")
	staged := filepath.Join(stageDir, "cloud.qcow2")
	if _, err := os.Stat(staged); err != nil {
		t.Errorf("staged image missing: %v", err)
	}
	seed := filepath.Join(stageDir, "lab-template-seed.iso")
	if info, err := os.Stat(seed); err != nil || info.Size() == 0 {
		t.Errorf("seed iso missing or empty: %v", err)
	}

	if len(shellCmds) != 1 || !strings.HasPrefix(shellCmds[0], "rsync --sparse ") {
		t.Errorf("shell commands = %v", shellCmds)
	}
	if len(installCmds) != 1 {
		t.Fatalf("install commands = %v", installCmds)
	}
	cmd := installCmds[0]
	for _, want := range []string{
		"--name=lab-template",
		"--memory=2048",
		"--vcpus=2",
		"--os-variant=generic",
		"--import",
		"--disk=path=" + staged + ",format=qcow2,bus=virtio",
		"--disk=path=" + seed + ",device=cdrom",
		"--noautoconsole",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("virt-install command missing %q: %s", want, cmd)
		}
	}
}

func TestEnsureTemplateForceRecreates(t *testing.T) {
	workdir := t.TempDir()
	src := filepath.Join(workdir, "cloud.qcow2")
	if err := os.WriteFile(src, []byte("disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	var virshCmds, installCmds, shellCmds []string
	virsh := scriptedExecutor(&virshCmds, func(cmdline string) reply {
		switch {
		case strings.HasPrefix(cmdline, "list"):
			return reply{stdout: "lab-template\n"}
		case strings.HasPrefix(cmdline, "domstate"):
			return reply{stdout: "shut off\n"}
		}
		return reply{}
	})
	install := scriptedExecutor(&installCmds, ok)
	shell := scriptedExecutor(&shellCmds, func(string) reply { return reply{exitCode: 1} })

	tm := NewTemplateManager(virsh, install, shell, nil,
		WithBootTimeout(time.Second), WithBootPollInterval(time.Millisecond))

	spec := TemplateSpec{Name: "lab-template", ImagePath: src, Workdir: workdir}
	if err := tm.EnsureTemplate(context.Background(), spec, true); err != nil {
		t.Fatalf("EnsureTemplate() error = %v", err)
	}

	var destroyed, undefined bool
	for _, c := range virshCmds {
		if c == "destroy lab-template" {
			destroyed = true
		}
		if c == "undefine lab-template --remove-all-storage" {
			undefined = true
		}
	}
	if !destroyed || !undefined {
		t.Errorf("force recreate did not remove the old template: %v", virshCmds)
	}
	if len(installCmds) != 1 {
		t.Errorf("install commands = %v", installCmds)
	}
}

// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/provider"
)

func TestNewVirshBuild(t *testing.T) {
	cfg := &provider.Config{URI: "qemu:///session"}
	e := NewVirsh(cfg, nil, log.New(io.Discard))

	got := e.Build("list", nil)
	want := "virsh -c qemu:///session list"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestNewVirshDefaultURI(t *testing.T) {
	e := NewVirsh(&provider.Config{}, nil, log.New(io.Discard))

	got := e.Build("net-list", nil)
	want := "virsh -c qemu:///system net-list"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestNewVirshToolPathOverride(t *testing.T) {
	cfg := &provider.Config{
		ToolPaths: map[string]string{"virsh": "/opt/libvirt/bin/virsh"},
	}
	e := NewVirsh(cfg, nil, log.New(io.Discard))

	got := e.Build("version", nil)
	want := "/opt/libvirt/bin/virsh -c qemu:///system version"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestNewVirtCloneBuild(t *testing.T) {
	e := NewVirtClone(&provider.Config{}, nil, log.New(io.Discard))

	got := e.Build("", nil)
	want := "virt-clone --connect=qemu:///system"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestNewVirtInstallSudo(t *testing.T) {
	e := NewVirtInstall(&provider.Config{UseSudo: true}, nil, log.New(io.Discard))

	got := e.Build("", nil)
	want := "sudo virt-install --connect=qemu:///system"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"os"
	"strings"
	"testing"

	"libvirt.org/go/libvirtxml"

	"boxman-cli/internal/config"
)

func TestAttachInterface(t *testing.T) {
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
	m := NewInterfaceManager("lab_vm1", virsh, nil)

	if err := m.Attach(context.Background(), "lab_net1", "52:54:00:aa:bb:cc"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	var parsed libvirtxml.DomainInterface
	if err := parsed.Unmarshal(attachedXML); err != nil {
		t.Fatalf("attached XML does not parse: %v", err)
	}
	if parsed.Source == nil || parsed.Source.Network == nil ||
		parsed.Source.Network.Network != "lab_net1" {
		t.Errorf("Source = %+v", parsed.Source)
	}
	if parsed.MAC == nil || parsed.MAC.Address != "52:54:00:aa:bb:cc" {
		t.Errorf("MAC = %+v", parsed.MAC)
	}
	if parsed.Model == nil || parsed.Model.Type != "virtio" {
		t.Errorf("Model = %+v", parsed.Model)
	}
}

func TestConfigureInterfacesScopesNetworkNames(t *testing.T) {
	var networks []string
	var commands []string
	virsh := scriptedExecutor(&commands, func(cmdline string) reply {
		if strings.HasPrefix(cmdline, "attach-device") {
			fields := strings.Fields(cmdline)
			data, err := os.ReadFile(fields[2])
			if err == nil {
				var parsed libvirtxml.DomainInterface
				if err := parsed.Unmarshal(string(data)); err == nil {
					networks = append(networks, parsed.Source.Network.Network)
				}
			}
		}
		return reply{}
	})
	m := NewInterfaceManager("lab_vm1", virsh, nil)

	ifaces := []config.Interface{
		{Network: "net1"},
		{Network: "net2"},
	}
	if err := m.ConfigureInterfaces(context.Background(), ifaces, "lab"); err != nil {
		t.Fatalf("ConfigureInterfaces() error = %v", err)
	}

	want := []string{"lab_net1", "lab_net2"}
	if len(networks) != len(want) {
		t.Fatalf("networks = %v, want %v", networks, want)
	}
	for i := range want {
		if networks[i] != want[i] {
			t.Errorf("networks[%d] = %q, want %q", i, networks[i], want[i])
		}
	}
}

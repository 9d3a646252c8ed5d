// SPDX-License-Identifier: MPL-2.0

package virtualbox

import (
	"context"
	"strings"
	"testing"
)

const natNetworkListOutput = `NAT Networks:

Name:        lab_net1
Network:     10.0.1.0/24
Gateway:     10.0.1.1
IPv6:        No
Enabled:     Yes

Name:        lab_net2
Network:     10.1.1.0/24
Gateway:     10.1.1.1
IPv6:        No
Enabled:     Yes

2 networks found
`

func TestListNATNetworks(t *testing.T) {
	var commands []string
	m := scriptedManager(&commands, func(string) reply {
		return reply{stdout: natNetworkListOutput}
	})

	networks, err := m.ListNATNetworks(context.Background())
	if err != nil {
		t.Fatalf("ListNATNetworks() error = %v", err)
	}
	if len(networks) != 2 || networks[0] != "lab_net1" || networks[1] != "lab_net2" {
		t.Errorf("networks = %v", networks)
	}
	if len(commands) != 1 || commands[0] != "vboxmanage natnetwork list" {
		t.Errorf("commands = %v", commands)
	}
}

func TestAddNATNetwork(t *testing.T) {
	var commands []string
	m := scriptedManager(&commands, func(cmdline string) reply {
		if strings.HasSuffix(cmdline, "natnetwork list") {
			return reply{stdout: "0 networks found\n"}
		}
		return reply{}
	})

	err := m.AddNATNetwork(context.Background(), "lab_net1", "10.0.1.0/24", true, true)
	if err != nil {
		t.Fatalf("AddNATNetwork() error = %v", err)
	}

	want := "vboxmanage natnetwork add --netname=lab_net1 --network=10.0.1.0/24 --enable --dhcp=on"
	if commands[len(commands)-1] != want {
		t.Errorf("add command = %q, want %q", commands[len(commands)-1], want)
	}
}

func TestAddNATNetworkRecreatesExisting(t *testing.T) {
	var commands []string
	m := scriptedManager(&commands, func(cmdline string) reply {
		if strings.HasSuffix(cmdline, "natnetwork list") {
			return reply{stdout: "Name:        lab_net1\n"}
		}
		return reply{}
	})

	err := m.AddNATNetwork(context.Background(), "lab_net1", "10.0.1.0/24", false, false)
	if err != nil {
		t.Fatalf("AddNATNetwork() error = %v", err)
	}

	var stopped, removed bool
	for _, c := range commands {
		if c == "vboxmanage natnetwork stop --netname=lab_net1" {
			stopped = true
		}
		if c == "vboxmanage natnetwork remove --netname=lab_net1" {
			removed = true
		}
	}
	if !stopped || !removed {
		t.Errorf("existing network not recreated: %v", commands)
	}
	last := commands[len(commands)-1]
	if last != "vboxmanage natnetwork add --netname=lab_net1 --network=10.0.1.0/24 --dhcp=off" {
		t.Errorf("add command = %q", last)
	}
}

func TestAddNATNetworkRequiresCIDR(t *testing.T) {
	var commands []string
	m := scriptedManager(&commands, ok)

	if err := m.AddNATNetwork(context.Background(), "lab_net1", "", false, false); err == nil {
		t.Fatal("AddNATNetwork() expected error for missing CIDR")
	}
	if len(commands) != 0 {
		t.Errorf("commands issued despite invalid input: %v", commands)
	}
}

func TestRemoveNATNetworkMissingIsNoop(t *testing.T) {
	var commands []string
	m := scriptedManager(&commands, func(cmdline string) reply {
		return reply{stdout: "0 networks found\n"}
	})

	if err := m.RemoveNATNetwork(context.Background(), "ghost"); err != nil {
		t.Fatalf("RemoveNATNetwork() error = %v", err)
	}
	for _, c := range commands {
		if strings.Contains(c, "natnetwork remove") {
			t.Errorf("remove issued for undefined network: %v", commands)
		}
	}
}

func TestAttachNIC(t *testing.T) {
	var commands []string
	m := scriptedManager(&commands, ok)

	if err := m.AttachNIC(context.Background(), "lab_vm1", 2, "lab_net1"); err != nil {
		t.Fatalf("AttachNIC() error = %v", err)
	}

	want := "vboxmanage modifyvm lab_vm1 --nic2=natnetwork --nat-network2=lab_net1"
	if len(commands) != 1 || commands[0] != want {
		t.Errorf("commands = %v, want [%q]", commands, want)
	}
}

// SPDX-License-Identifier: MPL-2.0

package virtualbox

import (
	"context"
	"fmt"
	"strings"

	"boxman-cli/internal/command"
)

// ListNATNetworks returns the names of all defined NAT networks,
// parsed from the "Name:" lines of natnetwork list output.
func (m *Manager) ListNATNetworks(ctx context.Context) ([]string, error) {
	res, err := m.vbox.Execute(ctx, "natnetwork", []string{"list"}, command.ExecOpts{Hide: true})
	if err != nil {
		return nil, fmt.Errorf("list NAT networks: %w", err)
	}
	return parseNATNetworkList(res.Stdout), nil
}

func parseNATNetworkList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if name, found := strings.CutPrefix(line, "Name:"); found {
			names = append(names, strings.TrimSpace(name))
		}
	}
	return names
}

// natNetworkExists is a probe: errors count as not defined.
func (m *Manager) natNetworkExists(ctx context.Context, name string) bool {
	networks, err := m.ListNATNetworks(ctx)
	if err != nil {
		return false
	}
	for _, n := range networks {
		if n == name {
			return true
		}
	}
	return false
}

// AddNATNetwork defines a NAT network with the given CIDR. An existing
// network with the same name is stopped and removed first.
func (m *Manager) AddNATNetwork(ctx context.Context, name, cidr string, enable, dhcp bool) error {
	if cidr == "" {
		return fmt.Errorf("NAT network %s: network CIDR is required", name)
	}
	if m.natNetworkExists(ctx, name) {
		if err := m.StopNATNetwork(ctx, name); err != nil {
			return err
		}
		if err := m.RemoveNATNetwork(ctx, name); err != nil {
			return err
		}
	}

	dhcpValue := "off"
	if dhcp {
		dhcpValue = "on"
	}
	flags := []command.Flag{
		command.F("netname", name),
		command.F("network", cidr),
		command.F("enable", enable),
		command.F("dhcp", dhcpValue),
	}
	m.logger.Info("adding NAT network", "name", name, "network", cidr)
	if _, err := m.vbox.Execute(ctx, "natnetwork", []string{"add"},
		command.ExecOpts{Hide: true}, flags...); err != nil {
		return fmt.Errorf("add NAT network %s: %w", name, err)
	}
	return nil
}

// StopNATNetwork stops a running NAT network. A network that is not
// defined is not an error.
func (m *Manager) StopNATNetwork(ctx context.Context, name string) error {
	if !m.natNetworkExists(ctx, name) {
		m.logger.Warn("NAT network is not defined", "name", name)
		return nil
	}
	if _, err := m.vbox.Execute(ctx, "natnetwork", []string{"stop"},
		command.ExecOpts{Hide: true}, command.F("netname", name)); err != nil {
		return fmt.Errorf("stop NAT network %s: %w", name, err)
	}
	return nil
}

// RemoveNATNetwork deletes a NAT network definition. A network that is
// not defined is not an error.
func (m *Manager) RemoveNATNetwork(ctx context.Context, name string) error {
	if !m.natNetworkExists(ctx, name) {
		m.logger.Warn("NAT network is not defined", "name", name)
		return nil
	}
	m.logger.Info("removing NAT network", "name", name)
	if _, err := m.vbox.Execute(ctx, "natnetwork", []string{"remove"},
		command.ExecOpts{Hide: true}, command.F("netname", name)); err != nil {
		return fmt.Errorf("remove NAT network %s: %w", name, err)
	}
	return nil
}

// AttachNIC attaches the numbered VM adapter to a NAT network. Adapter
// numbering starts at 1.
func (m *Manager) AttachNIC(ctx context.Context, vmName string, nic int, natNetwork string) error {
	m.logger.Info("attaching network adapter", "vm", vmName, "nic", nic, "network", natNetwork)
	if _, err := m.vbox.Execute(ctx, "modifyvm", []string{vmName},
		command.ExecOpts{Hide: true},
		command.F(fmt.Sprintf("nic%d", nic), "natnetwork"),
		command.F(fmt.Sprintf("nat_network%d", nic), natNetwork)); err != nil {
		return fmt.Errorf("attach nic%d of VM %s to %s: %w", nic, vmName, natNetwork, err)
	}
	return nil
}

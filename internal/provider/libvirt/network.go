// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"

	"boxman-cli/internal/command"
	"boxman-cli/internal/config"
)

// Network defaults applied when the project descriptor leaves fields
// unset. They mirror the libvirt "default" network addressing.
const (
	defaultForwardMode  = "nat"
	defaultBridgeSTP    = "on"
	defaultBridgeDelay  = "0"
	defaultIPAddress    = "192.168.122.1"
	defaultNetmask      = "255.255.255.0"
	defaultDHCPStart    = "192.168.122.2"
	defaultDHCPEnd      = "192.168.122.254"
	maxAllocatedBridges = 256
)

// Network defines and removes a single libvirt network from a project
// descriptor entry.
type Network struct {
	name   string
	spec   config.Network
	virsh  *command.Executor
	logger *log.Logger
}

// NewNetwork creates a network manager for the fully scoped network
// name (cluster_network).
func NewNetwork(name string, spec config.Network, virsh *command.Executor, logger *log.Logger) *Network {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Network{name: name, spec: spec, virsh: virsh, logger: logger}
}

// Name returns the fully scoped network name.
func (n *Network) Name() string { return n.name }

// GenerateXML renders the libvirt network definition. A fresh UUID is
// generated on every call. When the descriptor names no bridge device,
// one is allocated from the bridges currently claimed by networks on
// the active libvirt connection.
func (n *Network) GenerateXML(ctx context.Context) (string, error) {
	bridgeName := n.spec.Bridge.Name
	if bridgeName == "" {
		allocated, err := n.allocateBridgeName(ctx)
		if err != nil {
			return "", err
		}
		bridgeName = allocated
	}

	mode := n.spec.Mode
	if mode == "" {
		mode = defaultForwardMode
	}

	net := &libvirtxml.Network{
		Name: n.name,
		UUID: uuid.NewString(),
		Forward: &libvirtxml.NetworkForward{
			Mode: mode,
		},
		Bridge: &libvirtxml.NetworkBridge{
			Name:  bridgeName,
			STP:   stringOr(n.spec.Bridge.STP, defaultBridgeSTP),
			Delay: stringOr(n.spec.Bridge.Delay, defaultBridgeDelay),
		},
	}
	if n.spec.MAC != "" {
		net.MAC = &libvirtxml.NetworkMAC{Address: n.spec.MAC}
	}

	ip := libvirtxml.NetworkIP{
		Address: stringOr(n.spec.IP.Address, defaultIPAddress),
		Netmask: stringOr(n.spec.IP.Netmask, defaultNetmask),
		DHCP: &libvirtxml.NetworkDHCP{
			Ranges: []libvirtxml.NetworkDHCPRange{{
				Start: stringOr(n.spec.IP.DHCP.Range.Start, defaultDHCPStart),
				End:   stringOr(n.spec.IP.DHCP.Range.End, defaultDHCPEnd),
			}},
		},
	}
	net.IPs = []libvirtxml.NetworkIP{ip}

	xml, err := net.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal network %s: %w", n.name, err)
	}
	return xml, nil
}

// Define writes the network XML to xmlPath (a per-network file under
// /tmp when empty), registers it and, unless the descriptor disables
// the network, starts it and marks it for autostart.
func (n *Network) Define(ctx context.Context, xmlPath string) error {
	if xmlPath == "" {
		xmlPath = filepath.Join(os.TempDir(), n.name+"-network.xml")
	}

	xml, err := n.GenerateXML(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(xmlPath), 0o755); err != nil {
		return fmt.Errorf("create network XML directory: %w", err)
	}
	if err := os.WriteFile(xmlPath, []byte(xml), 0o644); err != nil {
		return fmt.Errorf("write network XML %s: %w", xmlPath, err)
	}

	n.logger.Info("defining network", "network", n.name, "xml", xmlPath)
	if _, err := n.virsh.Execute(ctx, "net-define", []string{xmlPath}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("define network %s: %w", n.name, err)
	}

	if n.spec.Enable != nil && !*n.spec.Enable {
		n.logger.Info("network disabled in descriptor, not starting", "network", n.name)
		return nil
	}

	if _, err := n.virsh.Execute(ctx, "net-start", []string{n.name}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("start network %s: %w", n.name, err)
	}
	if _, err := n.virsh.Execute(ctx, "net-autostart", []string{n.name}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("autostart network %s: %w", n.name, err)
	}
	return nil
}

// Destroy stops the network if it is active. A network that does not
// exist is not an error.
func (n *Network) Destroy(ctx context.Context) error {
	defined, err := n.listNetworks(ctx, true)
	if err != nil {
		return err
	}
	if !contains(defined, n.name) {
		n.logger.Info("network does not exist, nothing to destroy", "network", n.name)
		return nil
	}

	active, err := n.listNetworks(ctx, false)
	if err != nil {
		return err
	}
	if contains(active, n.name) {
		if _, err := n.virsh.Execute(ctx, "net-destroy", []string{n.name}, command.ExecOpts{Hide: true}); err != nil {
			return fmt.Errorf("destroy network %s: %w", n.name, err)
		}
		n.logger.Info("network destroyed", "network", n.name)
	}
	return nil
}

// Undefine removes the network definition. Autostart is disabled first
// so the undefine does not leave a dangling autostart link.
func (n *Network) Undefine(ctx context.Context) error {
	defined, err := n.listNetworks(ctx, true)
	if err != nil {
		return err
	}
	if !contains(defined, n.name) {
		n.logger.Info("network does not exist, nothing to undefine", "network", n.name)
		return nil
	}

	n.virsh.Execute(ctx, "net-autostart", []string{n.name}, command.ExecOpts{Hide: true, Warn: true},
		command.F("disable", true))

	if _, err := n.virsh.Execute(ctx, "net-undefine", []string{n.name}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("undefine network %s: %w", n.name, err)
	}
	n.logger.Info("network undefined", "network", n.name)
	return nil
}

// Remove fully removes a network: stop it if active, then undefine.
func (n *Network) Remove(ctx context.Context) error {
	if err := n.Destroy(ctx); err != nil {
		return err
	}
	return n.Undefine(ctx)
}

// listNetworks returns the network names known to the active libvirt
// connection. With all set, inactive networks are included.
func (n *Network) listNetworks(ctx context.Context, all bool) ([]string, error) {
	flags := []command.Flag{command.F("name", true)}
	if all {
		flags = append(flags, command.F("all", true))
	}
	res, err := n.virsh.Execute(ctx, "net-list", nil, command.ExecOpts{Hide: true}, flags...)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	return splitNonEmptyLines(res.Stdout), nil
}

// allocateBridgeName picks the first virbrN device not claimed by any
// network on the active libvirt connection. Discovery is deliberately
// scoped to net-list/net-info: enumerating host bridge devices would
// see bridges of unrelated projects when running inside a container
// that shares the host network namespace.
func (n *Network) allocateBridgeName(ctx context.Context) (string, error) {
	defined, err := n.listNetworks(ctx, true)
	if err != nil {
		return "", err
	}

	used := make(map[string]struct{}, len(defined))
	for _, name := range defined {
		res, err := n.virsh.Execute(ctx, "net-info", []string{name}, command.ExecOpts{Hide: true, Warn: true})
		if err != nil || !res.OK() {
			continue
		}
		if bridge := parseBridgeField(res.Stdout); bridge != "" {
			used[bridge] = struct{}{}
		}
	}

	for i := 0; i < maxAllocatedBridges; i++ {
		candidate := fmt.Sprintf("virbr%d", i)
		if _, taken := used[candidate]; !taken {
			n.logger.Debug("allocated bridge device", "network", n.name, "bridge", candidate)
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free virbr device for network %s", n.name)
}

// parseBridgeField extracts the bridge device from virsh net-info
// output ("Bridge: virbr0").
func parseBridgeField(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 7 && strings.EqualFold(line[:7], "bridge:") {
			return strings.TrimSpace(line[7:])
		}
	}
	return ""
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}

func stringOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

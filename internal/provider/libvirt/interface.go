// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"libvirt.org/go/libvirtxml"

	"boxman-cli/internal/command"
	"boxman-cli/internal/config"
)

// InterfaceManager attaches network interfaces to a VM after cloning.
type InterfaceManager struct {
	vmName string
	virsh  *command.Executor
	logger *log.Logger
}

// NewInterfaceManager creates an interface manager for the named VM.
func NewInterfaceManager(vmName string, virsh *command.Executor, logger *log.Logger) *InterfaceManager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &InterfaceManager{vmName: vmName, virsh: virsh, logger: logger}
}

// Attach connects the VM to the named libvirt network with a virtio
// interface. The attachment persists across VM restarts.
func (m *InterfaceManager) Attach(ctx context.Context, networkName, mac string) error {
	iface := &libvirtxml.DomainInterface{
		Source: &libvirtxml.DomainInterfaceSource{
			Network: &libvirtxml.DomainInterfaceSourceNetwork{
				Network: networkName,
			},
		},
		Model: &libvirtxml.DomainInterfaceModel{Type: "virtio"},
	}
	if mac != "" {
		iface.MAC = &libvirtxml.DomainInterfaceMAC{Address: mac}
	}
	xml, err := iface.Marshal()
	if err != nil {
		return fmt.Errorf("marshal interface XML: %w", err)
	}

	tmp, err := os.CreateTemp("", "boxman-iface-*.xml")
	if err != nil {
		return fmt.Errorf("create interface XML file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(xml); err != nil {
		tmp.Close()
		return fmt.Errorf("write interface XML: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close interface XML: %w", err)
	}

	m.logger.Info("attaching interface", "vm", m.vmName, "network", networkName)
	if _, err := m.virsh.Execute(ctx, "attach-device", []string{m.vmName, tmp.Name()},
		command.ExecOpts{Hide: true}, command.F("persistent", true)); err != nil {
		return fmt.Errorf("attach interface to %s on network %s: %w", m.vmName, networkName, err)
	}
	return nil
}

// ConfigureInterfaces attaches every interface in the VM descriptor.
// Network names in the descriptor are cluster-local; scope maps them to
// their provisioned libvirt network name.
func (m *InterfaceManager) ConfigureInterfaces(ctx context.Context, ifaces []config.Interface, clusterName string) error {
	for _, iface := range ifaces {
		networkName := config.FullNetworkName(clusterName, iface.Network)
		if err := m.Attach(ctx, networkName, iface.MAC); err != nil {
			return err
		}
	}
	return nil
}

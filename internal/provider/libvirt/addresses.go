// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
)

// AddressReader queries guest IP addresses from the hypervisor's DHCP
// lease table.
type AddressReader struct {
	virsh  *command.Executor
	logger *log.Logger
}

// NewAddressReader creates an address reader.
func NewAddressReader(virsh *command.Executor, logger *log.Logger) *AddressReader {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &AddressReader{virsh: virsh, logger: logger}
}

// IPAddresses returns the interface-to-address map of a running domain.
// This is a probe: an unreachable or not-yet-leased domain yields an
// empty map, never an error.
func (a *AddressReader) IPAddresses(ctx context.Context, vmName string) map[string]string {
	res, err := a.virsh.Execute(ctx, "domifaddr", []string{vmName},
		command.ExecOpts{Hide: true, Warn: true})
	if err != nil || !res.OK() {
		return map[string]string{}
	}
	return parseDomIfAddr(res.Stdout)
}

// parseDomIfAddr extracts interface name and bare IP from domifaddr
// table output, skipping the header and separator lines:
//
//	Name  MAC address        Protocol  Address
//	--------------------------------------------------
//	vnet0 52:54:00:aa:bb:cc  ipv4      192.168.122.101/24
func parseDomIfAddr(out string) map[string]string {
	addrs := map[string]string{}
	for _, line := range splitNonEmptyLines(out) {
		if strings.HasPrefix(line, "Name") || strings.HasPrefix(line, "-") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		iface := fields[0]
		addr, _, _ := strings.Cut(fields[3], "/")
		if iface == "" || addr == "" {
			continue
		}
		addrs[iface] = addr
	}
	return addrs
}

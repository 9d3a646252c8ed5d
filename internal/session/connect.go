// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"boxman-cli/internal/config"
)

// Address-wait backoff bounds, doubling per round.
const (
	addressPollStart = time.Second
	addressPollMax   = time.Minute
)

// Addresses returns the current guest addresses of every VM, keyed by
// full VM name. VMs without a lease yet map to an empty set.
func (s *Session) Addresses(ctx context.Context) (map[string]map[string]string, error) {
	if s.prov == nil {
		return nil, ErrNotReady
	}
	out := map[string]map[string]string{}
	err := s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		out[full] = s.prov.IPAddresses(ctx, full)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WaitForAddresses polls with exponential backoff until every VM has at
// least one guest address or maxWait elapses. The last observed address
// set is returned either way; a timeout is logged, not fatal.
func (s *Session) WaitForAddresses(ctx context.Context, maxWait time.Duration) map[string]map[string]string {
	deadline := time.Now().Add(maxWait)
	interval := addressPollStart

	var addrs map[string]map[string]string
	for {
		var err error
		addrs, err = s.Addresses(ctx)
		if err == nil && allLeased(addrs) {
			s.logger.Info("all VMs have addresses")
			return addrs
		}
		if !time.Now().Add(interval).Before(deadline) {
			s.logger.Warn("timed out waiting for guest addresses, some VMs may be unreachable")
			return addrs
		}

		s.logger.Info("waiting for guest addresses", "retry_in", interval)
		select {
		case <-ctx.Done():
			return addrs
		case <-time.After(interval):
		}
		if interval *= 2; interval > addressPollMax {
			interval = addressPollMax
		}
	}
}

func allLeased(addrs map[string]map[string]string) bool {
	if len(addrs) == 0 {
		return false
	}
	for _, a := range addrs {
		if len(a) == 0 {
			return false
		}
	}
	return true
}

// WriteSSHConfigs generates an OpenSSH client config per cluster in its
// workdir so VMs can be reached as `ssh -F <config> <host>`. VMs
// without an address are left out.
func (s *Session) WriteSSHConfigs(ctx context.Context, addrs map[string]map[string]string) error {
	for _, clusterName := range sortedKeys(s.project.Clusters) {
		cluster := s.project.Clusters[clusterName]
		workdir := s.clusterWorkdir(cluster)
		path := filepath.Join(workdir, stringOr(cluster.SSHConfig, "ssh_config"))

		content := s.renderSSHConfig(clusterName, cluster, workdir, addrs)
		if err := os.MkdirAll(workdir, 0o755); err != nil {
			return fmt.Errorf("create workdir for cluster %s: %w", clusterName, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write SSH config for cluster %s: %w", clusterName, err)
		}
		s.logger.Info("wrote SSH config", "cluster", clusterName, "path", path)
	}
	return nil
}

func (s *Session) renderSSHConfig(clusterName string, cluster config.Cluster,
	workdir string, addrs map[string]map[string]string) string {
	var b strings.Builder
	b.WriteString("Host *\n")
	b.WriteString("    StrictHostKeyChecking no\n")
	b.WriteString("    UserKnownHostsFile /dev/null\n\n")

	user := stringOr(cluster.AdminUser, "admin")
	for _, vmName := range sortedKeys(cluster.VMs) {
		full := config.FullVMName(clusterName, vmName)
		ip := firstAddress(addrs[full])
		if ip == "" {
			s.logger.Warn("no address for VM, skipping SSH config entry", "vm", full)
			continue
		}
		hostname := vmName
		if ci := cluster.VMs[vmName].CloudInit; ci != nil && ci.Hostname != "" {
			hostname = ci.Hostname
		}

		fmt.Fprintf(&b, "Host %s\n", hostname)
		fmt.Fprintf(&b, "    Hostname %s\n", ip)
		fmt.Fprintf(&b, "    User %s\n", user)
		if cluster.AdminKeyName != "" {
			fmt.Fprintf(&b, "    IdentityFile %s\n", filepath.Join(workdir, cluster.AdminKeyName))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// firstAddress picks a stable representative address from an interface
// map.
func firstAddress(addrs map[string]string) string {
	for _, iface := range sortedKeys(addrs) {
		if addrs[iface] != "" {
			return addrs[iface]
		}
	}
	return ""
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
	"boxman-cli/internal/config"
	"boxman-cli/internal/images"
	"boxman-cli/internal/provider"
	"boxman-cli/internal/provider/libvirt"
	"boxman-cli/internal/provider/virtualbox"
)

type (
	// Provider abstracts the per-hypervisor operations the provisioning
	// flows need. Names passed in are always the full cluster-scoped
	// forms (<cluster>_<vm>, <cluster>_<network>).
	Provider interface {
		DefineNetwork(ctx context.Context, fullName string, spec config.Network, workdir string) error
		RemoveNetwork(ctx context.Context, fullName string, spec config.Network) error

		CloneVM(ctx context.Context, req CloneRequest) error
		RemoveVM(ctx context.Context, fullName string) error
		// RemoveDisks deletes the additional disk images created for a
		// VM. Best effort: missing files are not an error.
		RemoveDisks(ctx context.Context, fullName, workdir string, vm config.VM) error
		ConfigureInterfaces(ctx context.Context, fullName, clusterName string, vm config.VM) error
		ConfigureDisks(ctx context.Context, fullName, workdir string, vm config.VM) error
		AttachSeed(ctx context.Context, fullName, hostname, workdir string, vm config.VM) error
		StartVM(ctx context.Context, fullName string) error

		SnapshotTake(ctx context.Context, fullName, snapName, description string) error
		SnapshotList(ctx context.Context, fullName string) ([]Snapshot, error)
		SnapshotRestore(ctx context.Context, fullName, snapName string) error
		SnapshotDelete(ctx context.Context, fullName, snapName string) error

		// IPAddresses is a probe: providers without guest address
		// discovery return an empty map.
		IPAddresses(ctx context.Context, fullName string) map[string]string
	}

	// Snapshot is a provider-neutral snapshot listing entry.
	Snapshot struct {
		Name        string
		Description string
	}

	// CloneRequest carries everything a provider needs to clone one VM
	// out of a cluster descriptor.
	CloneRequest struct {
		ClusterName string
		Cluster     config.Cluster
		VMName      string
		FullName    string
		VM          config.VM
		// Workdir is the resolved absolute cluster workdir.
		Workdir string
	}

	// ProviderFactory builds a Provider for the given name. Injectable
	// so tests can substitute a scripted provider.
	ProviderFactory func(name config.ProviderName, cfg *provider.Config,
		wrapper command.Wrapper, resolver *images.Resolver, logger *log.Logger) (Provider, error)
)

func defaultProviderFactory(name config.ProviderName, cfg *provider.Config,
	wrapper command.Wrapper, resolver *images.Resolver, logger *log.Logger) (Provider, error) {
	switch name {
	case config.ProviderLibvirt, "":
		return newLibvirtProvider(cfg, wrapper, resolver, logger), nil
	case config.ProviderVirtualBox:
		return newVBoxProvider(cfg, wrapper, resolver, logger), nil
	default:
		return nil, &config.InvalidProviderNameError{Value: name}
	}
}

// libvirtProvider drives the libvirt backend.
type libvirtProvider struct {
	virsh     *command.Executor
	shell     *command.Executor
	templates *libvirt.TemplateManager
	cloner    *libvirt.Cloner
	snaps     *libvirt.SnapshotManager
	addrs     *libvirt.AddressReader
	resolver  *images.Resolver
	logger    *log.Logger
}

func newLibvirtProvider(cfg *provider.Config, wrapper command.Wrapper,
	resolver *images.Resolver, logger *log.Logger) *libvirtProvider {
	virsh := libvirt.NewVirsh(cfg, wrapper, logger)
	virtClone := libvirt.NewVirtClone(cfg, wrapper, logger)
	virtInstall := libvirt.NewVirtInstall(cfg, wrapper, logger)
	shell := libvirt.NewShell(cfg, wrapper, logger)
	return &libvirtProvider{
		virsh:     virsh,
		shell:     shell,
		templates: libvirt.NewTemplateManager(virsh, virtInstall, shell, logger),
		cloner:    libvirt.NewCloner(virtClone, virsh, logger),
		snaps:     libvirt.NewSnapshotManager(virsh, logger),
		addrs:     libvirt.NewAddressReader(virsh, logger),
		resolver:  resolver,
		logger:    logger,
	}
}

func (p *libvirtProvider) DefineNetwork(ctx context.Context, fullName string, spec config.Network, workdir string) error {
	nw := libvirt.NewNetwork(fullName, spec, p.virsh, p.logger)
	return nw.Define(ctx, filepath.Join(workdir, fullName+"_net_define.xml"))
}

func (p *libvirtProvider) RemoveNetwork(ctx context.Context, fullName string, spec config.Network) error {
	return libvirt.NewNetwork(fullName, spec, p.virsh, p.logger).Remove(ctx)
}

// CloneVM resolves the cluster base image to a clone source and clones
// it. OCI-pulled images are first imported once per cluster as a
// template domain.
func (p *libvirtProvider) CloneVM(ctx context.Context, req CloneRequest) error {
	resolved, err := p.resolver.Resolve(ctx, req.Cluster.BaseImage)
	if err != nil {
		return fmt.Errorf("resolve base image for %s: %w", req.FullName, err)
	}

	srcVM := resolved.SrcVMName
	if resolved.Kind == images.KindLocalQCOW2 {
		srcVM = req.ClusterName + "-template"
		spec := libvirt.TemplateSpec{
			Name:      srcVM,
			ImagePath: resolved.QCOW2Path,
			Workdir:   req.Workdir,
		}
		if err := p.templates.EnsureTemplate(ctx, spec, false); err != nil {
			return fmt.Errorf("prepare template for cluster %s: %w", req.ClusterName, err)
		}
	}

	return p.cloner.Clone(ctx, srcVM, req.FullName, firstMAC(req.VM))
}

func (p *libvirtProvider) RemoveVM(ctx context.Context, fullName string) error {
	return libvirt.NewDestroyer(fullName, p.virsh, p.logger).Remove(ctx, true)
}

func (p *libvirtProvider) RemoveDisks(ctx context.Context, fullName, workdir string, vm config.VM) error {
	removeDiskFiles(p.logger, fullName, workdir, vm, "qcow2")
	return nil
}

func (p *libvirtProvider) ConfigureInterfaces(ctx context.Context, fullName, clusterName string, vm config.VM) error {
	m := libvirt.NewInterfaceManager(fullName, p.virsh, p.logger)
	return m.ConfigureInterfaces(ctx, vm.Interfaces, clusterName)
}

func (p *libvirtProvider) ConfigureDisks(ctx context.Context, fullName, workdir string, vm config.VM) error {
	m := libvirt.NewDiskManager(fullName, p.virsh, p.shell, p.logger)
	return m.ConfigureDisks(ctx, vm.Disks, workdir, fullName)
}

// AttachSeed writes the VM's NoCloud seed ISO into the cluster workdir
// and attaches it as a cdrom. VMs without cloud-init config are
// skipped.
func (p *libvirtProvider) AttachSeed(ctx context.Context, fullName, hostname, workdir string, vm config.VM) error {
	if vm.CloudInit == nil {
		return nil
	}
	path := filepath.Join(workdir, ".boxman", "seeds", fullName+"-seed.iso")
	if err := libvirt.WriteSeedISO(path, hostname, vm.CloudInit); err != nil {
		return fmt.Errorf("write seed for %s: %w", fullName, err)
	}
	m := libvirt.NewDiskManager(fullName, p.virsh, p.shell, p.logger)
	return m.AttachCDROM(ctx, path, "sda")
}

func (p *libvirtProvider) StartVM(ctx context.Context, fullName string) error {
	return p.cloner.Start(ctx, fullName)
}

func (p *libvirtProvider) SnapshotTake(ctx context.Context, fullName, snapName, description string) error {
	return p.snaps.Create(ctx, fullName, snapName, description)
}

func (p *libvirtProvider) SnapshotList(ctx context.Context, fullName string) ([]Snapshot, error) {
	snaps, err := p.snaps.List(ctx, fullName)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, Snapshot{Name: s.Name, Description: s.Description})
	}
	return out, nil
}

func (p *libvirtProvider) SnapshotRestore(ctx context.Context, fullName, snapName string) error {
	return p.snaps.Restore(ctx, fullName, snapName)
}

func (p *libvirtProvider) SnapshotDelete(ctx context.Context, fullName, snapName string) error {
	return p.snaps.Delete(ctx, fullName, snapName)
}

func (p *libvirtProvider) IPAddresses(ctx context.Context, fullName string) map[string]string {
	return p.addrs.IPAddresses(ctx, fullName)
}

// vboxProvider drives the VirtualBox backend.
type vboxProvider struct {
	mgr      *virtualbox.Manager
	resolver *images.Resolver
	logger   *log.Logger
}

func newVBoxProvider(cfg *provider.Config, wrapper command.Wrapper,
	resolver *images.Resolver, logger *log.Logger) *vboxProvider {
	vbox := virtualbox.NewVBoxManage(cfg, wrapper, logger)
	return &vboxProvider{
		mgr:      virtualbox.NewManager(vbox, logger),
		resolver: resolver,
		logger:   logger,
	}
}

func (p *vboxProvider) DefineNetwork(ctx context.Context, fullName string, spec config.Network, workdir string) error {
	cidr, err := networkCIDR(spec)
	if err != nil {
		return fmt.Errorf("network %s: %w", fullName, err)
	}
	enable := spec.Enable == nil || *spec.Enable
	return p.mgr.AddNATNetwork(ctx, fullName, cidr, enable, true)
}

func (p *vboxProvider) RemoveNetwork(ctx context.Context, fullName string, spec config.Network) error {
	if err := p.mgr.StopNATNetwork(ctx, fullName); err != nil {
		return err
	}
	return p.mgr.RemoveNATNetwork(ctx, fullName)
}

func (p *vboxProvider) CloneVM(ctx context.Context, req CloneRequest) error {
	resolved, err := p.resolver.Resolve(ctx, req.Cluster.BaseImage)
	if err != nil {
		return fmt.Errorf("resolve base image for %s: %w", req.FullName, err)
	}
	if resolved.Kind != images.KindHypervisorVM {
		return fmt.Errorf("clone %s: base image %q resolves to a disk image, "+
			"which only the libvirt provider can import", req.FullName, req.Cluster.BaseImage)
	}
	return p.mgr.CloneVM(ctx, resolved.SrcVMName, req.FullName, req.Workdir)
}

func (p *vboxProvider) RemoveVM(ctx context.Context, fullName string) error {
	return p.mgr.Remove(ctx, fullName)
}

// RemoveDisks closes and deletes the VDI media created for the VM's
// additional disks. Media VirtualBox no longer knows about are removed
// from disk directly.
func (p *vboxProvider) RemoveDisks(ctx context.Context, fullName, workdir string, vm config.VM) error {
	for i, disk := range vm.Disks {
		name := disk.Name
		if name == "" {
			name = fmt.Sprintf("disk%d", i)
		}
		medium := disk.Path
		if medium == "" {
			medium = filepath.Join(workdir, fmt.Sprintf("%s_%s.vdi", fullName, name))
		}
		if err := p.mgr.CloseMedium(ctx, medium, true); err != nil {
			p.logger.Debug("close medium failed", "medium", medium, "err", err)
		}
	}
	removeDiskFiles(p.logger, fullName, workdir, vm, "vdi")
	return nil
}

func (p *vboxProvider) ConfigureInterfaces(ctx context.Context, fullName, clusterName string, vm config.VM) error {
	for i, iface := range vm.Interfaces {
		if iface.Network == "" {
			continue
		}
		netName := config.FullNetworkName(clusterName, iface.Network)
		if err := p.mgr.AttachNIC(ctx, fullName, i+1, netName); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureDisks creates VDI media in the workdir and attaches them to
// the SATA controller, ports counted from 1 (port 0 holds the cloned
// root disk).
func (p *vboxProvider) ConfigureDisks(ctx context.Context, fullName, workdir string, vm config.VM) error {
	for i, disk := range vm.Disks {
		name := disk.Name
		if name == "" {
			name = fmt.Sprintf("disk%d", i)
		}
		medium := disk.Path
		if medium == "" {
			medium = filepath.Join(workdir, fmt.Sprintf("%s_%s.vdi", fullName, name))
		}
		sizeMB, err := sizeSpecMB(disk.Size)
		if err != nil {
			return fmt.Errorf("disk %s of %s: %w", name, fullName, err)
		}
		if err := p.mgr.CreateMedium(ctx, medium, sizeMB); err != nil {
			return err
		}
		if err := p.mgr.StorageAttach(ctx, fullName, "SATA", i+1, medium); err != nil {
			return err
		}
	}
	return nil
}

func (p *vboxProvider) AttachSeed(ctx context.Context, fullName, hostname, workdir string, vm config.VM) error {
	if vm.CloudInit != nil {
		p.logger.Warn("cloud-init seeds are not supported on VirtualBox, skipping", "vm", fullName)
	}
	return nil
}

func (p *vboxProvider) StartVM(ctx context.Context, fullName string) error {
	return p.mgr.Start(ctx, fullName)
}

func (p *vboxProvider) SnapshotTake(ctx context.Context, fullName, snapName, description string) error {
	return p.mgr.TakeSnapshot(ctx, fullName, snapName, description, true)
}

func (p *vboxProvider) SnapshotList(ctx context.Context, fullName string) ([]Snapshot, error) {
	out, err := p.mgr.ListSnapshots(ctx, fullName)
	if err != nil {
		return nil, err
	}
	return parseVBoxSnapshots(out), nil
}

func (p *vboxProvider) SnapshotRestore(ctx context.Context, fullName, snapName string) error {
	return p.mgr.RestoreSnapshot(ctx, fullName, snapName)
}

func (p *vboxProvider) SnapshotDelete(ctx context.Context, fullName, snapName string) error {
	return p.mgr.DeleteSnapshot(ctx, fullName, snapName)
}

func (p *vboxProvider) IPAddresses(ctx context.Context, fullName string) map[string]string {
	// VBoxManage exposes no lease table; guests are reached through
	// forwarded ports instead.
	return map[string]string{}
}

// parseVBoxSnapshots extracts snapshot names from `snapshot list`
// output lines of the form `   Name: base (UUID: ...)`.
func parseVBoxSnapshots(out string) []Snapshot {
	var snaps []Snapshot
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		rest, found := strings.CutPrefix(line, "Name:")
		if !found {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimSpace(rest), " (UUID")
		if name != "" {
			snaps = append(snaps, Snapshot{Name: name})
		}
	}
	return snaps
}

// removeDiskFiles deletes the per-VM disk images from the workdir.
// Missing files are expected after a partial provision.
func removeDiskFiles(logger *log.Logger, fullName, workdir string, vm config.VM, ext string) {
	for i, disk := range vm.Disks {
		name := disk.Name
		if name == "" {
			name = fmt.Sprintf("disk%d", i)
		}
		path := disk.Path
		if path == "" {
			path = filepath.Join(workdir, fmt.Sprintf("%s_%s.%s", fullName, name, ext))
		}
		if err := os.Remove(path); err == nil {
			logger.Info("removed disk image", "vm", fullName, "path", path)
		}
	}
}

// firstMAC returns the MAC of the VM's first interface, if any. It is
// passed to virt-clone so the primary adapter keeps a stable address.
func firstMAC(vm config.VM) string {
	if len(vm.Interfaces) > 0 {
		return vm.Interfaces[0].MAC
	}
	return ""
}

// networkCIDR converts the descriptor's address/netmask pair into CIDR
// notation for natnetwork add.
func networkCIDR(spec config.Network) (string, error) {
	addr := spec.IP.Address
	if addr == "" {
		return "", fmt.Errorf("ip address is required")
	}
	mask := spec.IP.Netmask
	if mask == "" {
		mask = "255.255.255.0"
	}
	maskIP := net.ParseIP(mask)
	if maskIP == nil || maskIP.To4() == nil {
		return "", fmt.Errorf("invalid netmask %q", mask)
	}
	ones, _ := net.IPMask(maskIP.To4()).Size()
	return fmt.Sprintf("%s/%d", addr, ones), nil
}

// sizeSpecMB converts a qemu-img style size spec ("10G", "512M") to
// megabytes for createmedium.
func sizeSpecMB(spec string) (int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = "1G"
	}
	unit := spec[len(spec)-1]
	digits := spec
	multiplierMB := 1
	switch unit {
	case 'G', 'g':
		digits = spec[:len(spec)-1]
		multiplierMB = 1024
	case 'M', 'm':
		digits = spec[:len(spec)-1]
	case 'T', 't':
		digits = spec[:len(spec)-1]
		multiplierMB = 1024 * 1024
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid size spec %q", spec)
	}
	return n * multiplierMB, nil
}

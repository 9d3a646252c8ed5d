// SPDX-License-Identifier: MPL-2.0

// Package session ties the project descriptor, the execution runtime
// and the virtualization provider together into the provisioning,
// teardown and snapshot flows. A session is built from a loaded
// project, made ready once, and then drives every cluster the
// descriptor declares.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/config"
	"boxman-cli/internal/images"
	"boxman-cli/internal/provider"
	"boxman-cli/internal/runtime"
)

// ErrNotReady is returned by flow methods invoked before EnsureReady.
var ErrNotReady = errors.New("session is not ready, call EnsureReady first")

// defaultAddressWait bounds the post-start wait for DHCP leases during
// provisioning.
const defaultAddressWait = 10 * time.Minute

// Session drives provisioning flows over one project.
type Session struct {
	project *config.Project
	app     *config.Config
	rt      runtime.Runtime
	logger  *log.Logger
	factory ProviderFactory

	cacheDir string
	provCfg  *provider.Config
	prov     Provider
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithRuntime substitutes the runtime built from the project
// descriptor. Used by tests.
func WithRuntime(rt runtime.Runtime) Option {
	return func(s *Session) { s.rt = rt }
}

// WithProviderFactory substitutes provider construction. Used by tests.
func WithProviderFactory(factory ProviderFactory) Option {
	return func(s *Session) { s.factory = factory }
}

// WithImageCacheDir overrides where OCI base images are cached.
func WithImageCacheDir(dir string) Option {
	return func(s *Session) { s.cacheDir = dir }
}

// New builds a session for a loaded project. The runtime is constructed
// from the project and application config unless injected.
func New(project *config.Project, app *config.Config, opts ...Option) (*Session, error) {
	if app == nil {
		app = config.DefaultConfig()
	}
	s := &Session{
		project: project,
		app:     app,
		logger:  log.Default(),
		factory: defaultProviderFactory,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.rt == nil {
		name := project.RuntimeName(app.DefaultRuntime)
		rt, err := runtime.New(string(name), runtime.Options{
			ProjectName:  project.Name,
			ProjectDir:   project.Dir,
			Workdirs:     project.Workdirs(),
			ComposeFile:  project.Runtime.ComposeFile,
			ReadyTimeout: project.Runtime.ReadyTimeout(),
			Logger:       s.logger,
		})
		if err != nil {
			return nil, err
		}
		s.rt = rt
	}
	return s, nil
}

// Runtime returns the session's execution runtime.
func (s *Session) Runtime() runtime.Runtime { return s.rt }

// ProviderConfig returns the runtime-enriched provider config, or nil
// before EnsureReady.
func (s *Session) ProviderConfig() *provider.Config { return s.provCfg }

// EnsureReady brings the runtime up, injects it into the provider
// config and constructs the provider. Safe to call more than once.
func (s *Session) EnsureReady(ctx context.Context) error {
	if err := s.rt.EnsureReady(ctx); err != nil {
		return err
	}
	s.provCfg = s.rt.InjectProviderConfig(s.baseProviderConfig())

	resolver := images.NewResolver(s.imageCacheDir(),
		images.NewOras(s.provCfg, s.rt, s.logger), s.logger)

	prov, err := s.factory(s.providerName(), s.provCfg, s.rt, resolver, s.logger)
	if err != nil {
		return err
	}
	s.prov = prov
	return nil
}

// baseProviderConfig merges application defaults with the project's
// provider settings; project values win.
func (s *Session) baseProviderConfig() *provider.Config {
	app := s.app.Provider
	proj := s.project.Provider

	tools := map[string]string{}
	for name, path := range app.ToolPaths {
		tools[name] = path
	}
	for name, path := range proj.ToolPaths {
		tools[name] = path
	}

	uri := proj.URI
	if uri == "" {
		uri = app.URI
	}
	return &provider.Config{
		UseSudo:   proj.UseSudo || app.UseSudo,
		Verbose:   s.app.UI.Verbose,
		URI:       uri,
		ToolPaths: tools,
	}
}

func (s *Session) providerName() config.ProviderName {
	if s.project.Provider.Name != "" {
		return s.project.Provider.Name
	}
	if s.app.Provider.Name != "" {
		return s.app.Provider.Name
	}
	return config.ProviderLibvirt
}

func (s *Session) imageCacheDir() string {
	if s.cacheDir != "" {
		return s.cacheDir
	}
	if s.app.ImageCacheDir != "" {
		return s.app.ImageCacheDir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "boxman", "images")
}

// clusterWorkdir resolves a cluster's workdir against the project
// directory.
func (s *Session) clusterWorkdir(cluster config.Cluster) string {
	wd := cluster.Workdir
	if wd == "" {
		wd = "."
	}
	if !filepath.IsAbs(wd) {
		wd = filepath.Join(s.project.Dir, wd)
	}
	return filepath.Clean(wd)
}

// sortedKeys returns map keys in a stable order so flows touch
// clusters, networks and VMs deterministically.
func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// forEachVM runs fn for every VM of every cluster in a stable order.
func (s *Session) forEachVM(fn func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error) error {
	for _, clusterName := range sortedKeys(s.project.Clusters) {
		cluster := s.project.Clusters[clusterName]
		for _, vmName := range sortedKeys(cluster.VMs) {
			if err := fn(clusterName, cluster, vmName, cluster.VMs[vmName]); err != nil {
				return err
			}
		}
	}
	return nil
}

// DefineNetworks defines and starts every cluster network.
func (s *Session) DefineNetworks(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	for _, clusterName := range sortedKeys(s.project.Clusters) {
		cluster := s.project.Clusters[clusterName]
		workdir := s.clusterWorkdir(cluster)
		if err := os.MkdirAll(workdir, 0o755); err != nil {
			return fmt.Errorf("create workdir for cluster %s: %w", clusterName, err)
		}
		for _, netName := range sortedKeys(cluster.Networks) {
			full := config.FullNetworkName(clusterName, netName)
			if err := s.prov.DefineNetwork(ctx, full, cluster.Networks[netName], workdir); err != nil {
				return fmt.Errorf("define network %s: %w", full, err)
			}
		}
	}
	return nil
}

// DestroyNetworks removes every cluster network. Networks that do not
// exist are skipped by the provider probes.
func (s *Session) DestroyNetworks(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	for _, clusterName := range sortedKeys(s.project.Clusters) {
		cluster := s.project.Clusters[clusterName]
		for _, netName := range sortedKeys(cluster.Networks) {
			full := config.FullNetworkName(clusterName, netName)
			if err := s.prov.RemoveNetwork(ctx, full, cluster.Networks[netName]); err != nil {
				return fmt.Errorf("remove network %s: %w", full, err)
			}
		}
	}
	return nil
}

// CloneVMs removes any stale clone of each VM and clones it fresh from
// the cluster base image.
func (s *Session) CloneVMs(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.RemoveVM(ctx, full); err != nil {
			return fmt.Errorf("remove stale VM %s: %w", full, err)
		}
		req := CloneRequest{
			ClusterName: clusterName,
			Cluster:     cluster,
			VMName:      vmName,
			FullName:    full,
			VM:          vm,
			Workdir:     s.clusterWorkdir(cluster),
		}
		if err := s.prov.CloneVM(ctx, req); err != nil {
			return fmt.Errorf("clone VM %s: %w", full, err)
		}
		return nil
	})
}

// ConfigureInterfaces attaches each VM's network adapters.
func (s *Session) ConfigureInterfaces(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		if len(vm.Interfaces) == 0 {
			s.logger.Debug("no network adapters defined, skipping", "vm", vmName)
			return nil
		}
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.ConfigureInterfaces(ctx, full, clusterName, vm); err != nil {
			return fmt.Errorf("configure interfaces of %s: %w", full, err)
		}
		return nil
	})
}

// ConfigureDisks creates and attaches each VM's additional disks.
func (s *Session) ConfigureDisks(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		if len(vm.Disks) == 0 {
			s.logger.Debug("no disks defined, skipping", "vm", vmName)
			return nil
		}
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.ConfigureDisks(ctx, full, s.clusterWorkdir(cluster), vm); err != nil {
			return fmt.Errorf("configure disks of %s: %w", full, err)
		}
		return nil
	})
}

// AttachSeeds builds and attaches NoCloud seed images for VMs that
// declare cloud-init config.
func (s *Session) AttachSeeds(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.AttachSeed(ctx, full, vmName, s.clusterWorkdir(cluster), vm); err != nil {
			return fmt.Errorf("attach seed to %s: %w", full, err)
		}
		return nil
	})
}

// StartVMs powers on every VM.
func (s *Session) StartVMs(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.StartVM(ctx, full); err != nil {
			return fmt.Errorf("start VM %s: %w", full, err)
		}
		return nil
	})
}

// ProvisionOptions tunes the full provisioning flow.
type ProvisionOptions struct {
	// WaitForAddresses bounds the post-start wait for guest DHCP
	// leases. Zero skips the wait (and the SSH config generation that
	// depends on it); negative selects the default.
	WaitForAddresses time.Duration
}

// Provision tears down any previous deployment and brings the whole
// project up: networks, clones, adapters, disks, seeds, power-on.
func (s *Session) Provision(ctx context.Context, opts ProvisionOptions) error {
	if s.prov == nil {
		return ErrNotReady
	}

	s.logger.Info("deprovisioning previous deployment", "project", s.project.Name)
	if err := s.Deprovision(ctx); err != nil {
		return err
	}

	steps := []func(context.Context) error{
		s.DefineNetworks,
		s.CloneVMs,
		s.ConfigureInterfaces,
		s.ConfigureDisks,
		s.AttachSeeds,
		s.StartVMs,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}

	wait := opts.WaitForAddresses
	if wait < 0 {
		wait = defaultAddressWait
	}
	if wait > 0 {
		addrs := s.WaitForAddresses(ctx, wait)
		if err := s.WriteSSHConfigs(ctx, addrs); err != nil {
			s.logger.Warn("could not write SSH configs", "err", err)
		}
	}
	s.logger.Info("provisioning complete", "project", s.project.Name)
	return nil
}

// Deprovision removes every VM, its disks and every network of the
// project. Resources that no longer exist are tolerated.
func (s *Session) Deprovision(ctx context.Context) error {
	if s.prov == nil {
		return ErrNotReady
	}
	if err := s.DestroyNetworks(ctx); err != nil {
		return err
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.RemoveVM(ctx, full); err != nil {
			return fmt.Errorf("remove VM %s: %w", full, err)
		}
		return s.prov.RemoveDisks(ctx, full, s.clusterWorkdir(cluster), vm)
	})
}

// SnapshotTake snapshots every VM in the project under the given name.
func (s *Session) SnapshotTake(ctx context.Context, name, description string) error {
	if s.prov == nil {
		return ErrNotReady
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.SnapshotTake(ctx, full, name, description); err != nil {
			return fmt.Errorf("snapshot %s: %w", full, err)
		}
		return nil
	})
}

// SnapshotList returns the snapshots of every VM, keyed by the full VM
// name.
func (s *Session) SnapshotList(ctx context.Context) (map[string][]Snapshot, error) {
	if s.prov == nil {
		return nil, ErrNotReady
	}
	out := map[string][]Snapshot{}
	err := s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		snaps, err := s.prov.SnapshotList(ctx, full)
		if err != nil {
			return fmt.Errorf("list snapshots of %s: %w", full, err)
		}
		out[full] = snaps
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SnapshotRestore reverts every VM to the named snapshot.
func (s *Session) SnapshotRestore(ctx context.Context, name string) error {
	if s.prov == nil {
		return ErrNotReady
	}
	if name == "" {
		return errors.New("snapshot name is required")
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.SnapshotRestore(ctx, full, name); err != nil {
			return fmt.Errorf("restore snapshot of %s: %w", full, err)
		}
		return nil
	})
}

// SnapshotDelete deletes the named snapshot from every VM.
func (s *Session) SnapshotDelete(ctx context.Context, name string) error {
	if s.prov == nil {
		return ErrNotReady
	}
	if name == "" {
		return errors.New("snapshot name is required")
	}
	return s.forEachVM(func(clusterName string, cluster config.Cluster, vmName string, vm config.VM) error {
		full := config.FullVMName(clusterName, vmName)
		if err := s.prov.SnapshotDelete(ctx, full, name); err != nil {
			return fmt.Errorf("delete snapshot of %s: %w", full, err)
		}
		return nil
	})
}

// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
	"boxman-cli/internal/config"
	"boxman-cli/internal/images"
	"boxman-cli/internal/provider"
	"boxman-cli/internal/runtime"
)

// fakeProvider records every operation it is asked to perform.
type fakeProvider struct {
	ops   []string
	addrs map[string]map[string]string
	snaps map[string][]Snapshot
}

func (f *fakeProvider) record(format string, args ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
}

func (f *fakeProvider) DefineNetwork(ctx context.Context, fullName string, spec config.Network, workdir string) error {
	f.record("define-network %s", fullName)
	return nil
}

func (f *fakeProvider) RemoveNetwork(ctx context.Context, fullName string, spec config.Network) error {
	f.record("remove-network %s", fullName)
	return nil
}

func (f *fakeProvider) CloneVM(ctx context.Context, req CloneRequest) error {
	f.record("clone %s from %s", req.FullName, req.Cluster.BaseImage)
	return nil
}

func (f *fakeProvider) RemoveVM(ctx context.Context, fullName string) error {
	f.record("remove-vm %s", fullName)
	return nil
}

func (f *fakeProvider) RemoveDisks(ctx context.Context, fullName, workdir string, vm config.VM) error {
	f.record("remove-disks %s", fullName)
	return nil
}

func (f *fakeProvider) ConfigureInterfaces(ctx context.Context, fullName, clusterName string, vm config.VM) error {
	f.record("interfaces %s", fullName)
	return nil
}

func (f *fakeProvider) ConfigureDisks(ctx context.Context, fullName, workdir string, vm config.VM) error {
	f.record("disks %s", fullName)
	return nil
}

func (f *fakeProvider) AttachSeed(ctx context.Context, fullName, hostname, workdir string, vm config.VM) error {
	f.record("seed %s hostname=%s", fullName, hostname)
	return nil
}

func (f *fakeProvider) StartVM(ctx context.Context, fullName string) error {
	f.record("start %s", fullName)
	return nil
}

func (f *fakeProvider) SnapshotTake(ctx context.Context, fullName, snapName, description string) error {
	f.record("snapshot-take %s %s", fullName, snapName)
	return nil
}

func (f *fakeProvider) SnapshotList(ctx context.Context, fullName string) ([]Snapshot, error) {
	return f.snaps[fullName], nil
}

func (f *fakeProvider) SnapshotRestore(ctx context.Context, fullName, snapName string) error {
	f.record("snapshot-restore %s %s", fullName, snapName)
	return nil
}

func (f *fakeProvider) SnapshotDelete(ctx context.Context, fullName, snapName string) error {
	f.record("snapshot-delete %s %s", fullName, snapName)
	return nil
}

func (f *fakeProvider) IPAddresses(ctx context.Context, fullName string) map[string]string {
	return f.addrs[fullName]
}

func testProject(t *testing.T) *config.Project {
	t.Helper()
	return &config.Project{
		Name: "mylab",
		Dir:  t.TempDir(),
		Clusters: map[string]config.Cluster{
			"c1": {
				Workdir:   "work",
				BaseImage: "base-image",
				Networks: map[string]config.Network{
					"net1": {Mode: "nat"},
				},
				VMs: map[string]config.VM{
					"node1": {
						Interfaces: []config.Interface{{Network: "net1"}},
						Disks:      []config.Disk{{Name: "data", Size: "1G"}},
						CloudInit:  &config.CloudInit{Hostname: "node1.lab"},
					},
					"node2": {},
				},
			},
		},
	}
}

func readySession(t *testing.T, prov Provider) *Session {
	t.Helper()
	s, err := New(testProject(t), nil,
		WithLogger(log.New(io.Discard)),
		WithRuntime(&runtime.LocalRuntime{}),
		WithProviderFactory(func(name config.ProviderName, cfg *provider.Config,
			wrapper command.Wrapper, resolver *images.Resolver, logger *log.Logger) (Provider, error) {
			return prov, nil
		}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	return s
}

func TestFlowsRequireReady(t *testing.T) {
	s, err := New(testProject(t), nil,
		WithLogger(log.New(io.Discard)), WithRuntime(&runtime.LocalRuntime{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.CloneVMs(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("CloneVMs() error = %v, want ErrNotReady", err)
	}
	if err := s.Provision(context.Background(), ProvisionOptions{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("Provision() error = %v, want ErrNotReady", err)
	}
}

func TestEnsureReadyInjectsRuntime(t *testing.T) {
	var gotCfg *provider.Config
	prov := &fakeProvider{}
	s, err := New(testProject(t), nil,
		WithLogger(log.New(io.Discard)),
		WithRuntime(&runtime.LocalRuntime{}),
		WithProviderFactory(func(name config.ProviderName, cfg *provider.Config,
			wrapper command.Wrapper, resolver *images.Resolver, logger *log.Logger) (Provider, error) {
			gotCfg = cfg
			if resolver == nil {
				t.Error("factory received nil resolver")
			}
			if name != config.ProviderLibvirt {
				t.Errorf("provider name = %q", name)
			}
			return prov, nil
		}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	if gotCfg == nil || gotCfg.Runtime != "local" {
		t.Errorf("provider config = %+v, want Runtime=local", gotCfg)
	}
}

func TestProvisionSequence(t *testing.T) {
	prov := &fakeProvider{}
	s := readySession(t, prov)

	err := s.Provision(context.Background(), ProvisionOptions{WaitForAddresses: 0})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	want := []string{
		// teardown of the previous deployment
		"remove-network c1_net1",
		"remove-vm c1_node1",
		"remove-disks c1_node1",
		"remove-vm c1_node2",
		"remove-disks c1_node2",
		// bring-up
		"define-network c1_net1",
		"remove-vm c1_node1",
		"clone c1_node1 from base-image",
		"remove-vm c1_node2",
		"clone c1_node2 from base-image",
		"interfaces c1_node1",
		"disks c1_node1",
		"seed c1_node1 hostname=node1",
		"seed c1_node2 hostname=node2",
		"start c1_node1",
		"start c1_node2",
	}
	if len(prov.ops) != len(want) {
		t.Fatalf("ops = %v\nwant %v", prov.ops, want)
	}
	for i := range want {
		if prov.ops[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, prov.ops[i], want[i])
		}
	}
}

func TestCloneVMsResolvesWorkdir(t *testing.T) {
	var gotWorkdir string
	prov := &fakeProvider{}
	s := readySession(t, prov)
	s.prov = cloneCapture{Provider: prov, workdir: &gotWorkdir}
	if err := s.CloneVMs(context.Background()); err != nil {
		t.Fatalf("CloneVMs() error = %v", err)
	}
	want := filepath.Join(s.project.Dir, "work")
	if gotWorkdir != want {
		t.Errorf("workdir = %q, want %q", gotWorkdir, want)
	}
}

type cloneCapture struct {
	Provider
	workdir *string
}

func (c cloneCapture) CloneVM(ctx context.Context, req CloneRequest) error {
	*c.workdir = req.Workdir
	return c.Provider.CloneVM(ctx, req)
}

func TestSnapshotOpsRequireName(t *testing.T) {
	s := readySession(t, &fakeProvider{})

	if err := s.SnapshotRestore(context.Background(), ""); err == nil {
		t.Error("SnapshotRestore() expected error for empty name")
	}
	if err := s.SnapshotDelete(context.Background(), ""); err == nil {
		t.Error("SnapshotDelete() expected error for empty name")
	}
}

func TestSnapshotTakeCoversAllVMs(t *testing.T) {
	prov := &fakeProvider{}
	s := readySession(t, prov)

	if err := s.SnapshotTake(context.Background(), "base", "fresh install"); err != nil {
		t.Fatalf("SnapshotTake() error = %v", err)
	}
	want := []string{
		"snapshot-take c1_node1 base",
		"snapshot-take c1_node2 base",
	}
	if len(prov.ops) != 2 || prov.ops[0] != want[0] || prov.ops[1] != want[1] {
		t.Errorf("ops = %v, want %v", prov.ops, want)
	}
}

func TestWaitForAddressesReturnsWhenLeased(t *testing.T) {
	prov := &fakeProvider{addrs: map[string]map[string]string{
		"c1_node1": {"vnet0": "192.168.122.10"},
		"c1_node2": {"vnet0": "192.168.122.11"},
	}}
	s := readySession(t, prov)

	start := time.Now()
	addrs := s.WaitForAddresses(context.Background(), time.Minute)
	if time.Since(start) > 5*time.Second {
		t.Error("WaitForAddresses() kept polling after all VMs were leased")
	}
	if addrs["c1_node1"]["vnet0"] != "192.168.122.10" {
		t.Errorf("addrs = %v", addrs)
	}
}

func TestWaitForAddressesTimesOut(t *testing.T) {
	prov := &fakeProvider{addrs: map[string]map[string]string{
		"c1_node1": {"vnet0": "192.168.122.10"},
		// node2 never gets a lease
	}}
	s := readySession(t, prov)

	addrs := s.WaitForAddresses(context.Background(), 10*time.Millisecond)
	if len(addrs["c1_node2"]) != 0 {
		t.Errorf("unexpected lease for node2: %v", addrs)
	}
}

func TestWriteSSHConfigs(t *testing.T) {
	prov := &fakeProvider{}
	s := readySession(t, prov)

	addrs := map[string]map[string]string{
		"c1_node1": {"vnet0": "192.168.122.10"},
		// node2 has no address and must be skipped
	}
	if err := s.WriteSSHConfigs(context.Background(), addrs); err != nil {
		t.Fatalf("WriteSSHConfigs() error = %v", err)
	}

	path := filepath.Join(s.project.Dir, "work", "ssh_config")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("SSH config not written: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Host node1.lab\n") {
		t.Errorf("missing cloud-init hostname entry:\n%s", content)
	}
	if !strings.Contains(content, "Hostname 192.168.122.10\n") {
		t.Errorf("missing address entry:\n%s", content)
	}
	if !strings.Contains(content, "User admin\n") {
		t.Errorf("missing default user:\n%s", content)
	}
	if strings.Contains(content, "node2") {
		t.Errorf("leaseless VM should be skipped:\n%s", content)
	}
}

func TestBaseProviderConfigMergesToolPaths(t *testing.T) {
	project := testProject(t)
	project.Provider = config.ProviderSettings{
		Name:      config.ProviderLibvirt,
		UseSudo:   true,
		ToolPaths: map[string]string{"virsh": "/opt/virsh"},
	}
	app := config.DefaultConfig()
	app.Provider.ToolPaths = map[string]string{
		"virsh": "/usr/bin/virsh",
		"oras":  "/usr/bin/oras",
	}
	app.Provider.URI = "qemu:///session"

	s, err := New(project, app,
		WithLogger(log.New(io.Discard)), WithRuntime(&runtime.LocalRuntime{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cfg := s.baseProviderConfig()
	if !cfg.UseSudo {
		t.Error("UseSudo not taken from project")
	}
	if cfg.URI != "qemu:///session" {
		t.Errorf("URI = %q", cfg.URI)
	}
	if cfg.ToolPaths["virsh"] != "/opt/virsh" {
		t.Errorf("project tool path not winning: %q", cfg.ToolPaths["virsh"])
	}
	if cfg.ToolPaths["oras"] != "/usr/bin/oras" {
		t.Errorf("app tool path lost: %q", cfg.ToolPaths["oras"])
	}
}

// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"boxman-cli/internal/issue"
)

// ProjectFileName is the project descriptor searched for in the working
// directory and its parents.
const ProjectFileName = "boxman.yml"

// ErrProjectFileNotFound is returned when no boxman.yml can be located.
var ErrProjectFileNotFound = errors.New("project file not found")

type (
	// Project is the parsed boxman.yml: everything boxman needs to
	// provision a set of VM clusters.
	Project struct {
		// Name scopes runtime containers, compose projects and
		// provisioned resources.
		Name     string             `yaml:"project"`
		Provider ProviderSettings   `yaml:"provider"`
		Runtime  RuntimeSettings    `yaml:"runtime"`
		Clusters map[string]Cluster `yaml:"clusters"`

		// Dir is the directory the descriptor was loaded from. Not part
		// of the file.
		Dir string `yaml:"-"`
	}

	// ProviderSettings selects and configures the virtualization
	// provider for a project.
	ProviderSettings struct {
		Name      ProviderName      `yaml:"name"`
		UseSudo   bool              `yaml:"use_sudo"`
		URI       string            `yaml:"uri"`
		ToolPaths map[string]string `yaml:"tool_paths"`
	}

	// RuntimeSettings selects where provider commands execute.
	RuntimeSettings struct {
		Name        RuntimeName `yaml:"name"`
		ComposeFile string      `yaml:"compose_file"`
		// ReadyTimeoutSecs bounds each runtime readiness phase, in
		// seconds. Unset means the default; an explicit zero (or a
		// negative value) makes the readiness deadline expire
		// immediately.
		ReadyTimeoutSecs *int `yaml:"ready_timeout"`
	}

	// Cluster is a named group of VMs cloned from one base image and
	// attached to a set of networks.
	Cluster struct {
		Workdir   string `yaml:"workdir"`
		BaseImage string `yaml:"base_image"`
		SSHConfig string `yaml:"ssh_config"`
		// AdminUser is the login written into generated SSH configs.
		AdminUser string `yaml:"admin_user"`
		// AdminKeyName names the identity file in the workdir, if any.
		AdminKeyName string             `yaml:"admin_key_name"`
		Networks     map[string]Network `yaml:"networks"`
		VMs          map[string]VM      `yaml:"vms"`
	}

	// Network describes a virtual network attached to a cluster.
	Network struct {
		// Mode is the forward mode: nat, route or bridge.
		Mode   string       `yaml:"mode"`
		Bridge BridgeConfig `yaml:"bridge"`
		MAC    string       `yaml:"mac"`
		IP     NetworkIP    `yaml:"ip"`
		Enable *bool        `yaml:"enable"`
	}

	// BridgeConfig names the bridge device backing a network.
	BridgeConfig struct {
		Name  string `yaml:"name"`
		STP   string `yaml:"stp"`
		Delay string `yaml:"delay"`
	}

	// NetworkIP holds the host-side addressing of a network.
	NetworkIP struct {
		Address string    `yaml:"address"`
		Netmask string    `yaml:"netmask"`
		DHCP    DHCPRange `yaml:"dhcp"`
	}

	// DHCPRange bounds the addresses handed out on a network.
	DHCPRange struct {
		Range struct {
			Start string `yaml:"start"`
			End   string `yaml:"end"`
		} `yaml:"range"`
	}

	// VM describes a single machine cloned from the cluster base image.
	VM struct {
		Memory     int         `yaml:"memory"`
		VCPUs      int         `yaml:"vcpus"`
		Disks      []Disk      `yaml:"disks"`
		Interfaces []Interface `yaml:"interfaces"`
		CloudInit  *CloudInit  `yaml:"cloud_init"`
	}

	// Disk is an additional disk attached to a VM.
	Disk struct {
		Name string `yaml:"name"`
		// Size is a qemu-img size spec, e.g. "10G".
		Size string `yaml:"size"`
		Path string `yaml:"path"`
	}

	// Interface attaches a VM to a cluster network.
	Interface struct {
		Network string `yaml:"network"`
		MAC     string `yaml:"mac"`
	}

	// CloudInit carries the NoCloud seed data for first boot.
	CloudInit struct {
		Hostname string   `yaml:"hostname"`
		Users    []string `yaml:"users"`
		UserData string   `yaml:"user_data"`
		MetaData string   `yaml:"meta_data"`
	}
)

// ReadyTimeout returns the configured runtime ready timeout as a
// Duration. Zero means unset (the runtime applies its default);
// negative means the readiness deadline expires immediately, which is
// how an explicit `ready_timeout: 0` is preserved.
func (r RuntimeSettings) ReadyTimeout() time.Duration {
	if r.ReadyTimeoutSecs == nil {
		return 0
	}
	if *r.ReadyTimeoutSecs <= 0 {
		return -1
	}
	return time.Duration(*r.ReadyTimeoutSecs) * time.Second
}

// LoadProject reads and validates a project descriptor.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load project config").
			WithResource(path).
			WithSuggestion("Check the path, or run from the project directory").
			Wrap(err).
			BuildError()
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("parse project config").
			WithResource(path).
			WithSuggestion("Check the YAML syntax near the reported line").
			Wrap(err).
			BuildError()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p.Dir = filepath.Dir(abs)

	if err := p.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate project config").
			WithResource(path).
			Wrap(err).
			BuildError()
	}
	return &p, nil
}

// FindProjectFile locates boxman.yml starting at startDir and walking
// toward the filesystem root.
func FindProjectFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if fileExists(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s in %s or any parent directory",
				ErrProjectFileNotFound, ProjectFileName, startDir)
		}
		dir = parent
	}
}

// Validate checks the descriptor for the mistakes boxman can catch
// before touching the hypervisor.
func (p *Project) Validate() error {
	if p.Name == "" {
		return errors.New("project name is required")
	}
	if p.Provider.Name != "" {
		if err := p.Provider.Name.Validate(); err != nil {
			return err
		}
	}
	if p.Runtime.Name != "" {
		if err := p.Runtime.Name.Validate(); err != nil {
			return err
		}
	}
	if len(p.Clusters) == 0 {
		return errors.New("at least one cluster is required")
	}
	for clusterName, cluster := range p.Clusters {
		if cluster.BaseImage == "" {
			return fmt.Errorf("cluster %q: base_image is required", clusterName)
		}
		for vmName, vm := range cluster.VMs {
			for _, iface := range vm.Interfaces {
				if iface.Network == "" {
					continue
				}
				if _, ok := cluster.Networks[iface.Network]; !ok {
					return fmt.Errorf("cluster %q: vm %q references unknown network %q",
						clusterName, vmName, iface.Network)
				}
			}
		}
	}
	return nil
}

// Workdirs returns the resolved workdir of every cluster, deduplicated
// and sorted. Relative workdirs are resolved against the project
// directory.
func (p *Project) Workdirs() []string {
	seen := map[string]struct{}{}
	for _, cluster := range p.Clusters {
		if cluster.Workdir == "" {
			continue
		}
		wd := cluster.Workdir
		if !filepath.IsAbs(wd) {
			wd = filepath.Join(p.Dir, wd)
		}
		seen[filepath.Clean(wd)] = struct{}{}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// FullVMName returns the provisioned name of a VM, scoped by its
// cluster: <cluster>_<vm>.
func FullVMName(clusterName, vmName string) string {
	return clusterName + "_" + vmName
}

// FullNetworkName returns the provisioned name of a network, scoped by
// its cluster: <cluster>_<network>.
func FullNetworkName(clusterName, networkName string) string {
	return clusterName + "_" + networkName
}

// RuntimeName returns the project's runtime, falling back to the
// application default, then to local.
func (p *Project) RuntimeName(appDefault RuntimeName) RuntimeName {
	if p.Runtime.Name != "" {
		return p.Runtime.Name
	}
	if appDefault != "" {
		return appDefault
	}
	return RuntimeLocal
}

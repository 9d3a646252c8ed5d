// SPDX-License-Identifier: MPL-2.0

// Package provider holds the configuration contract shared by all
// provisioning backends (libvirt, VirtualBox). A provider receives a
// Config that has been enriched by the active runtime and uses it to
// construct command executors; it never inspects the runtime directly.
package provider

// DefaultURI is the libvirt connection string used when none is configured.
const DefaultURI = "qemu:///system"

// Config carries provider-level settings parsed from the project file.
// Runtimes enrich a copy of it (see Clone) with their identity before
// handing it to provider command executors.
type Config struct {
	// UseSudo prefixes every provider command with sudo.
	UseSudo bool
	// Verbose logs each command line before execution.
	Verbose bool
	// URI is the libvirt connection string (ignored by VirtualBox).
	URI string
	// Runtime is the name of the active runtime ("local", "docker-compose").
	// Always set after a runtime has injected itself.
	Runtime string
	// RuntimeContainer is the sidecar container name. Set if and only if
	// the active runtime is container-based.
	RuntimeContainer string
	// ToolPaths overrides executable paths per tool name ("virsh",
	// "virt-clone", ...). Missing entries fall back to the bare tool name.
	ToolPaths map[string]string
}

// Tool returns the configured path for the named tool, or the tool name
// itself so the executable is resolved from PATH.
func (c *Config) Tool(name string) string {
	if c == nil {
		return name
	}
	if p, ok := c.ToolPaths[name]; ok && p != "" {
		return p
	}
	return name
}

// ConnectionURI returns the configured libvirt URI, defaulting to
// DefaultURI when unset.
func (c *Config) ConnectionURI() string {
	if c == nil || c.URI == "" {
		return DefaultURI
	}
	return c.URI
}

// Clone returns a shallow copy of the config. Runtimes must enrich the
// copy, never the caller's original.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	cp := *c
	return &cp
}

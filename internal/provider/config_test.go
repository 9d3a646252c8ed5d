// SPDX-License-Identifier: MPL-2.0

package provider

import "testing"

func TestTool(t *testing.T) {
	c := &Config{ToolPaths: map[string]string{"virsh": "/opt/bin/virsh"}}
	if got := c.Tool("virsh"); got != "/opt/bin/virsh" {
		t.Errorf("Tool() = %q, want configured path", got)
	}
	if got := c.Tool("qemu-img"); got != "qemu-img" {
		t.Errorf("Tool() = %q, want bare name fallback", got)
	}
}

func TestConnectionURI(t *testing.T) {
	if got := (&Config{}).ConnectionURI(); got != DefaultURI {
		t.Errorf("ConnectionURI() = %q, want default", got)
	}
	c := &Config{URI: "qemu+tcp://localhost/system"}
	if got := c.ConnectionURI(); got != "qemu+tcp://localhost/system" {
		t.Errorf("ConnectionURI() = %q, want explicit URI", got)
	}
}

func TestCloneDoesNotAliasOriginal(t *testing.T) {
	orig := &Config{UseSudo: true, URI: "qemu:///session"}
	dup := orig.Clone()
	dup.UseSudo = false
	dup.Runtime = "docker-compose"
	dup.RuntimeContainer = "boxman-libvirt-x"

	if !orig.UseSudo || orig.Runtime != "" || orig.RuntimeContainer != "" {
		t.Error("mutating the clone changed the original")
	}
	if dup.URI != orig.URI {
		t.Error("clone dropped fields")
	}
}

func TestCloneNil(t *testing.T) {
	var c *Config
	if c.Clone() == nil {
		t.Error("Clone() on nil returned nil, want zero-value config")
	}
}

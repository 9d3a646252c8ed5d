// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kdomanski/iso9660"

	"boxman-cli/internal/config"
)

func TestRenderSeedDataDefaults(t *testing.T) {
	data := RenderSeedData("lab-vm1", nil)

	if !strings.Contains(data.UserData, "hostname: lab-vm1") {
		t.Errorf("user-data missing hostname:\n%s", data.UserData)
	}
	if !strings.Contains(data.MetaData, "local-hostname: lab-vm1") {
		t.Errorf("meta-data missing hostname:\n%s", data.MetaData)
	}
	if !strings.Contains(data.MetaData, "instance-id: ") {
		t.Errorf("meta-data missing instance-id:\n%s", data.MetaData)
	}
	if !strings.Contains(data.NetworkConfig, "dhcp4: true") {
		t.Errorf("network-config missing DHCP:\n%s", data.NetworkConfig)
	}
}

func TestRenderSeedDataFreshInstanceID(t *testing.T) {
	first := RenderSeedData("vm", nil)
	second := RenderSeedData("vm", nil)
	if first.MetaData == second.MetaData {
		t.Error("instance-id not regenerated between renders")
	}
}

func TestRenderSeedDataOverrides(t *testing.T) {
	ci := &config.CloudInit{
		Hostname: "custom-host",
		UserData: "#cloud-config\npackages: [htop]\n",
	}
	data := RenderSeedData("lab-vm1", ci)

	if data.UserData != ci.UserData {
		t.Errorf("user-data override not applied:\n%s", data.UserData)
	}
	if !strings.Contains(data.MetaData, "local-hostname: custom-host") {
		t.Errorf("hostname override not applied:\n%s", data.MetaData)
	}
}

func TestRenderSeedDataUsers(t *testing.T) {
	ci := &config.CloudInit{Users: []string{"alice", "bob"}}
	data := RenderSeedData("vm", ci)

	if !strings.Contains(data.UserData, "- name: alice") ||
		!strings.Contains(data.UserData, "- name: bob") {
		t.Errorf("users missing from user-data:\n%s", data.UserData)
	}
}

func TestBuildSeedISO(t *testing.T) {
	iso, err := BuildSeedISO(SeedData{
		UserData:      "#cloud-config\n",
		MetaData:      "instance-id: i-1\n",
		NetworkConfig: defaultNetworkConfig,
	})
	if err != nil {
		t.Fatalf("BuildSeedISO() error = %v", err)
	}

	img, err := iso9660.OpenImage(bytes.NewReader(iso))
	if err != nil {
		t.Fatalf("generated ISO does not open: %v", err)
	}
	root, err := img.RootDir()
	if err != nil {
		t.Fatalf("RootDir() error = %v", err)
	}
	children, err := root.GetChildren()
	if err != nil {
		t.Fatalf("GetChildren() error = %v", err)
	}

	found := map[string]bool{}
	for _, child := range children {
		found[child.Name()] = true
	}
	for _, name := range []string{"user-data", "meta-data", "network-config"} {
		if !found[name] {
			t.Errorf("ISO missing %s (found %v)", name, found)
		}
	}
}

func TestWriteSeedISO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed", "seed.iso")

	if err := WriteSeedISO(path, "lab-vm1", nil); err != nil {
		t.Fatalf("WriteSeedISO() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("seed ISO not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("seed ISO is empty")
	}
}

// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kdomanski/iso9660"

	"boxman-cli/internal/config"
)

// defaultUserData is the cloud-config applied when the VM descriptor
// carries no user data of its own. It enables password SSH for quick
// lab access and brings up all interfaces via DHCP.
const defaultUserData = `#cloud-config
hostname: %s
manage_etc_hosts: true

ssh_pwauth: true
package_update: false
`

const defaultNetworkConfig = `version: 2
ethernets:
  all-en:
    match:
      name: "en*"
    dhcp4: true
  all-eth:
    match:
      name: "eth*"
    dhcp4: true
`

// SeedData is the rendered content of a NoCloud seed.
type SeedData struct {
	UserData      string
	MetaData      string
	NetworkConfig string
}

// RenderSeedData builds the NoCloud file set for a VM. Descriptor
// fields override the generated defaults; the instance-id is always a
// fresh UUID so cloud-init re-runs on reprovisioned machines.
func RenderSeedData(hostname string, ci *config.CloudInit) SeedData {
	if ci == nil {
		ci = &config.CloudInit{}
	}
	if ci.Hostname != "" {
		hostname = ci.Hostname
	}

	data := SeedData{
		UserData:      ci.UserData,
		MetaData:      ci.MetaData,
		NetworkConfig: defaultNetworkConfig,
	}
	if data.UserData == "" {
		data.UserData = fmt.Sprintf(defaultUserData, hostname)
		if len(ci.Users) > 0 {
			var b strings.Builder
			b.WriteString("users:\n")
			for _, user := range ci.Users {
				fmt.Fprintf(&b, "  - name: %s\n", user)
			}
			data.UserData += b.String()
		}
	}
	if data.MetaData == "" {
		data.MetaData = fmt.Sprintf("instance-id: %s\nlocal-hostname: %s\n",
			uuid.NewString(), hostname)
	}
	return data
}

// BuildSeedISO assembles a NoCloud seed ISO from the rendered data. The
// volume label CIDATA is what the cloud-init NoCloud datasource scans
// for.
func BuildSeedISO(data SeedData) ([]byte, error) {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("create ISO writer: %w", err)
	}
	defer writer.Cleanup()

	files := map[string]string{
		"user-data":      data.UserData,
		"meta-data":      data.MetaData,
		"network-config": data.NetworkConfig,
	}
	for name, content := range files {
		if content == "" {
			continue
		}
		if err := writer.AddFile(bytes.NewReader([]byte(content)), name); err != nil {
			return nil, fmt.Errorf("add %s to seed ISO: %w", name, err)
		}
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, "CIDATA"); err != nil {
		return nil, fmt.Errorf("write seed ISO: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSeedISO renders and writes the NoCloud seed ISO for a VM to
// path, creating parent directories as needed.
func WriteSeedISO(path, hostname string, ci *config.CloudInit) error {
	iso, err := BuildSeedISO(RenderSeedData(hostname, ci))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create seed ISO directory: %w", err)
	}
	if err := os.WriteFile(path, iso, 0o644); err != nil {
		return fmt.Errorf("write seed ISO %s: %w", path, err)
	}
	return nil
}

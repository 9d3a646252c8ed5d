// SPDX-License-Identifier: MPL-2.0

// Package images resolves a cluster's base_image reference: either the
// name of an existing hypervisor VM to clone, or an oci:// reference
// pulled into a local cache with the oras CLI.
package images

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata describes a cached VM image, shipped next to the qcow2 blob
// as vmimage.json. Fields are provider-agnostic defaults for the VMs
// built from the image.
type Metadata struct {
	Firmware string `json:"firmware"`
	Machine  string `json:"machine,omitempty"`
	DiskBus  string `json:"disk_bus"`
	NetModel string `json:"net_model"`

	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Arch    string `json:"arch,omitempty"`
}

// DefaultMetadata returns the metadata assumed when an image ships
// without a vmimage.json.
func DefaultMetadata() *Metadata {
	return &Metadata{
		Firmware: "uefi",
		DiskBus:  "virtio",
		NetModel: "virtio",
	}
}

// LoadMetadata reads vmimage.json from path. A missing file or empty
// path yields the defaults; malformed JSON is an error.
func LoadMetadata(path string) (*Metadata, error) {
	if path == "" {
		return DefaultMetadata(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultMetadata(), nil
		}
		return nil, fmt.Errorf("read image metadata %s: %w", path, err)
	}

	meta := DefaultMetadata()
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("invalid vmimage.json in %s: %w", path, err)
	}
	if meta.Firmware == "" {
		meta.Firmware = "uefi"
	}
	if meta.DiskBus == "" {
		meta.DiskBus = "virtio"
	}
	if meta.NetModel == "" {
		meta.NetModel = "virtio"
	}
	return meta, nil
}

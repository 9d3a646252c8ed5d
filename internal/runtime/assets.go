// SPDX-License-Identifier: MPL-2.0

package runtime

import "embed"

// bundledAssets carries the default docker-compose descriptor and the
// image build context for the managed libvirt container.
//
//go:embed assets/docker
var bundledAssets embed.FS

const bundledAssetRoot = "assets/docker"

// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"boxman-cli/internal/config"
	"boxman-cli/internal/images"
	"boxman-cli/internal/provider"
	"boxman-cli/internal/runtime"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage cached base images",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	imageCmd.AddCommand(&cobra.Command{
		Use:   "pull <ref>",
		Short: "Pull an OCI base image into the local cache",
		Long: `Pull an OCI base image into the local cache.

The reference must use the oci:// scheme, e.g.
oci://registry.example/lab/ubuntu:24.04. The artifact is fetched with
the oras CLI and cached per reference; a reference that is already
cached is not pulled again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ref := args[0]
			if !strings.HasPrefix(ref, images.OCIPrefix) {
				return fmt.Errorf("image reference must start with %s, got %q", images.OCIPrefix, ref)
			}

			app := loadAppConfig(ctx)
			logger := newLogger()

			cacheDir, err := config.ImageCacheDir(app)
			if err != nil {
				return err
			}

			// Pulls always run on the host; the cache lives there even
			// when provisioning later happens in a managed container.
			cfg := &provider.Config{
				Verbose:   app.UI.Verbose,
				ToolPaths: app.Provider.ToolPaths,
			}
			resolver := images.NewResolver(cacheDir,
				images.NewOras(cfg, &runtime.LocalRuntime{}, logger), logger)

			res, err := resolver.Resolve(ctx, ref)
			if err != nil {
				return err
			}

			fmt.Println(SuccessStyle.Render("✓") + " pulled " + CmdStyle.Render(res.Ref))
			fmt.Println("  disk: " + res.QCOW2Path)
			if res.Metadata != nil {
				fmt.Printf("  firmware: %s, arch: %s, disk bus: %s\n",
					res.Metadata.Firmware, res.Metadata.Arch, res.Metadata.DiskBus)
			}
			return nil
		},
	})
}

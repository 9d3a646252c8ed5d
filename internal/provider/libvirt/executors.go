// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
	"boxman-cli/internal/provider"
)

// NewVirsh builds an executor for virsh invocations. The connection URI
// is threaded in as a base argument so every subcommand targets the
// configured hypervisor.
func NewVirsh(cfg *provider.Config, wrapper command.Wrapper, logger *log.Logger) *command.Executor {
	return command.New(cfg, wrapper, logger,
		command.WithTool(cfg.Tool("virsh")),
		command.WithBaseArgs("-c", cfg.ConnectionURI()))
}

// NewVirtClone builds an executor for virt-clone invocations.
func NewVirtClone(cfg *provider.Config, wrapper command.Wrapper, logger *log.Logger) *command.Executor {
	return command.New(cfg, wrapper, logger,
		command.WithTool(cfg.Tool("virt-clone")),
		command.WithBaseArgs("--connect="+cfg.ConnectionURI()))
}

// NewVirtInstall builds an executor for virt-install invocations.
func NewVirtInstall(cfg *provider.Config, wrapper command.Wrapper, logger *log.Logger) *command.Executor {
	return command.New(cfg, wrapper, logger,
		command.WithTool(cfg.Tool("virt-install")),
		command.WithBaseArgs("--connect="+cfg.ConnectionURI()))
}

// NewShell builds a bare executor for auxiliary tools invoked as raw
// shell commands (qemu-img, rsync). It carries the same sudo and
// runtime wrapping behavior as the tool executors.
func NewShell(cfg *provider.Config, wrapper command.Wrapper, logger *log.Logger) *command.Executor {
	return command.New(cfg, wrapper, logger)
}

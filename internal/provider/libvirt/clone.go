// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
)

// Cloner clones VMs from a base image domain with virt-clone and
// manages their power state with virsh.
type Cloner struct {
	virtClone *command.Executor
	virsh     *command.Executor
	logger    *log.Logger
}

// NewCloner creates a cloner over the given executors.
func NewCloner(virtClone, virsh *command.Executor, logger *log.Logger) *Cloner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Cloner{virtClone: virtClone, virsh: virsh, logger: logger}
}

// Clone creates a new VM as a full clone of the source domain. Storage
// is auto-allocated next to the source image. An optional MAC address
// pins the first interface of the clone.
func (c *Cloner) Clone(ctx context.Context, srcVM, newVM, mac string) error {
	flags := []command.Flag{
		command.F("original", srcVM),
		command.F("name", newVM),
		command.F("auto_clone", true),
	}
	if mac != "" {
		flags = append(flags, command.F("mac", mac))
	}

	c.logger.Info("cloning VM", "source", srcVM, "name", newVM)
	if _, err := c.virtClone.Execute(ctx, "", nil, command.ExecOpts{Hide: true}, flags...); err != nil {
		return fmt.Errorf("clone VM %s from %s: %w", newVM, srcVM, err)
	}
	return nil
}

// Start powers on a defined VM.
func (c *Cloner) Start(ctx context.Context, name string) error {
	c.logger.Info("starting VM", "name", name)
	if _, err := c.virsh.Execute(ctx, "start", []string{name}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("start VM %s: %w", name, err)
	}
	return nil
}

// CloneAndStart clones the VM and immediately powers it on.
func (c *Cloner) CloneAndStart(ctx context.Context, srcVM, newVM, mac string) error {
	if err := c.Clone(ctx, srcVM, newVM, mac); err != nil {
		return err
	}
	return c.Start(ctx, newVM)
}

// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	shutdownPollInterval   = time.Second
)

// ErrShutdownTimeout is returned when a VM does not shut down within
// the allotted time and forcing was not requested.
var ErrShutdownTimeout = errors.New("VM shutdown timed out")

// Destroyer removes a single VM: graceful shutdown with a bounded wait,
// forced power-off as fallback, snapshot purge and undefine.
type Destroyer struct {
	name            string
	virsh           *command.Executor
	logger          *log.Logger
	shutdownTimeout time.Duration
	pollInterval    time.Duration
}

// DestroyerOption configures a Destroyer.
type DestroyerOption func(*Destroyer)

// WithShutdownTimeout overrides the graceful shutdown wait.
func WithShutdownTimeout(d time.Duration) DestroyerOption {
	return func(dst *Destroyer) { dst.shutdownTimeout = d }
}

// WithPollInterval overrides the state poll interval.
func WithPollInterval(d time.Duration) DestroyerOption {
	return func(dst *Destroyer) { dst.pollInterval = d }
}

// NewDestroyer creates a destroyer for the named VM.
func NewDestroyer(name string, virsh *command.Executor, logger *log.Logger, opts ...DestroyerOption) *Destroyer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	d := &Destroyer{
		name:            name,
		virsh:           virsh,
		logger:          logger,
		shutdownTimeout: defaultShutdownTimeout,
		pollInterval:    shutdownPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsRunning reports whether the VM is currently running. Probe
// failures count as not running.
func (d *Destroyer) IsRunning(ctx context.Context) bool {
	res, err := d.virsh.Execute(ctx, "domstate", []string{d.name}, command.ExecOpts{Hide: true, Warn: true})
	if err != nil {
		return false
	}
	return res.OK() && strings.Contains(res.Stdout, "running")
}

// IsDefined reports whether the VM exists on the hypervisor.
func (d *Destroyer) IsDefined(ctx context.Context) bool {
	res, err := d.virsh.Execute(ctx, "dominfo", []string{d.name}, command.ExecOpts{Hide: true, Warn: true})
	if err != nil {
		return false
	}
	return res.OK()
}

// Shutdown asks the VM to power down gracefully and waits for it to
// stop. When the wait elapses, force decides between a hard power-off
// and ErrShutdownTimeout.
func (d *Destroyer) Shutdown(ctx context.Context, force bool) error {
	if !d.IsRunning(ctx) {
		d.logger.Info("VM is not running, no need to shut down", "vm", d.name)
		return nil
	}

	d.logger.Info("shutting down VM gracefully", "vm", d.name)
	if _, err := d.virsh.Execute(ctx, "shutdown", []string{d.name}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("shutdown VM %s: %w", d.name, err)
	}

	deadline := time.Now().Add(d.shutdownTimeout)
	for time.Now().Before(deadline) {
		if !d.IsRunning(ctx) {
			d.logger.Info("VM shut down", "vm", d.name)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}

	if !force {
		d.logger.Warn("VM did not shut down in time", "vm", d.name, "timeout", d.shutdownTimeout)
		return fmt.Errorf("%w: %s after %s", ErrShutdownTimeout, d.name, d.shutdownTimeout)
	}
	d.logger.Warn("VM did not shut down in time, forcing power-off", "vm", d.name)
	return d.ForceShutdown(ctx)
}

// ForceShutdown powers the VM off immediately, the virtual equivalent
// of pulling the plug.
func (d *Destroyer) ForceShutdown(ctx context.Context) error {
	if !d.IsRunning(ctx) {
		return nil
	}
	d.logger.Info("force shutting down VM", "vm", d.name)
	if _, err := d.virsh.Execute(ctx, "destroy", []string{d.name}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("force shutdown VM %s: %w", d.name, err)
	}
	if d.IsRunning(ctx) {
		return fmt.Errorf("VM %s still running after force shutdown", d.name)
	}
	return nil
}

// DeleteSnapshots removes every snapshot of the VM so undefine does not
// leave snapshot metadata behind. Individual delete failures are
// collected rather than aborting the purge.
func (d *Destroyer) DeleteSnapshots(ctx context.Context) error {
	if !d.IsDefined(ctx) {
		return nil
	}

	res, err := d.virsh.Execute(ctx, "snapshot-list", []string{d.name},
		command.ExecOpts{Hide: true, Warn: true}, command.F("name", true))
	if err != nil {
		return fmt.Errorf("list snapshots of %s: %w", d.name, err)
	}
	if !res.OK() {
		return fmt.Errorf("list snapshots of %s: %s", d.name, strings.TrimSpace(res.Stderr))
	}

	names := splitNonEmptyLines(res.Stdout)
	if len(names) == 0 {
		return nil
	}
	d.logger.Info("deleting snapshots", "vm", d.name, "count", len(names))

	var errs []error
	for _, snap := range names {
		if _, err := d.virsh.Execute(ctx, "snapshot-delete", []string{d.name, snap}, command.ExecOpts{Hide: true}); err != nil {
			d.logger.Error("failed to delete snapshot", "vm", d.name, "snapshot", snap, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Undefine removes the VM definition. removeStorage also deletes the
// disk images referenced by the domain.
func (d *Destroyer) Undefine(ctx context.Context, removeStorage bool) error {
	if !d.IsDefined(ctx) {
		d.logger.Info("VM is not defined, nothing to undefine", "vm", d.name)
		return nil
	}

	d.logger.Info("undefining VM", "vm", d.name)
	var flags []command.Flag
	if removeStorage {
		flags = append(flags, command.F("remove_all_storage", true))
	}
	if _, err := d.virsh.Execute(ctx, "undefine", []string{d.name}, command.ExecOpts{Hide: true}, flags...); err != nil {
		return fmt.Errorf("undefine VM %s: %w", d.name, err)
	}
	if d.IsDefined(ctx) {
		return fmt.Errorf("VM %s still defined after undefine", d.name)
	}
	return nil
}

// Remove tears the VM down completely: stop it (forcing after the
// graceful wait), purge snapshots, then undefine. Snapshot purge
// failures are logged and do not block the undefine.
func (d *Destroyer) Remove(ctx context.Context, removeStorage bool) error {
	if d.IsRunning(ctx) {
		if err := d.Shutdown(ctx, true); err != nil {
			return fmt.Errorf("stop VM %s before undefine: %w", d.name, err)
		}
	}

	if err := d.DeleteSnapshots(ctx); err != nil {
		d.logger.Warn("failed to delete all snapshots, continuing with undefine",
			"vm", d.name, "err", err)
	}

	return d.Undefine(ctx, removeStorage)
}

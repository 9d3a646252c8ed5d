// SPDX-License-Identifier: MPL-2.0

// Package virtualbox provisions VMs through the VBoxManage CLI. It
// mirrors the libvirt provider's shape: everything goes through a
// command.Executor so the active runtime controls where VBoxManage
// actually runs.
package virtualbox

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
	"boxman-cli/internal/provider"
)

// NewVBoxManage builds an executor for VBoxManage invocations.
func NewVBoxManage(cfg *provider.Config, wrapper command.Wrapper, logger *log.Logger) *command.Executor {
	return command.New(cfg, wrapper, logger,
		command.WithTool(cfg.Tool("vboxmanage")))
}

// Manager drives VM lifecycle operations through VBoxManage.
type Manager struct {
	vbox   *command.Executor
	logger *log.Logger
}

// NewManager creates a VM manager over the given executor.
func NewManager(vbox *command.Executor, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{vbox: vbox, logger: logger}
}

// CloneVM creates a full registered clone of the source VM. baseFolder
// optionally places the clone's files outside the default machine
// folder.
func (m *Manager) CloneVM(ctx context.Context, srcVM, newVM, baseFolder string) error {
	flags := []command.Flag{
		command.F("mode", "all"),
		command.F("name", newVM),
	}
	if baseFolder != "" {
		flags = append(flags, command.F("basefolder", baseFolder))
	}
	flags = append(flags, command.F("register", true))

	m.logger.Info("cloning VM", "source", srcVM, "name", newVM)
	if _, err := m.vbox.Execute(ctx, "clonevm", []string{srcVM}, command.ExecOpts{Hide: true}, flags...); err != nil {
		return fmt.Errorf("clone VM %s from %s: %w", newVM, srcVM, err)
	}
	return nil
}

// Start powers on a VM headless.
func (m *Manager) Start(ctx context.Context, name string) error {
	m.logger.Info("starting VM", "name", name)
	if _, err := m.vbox.Execute(ctx, "startvm", []string{name},
		command.ExecOpts{Hide: true}, command.F("type", "headless")); err != nil {
		return fmt.Errorf("start VM %s: %w", name, err)
	}
	return nil
}

// PowerOff turns a VM off immediately.
func (m *Manager) PowerOff(ctx context.Context, name string) error {
	if _, err := m.vbox.Execute(ctx, "controlvm", []string{name, "poweroff"}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("power off VM %s: %w", name, err)
	}
	return nil
}

// SaveState suspends a VM to disk.
func (m *Manager) SaveState(ctx context.Context, name string) error {
	if _, err := m.vbox.Execute(ctx, "controlvm", []string{name, "savestate"}, command.ExecOpts{Hide: true}); err != nil {
		return fmt.Errorf("save state of VM %s: %w", name, err)
	}
	return nil
}

// ListVMs returns the names of all registered VMs.
func (m *Manager) ListVMs(ctx context.Context) ([]string, error) {
	return m.list(ctx, "vms")
}

// ListRunning returns the names of all running VMs.
func (m *Manager) ListRunning(ctx context.Context) ([]string, error) {
	return m.list(ctx, "runningvms")
}

func (m *Manager) list(ctx context.Context, sub string) ([]string, error) {
	res, err := m.vbox.Execute(ctx, "list", []string{sub}, command.ExecOpts{Hide: true})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sub, err)
	}
	return parseVMList(res.Stdout), nil
}

// parseVMList extracts VM names from "list vms" output lines of the
// form "name" {uuid}.
func parseVMList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, _, found := strings.Cut(line, " {")
		if !found {
			continue
		}
		names = append(names, strings.Trim(name, `"`))
	}
	return names
}

// IsRunning reports whether the named VM is currently running. Probe
// failures count as not running.
func (m *Manager) IsRunning(ctx context.Context, name string) bool {
	running, err := m.ListRunning(ctx)
	if err != nil {
		return false
	}
	for _, vm := range running {
		if vm == name {
			return true
		}
	}
	return false
}

// Exists reports whether the named VM is registered.
func (m *Manager) Exists(ctx context.Context, name string) bool {
	vms, err := m.ListVMs(ctx)
	if err != nil {
		return false
	}
	for _, vm := range vms {
		if vm == name {
			return true
		}
	}
	return false
}

// Unregister removes a VM and deletes its files. A VM that is not
// registered is not an error.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	if !m.Exists(ctx, name) {
		m.logger.Info("VM is not registered, nothing to remove", "vm", name)
		return nil
	}
	m.logger.Info("unregistering VM", "vm", name)
	if _, err := m.vbox.Execute(ctx, "unregistervm", []string{name},
		command.ExecOpts{Hide: true}, command.F("delete", true)); err != nil {
		return fmt.Errorf("unregister VM %s: %w", name, err)
	}
	return nil
}

// Remove powers a VM off if needed, then unregisters and deletes it.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if m.IsRunning(ctx, name) {
		if err := m.PowerOff(ctx, name); err != nil {
			return err
		}
	}
	return m.Unregister(ctx, name)
}

// ForwardPort adds a NAT port-forwarding rule on the VM's first
// adapter.
func (m *Manager) ForwardPort(ctx context.Context, name, rule string, hostPort, guestPort int) error {
	value := fmt.Sprintf("%s,tcp,,%d,,%d", rule, hostPort, guestPort)
	if _, err := m.vbox.Execute(ctx, "modifyvm", []string{name},
		command.ExecOpts{Hide: true}, command.F("natpf1", value)); err != nil {
		return fmt.Errorf("forward port %d to VM %s: %w", hostPort, name, err)
	}
	return nil
}

// VMInfo returns the machine-readable VM details as a key/value map.
func (m *Manager) VMInfo(ctx context.Context, name string) (map[string]string, error) {
	res, err := m.vbox.Execute(ctx, "showvminfo", []string{name},
		command.ExecOpts{Hide: true},
		command.F("details", true), command.F("machinereadable", true))
	if err != nil {
		return nil, fmt.Errorf("show VM info for %s: %w", name, err)
	}

	info := make(map[string]string)
	for _, line := range strings.Split(res.Stdout, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		info[strings.Trim(key, `"`)] = strings.Trim(value, `"`)
	}
	return info, nil
}

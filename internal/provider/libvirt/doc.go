// SPDX-License-Identifier: MPL-2.0

// Package libvirt provisions VMs, networks, disks and snapshots through
// the libvirt command-line tools (virsh, virt-clone, virt-install,
// qemu-img). Every operation goes through a command.Executor so the
// active runtime decides where the tools actually run; this package
// never talks to a libvirt socket directly.
//
// Probe operations (is a VM running, does a network exist) report their
// answer as a value and swallow tool failures. Action operations
// (define, clone, attach) surface failures as errors.
package libvirt

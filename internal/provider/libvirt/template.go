// SPDX-License-Identifier: MPL-2.0

package libvirt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
	"boxman-cli/internal/config"
)

// Template first-boot defaults. The template VM boots once so cloud-init
// can run, then is shut off and used as a clone source.
const (
	defaultTemplateMemory  = 2048
	defaultTemplateVCPUs   = 2
	defaultTemplateVariant = "generic"
	defaultTemplateNetwork = "network=default,model=virtio"

	defaultBootTimeout      = 5 * time.Minute
	templateBootPollDefault = 10 * time.Second
)

// TemplateSpec describes a template VM imported from a cloud image.
type TemplateSpec struct {
	// Name is the libvirt domain name of the template.
	Name string
	// ImagePath is the source qcow2, typically a resolved OCI pull.
	ImagePath string
	// Workdir is the cluster workdir; staging files land under
	// <workdir>/.boxman/templates/<name>/.
	Workdir string

	Memory    int
	VCPUs     int
	OSVariant string
	Network   string
	CloudInit *config.CloudInit
}

// TemplateManager imports cloud images as reusable template VMs: stage
// the qcow2 into the workdir, build a NoCloud seed ISO, run
// virt-install --import, wait for first boot to settle, leave the
// domain shut off for cloning.
type TemplateManager struct {
	virsh       *command.Executor
	virtInstall *command.Executor
	shell       *command.Executor
	logger      *log.Logger

	bootTimeout  time.Duration
	pollInterval time.Duration
}

// TemplateOption configures a TemplateManager.
type TemplateOption func(*TemplateManager)

// WithBootTimeout bounds how long EnsureTemplate waits for the template
// VM to shut itself off after first boot.
func WithBootTimeout(d time.Duration) TemplateOption {
	return func(t *TemplateManager) { t.bootTimeout = d }
}

// WithBootPollInterval sets the domstate polling interval.
func WithBootPollInterval(d time.Duration) TemplateOption {
	return func(t *TemplateManager) { t.pollInterval = d }
}

// NewTemplateManager creates a template manager. The shell executor
// runs rsync for image staging.
func NewTemplateManager(virsh, virtInstall, shell *command.Executor, logger *log.Logger, opts ...TemplateOption) *TemplateManager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	t := &TemplateManager{
		virsh:        virsh,
		virtInstall:  virtInstall,
		shell:        shell,
		logger:       logger,
		bootTimeout:  defaultBootTimeout,
		pollInterval: templateBootPollDefault,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Exists probes whether a domain with the given name is defined.
func (t *TemplateManager) Exists(ctx context.Context, name string) bool {
	res, err := t.virsh.Execute(ctx, "list", nil,
		command.ExecOpts{Hide: true, Warn: true},
		command.F("all", true), command.F("name", true))
	if err != nil || !res.OK() {
		return false
	}
	return contains(splitNonEmptyLines(res.Stdout), name)
}

// EnsureTemplate creates the template VM unless it already exists.
// With force set an existing template is destroyed and recreated.
func (t *TemplateManager) EnsureTemplate(ctx context.Context, spec TemplateSpec, force bool) error {
	if t.Exists(ctx, spec.Name) {
		if !force {
			t.logger.Info("template already exists, skipping", "name", spec.Name)
			return nil
		}
		t.logger.Warn("recreating existing template", "name", spec.Name)
		t.virsh.Execute(ctx, "destroy", []string{spec.Name}, command.ExecOpts{Hide: true, Warn: true})
		t.virsh.Execute(ctx, "undefine", []string{spec.Name},
			command.ExecOpts{Hide: true, Warn: true}, command.F("remove_all_storage", true))
	}

	stageDir := filepath.Join(spec.Workdir, ".boxman", "templates", spec.Name)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return fmt.Errorf("create template workdir: %w", err)
	}

	diskPath, err := t.stageImage(ctx, spec.ImagePath, stageDir)
	if err != nil {
		return err
	}

	seedPath := filepath.Join(stageDir, spec.Name+"-seed.iso")
	if err := WriteSeedISO(seedPath, spec.Name, spec.CloudInit); err != nil {
		return fmt.Errorf("build template seed iso: %w", err)
	}

	memory := spec.Memory
	if memory <= 0 {
		memory = defaultTemplateMemory
	}
	vcpus := spec.VCPUs
	if vcpus <= 0 {
		vcpus = defaultTemplateVCPUs
	}

	t.logger.Info("importing template VM", "name", spec.Name, "disk", diskPath)
	if _, err := t.virtInstall.Execute(ctx, "", nil, command.ExecOpts{},
		command.F("name", spec.Name),
		command.F("memory", memory),
		command.F("vcpus", vcpus),
		command.F("os_variant", stringOr(spec.OSVariant, defaultTemplateVariant)),
		command.F("import", true),
		command.F("disk", fmt.Sprintf("path=%s,format=%s,bus=virtio", diskPath, diskFormat)),
		command.F("disk", fmt.Sprintf("path=%s,device=cdrom", seedPath)),
		command.F("network", stringOr(spec.Network, defaultTemplateNetwork)),
		command.F("graphics", "none"),
		command.F("noautoconsole", true)); err != nil {
		return fmt.Errorf("import template %s: %w", spec.Name, err)
	}

	if err := t.waitForShutoff(ctx, spec.Name); err != nil {
		return err
	}
	t.logger.Info("template ready", "name", spec.Name)
	return nil
}

// stageImage copies the source qcow2 into the staging directory with a
// sparse-aware rsync, falling back to a plain copy. Returns the staged
// path, or the source itself when it already lives there.
func (t *TemplateManager) stageImage(ctx context.Context, src, destDir string) (string, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", fmt.Errorf("resolve image path %s: %w", src, err)
	}
	if !isFile(absSrc) {
		return "", fmt.Errorf("base image not found: %s", absSrc)
	}

	base := filepath.Base(absSrc)
	if ext := filepath.Ext(base); ext == ".img" {
		base = base[:len(base)-len(ext)] + "." + diskFormat
	}
	dest := filepath.Join(destDir, base)
	if absSrc == dest {
		return dest, nil
	}

	t.logger.Info("staging base image", "src", absSrc, "dest", dest)
	cmdline := fmt.Sprintf("rsync --sparse %s %s", absSrc, dest)
	res, err := t.shell.ExecuteShell(ctx, cmdline, command.ExecOpts{Hide: true, Warn: true})
	if err != nil || !res.OK() {
		if err := copyFile(absSrc, dest); err != nil {
			return "", fmt.Errorf("stage base image: %w", err)
		}
	}
	return dest, nil
}

// waitForShutoff polls domstate until the template powers itself off
// after cloud-init, issuing a graceful shutdown on timeout.
func (t *TemplateManager) waitForShutoff(ctx context.Context, name string) error {
	deadline := time.Now().Add(t.bootTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.pollInterval):
		}

		res, err := t.virsh.Execute(ctx, "domstate", []string{name},
			command.ExecOpts{Hide: true, Warn: true})
		if err == nil && res.OK() && contains(splitNonEmptyLines(res.Stdout), "shut off") {
			return nil
		}
		t.logger.Debug("waiting for template first boot", "name", name)
	}

	t.logger.Info("first-boot timeout reached, shutting template down", "name", name)
	if _, err := t.virsh.Execute(ctx, "shutdown", []string{name},
		command.ExecOpts{Hide: true, Warn: true}); err != nil {
		return fmt.Errorf("shut down template %s: %w", name, err)
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

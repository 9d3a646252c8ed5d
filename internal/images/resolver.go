// SPDX-License-Identifier: MPL-2.0

package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"boxman-cli/internal/command"
	"boxman-cli/internal/provider"
)

// OCIPrefix marks a base_image value as an OCI artifact reference.
const OCIPrefix = "oci://"

const maxRefPrefixLen = 60

// Kind classifies how a resolved base image is consumed.
type Kind string

const (
	// KindHypervisorVM means base_image names an existing VM to clone.
	KindHypervisorVM Kind = "hypervisor-vm"
	// KindLocalQCOW2 means base_image resolved to a cached disk image.
	KindLocalQCOW2 Kind = "local-qcow2"
)

// Resolved is the structured form of a cluster's base_image.
type Resolved struct {
	Kind Kind

	// SrcVMName is set for KindHypervisorVM.
	SrcVMName string

	// The remaining fields are set for KindLocalQCOW2.
	QCOW2Path    string
	MetadataPath string
	Ref          string
	Metadata     *Metadata
}

// NewOras builds an executor for oras CLI invocations.
func NewOras(cfg *provider.Config, wrapper command.Wrapper, logger *log.Logger) *command.Executor {
	return command.New(cfg, wrapper, logger,
		command.WithTool(cfg.Tool("oras")))
}

// Resolver turns base_image references into local artifacts.
type Resolver struct {
	cacheDir string
	oras     *command.Executor
	logger   *log.Logger
}

// NewResolver creates a resolver caching OCI pulls under cacheDir.
func NewResolver(cacheDir string, oras *command.Executor, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{cacheDir: cacheDir, oras: oras, logger: logger}
}

// Resolve maps a base_image value to its consumable form. OCI
// references are pulled into the cache once; subsequent resolutions
// reuse the cached qcow2. Anything else is treated as the name of an
// existing hypervisor VM.
func (r *Resolver) Resolve(ctx context.Context, baseImage string) (*Resolved, error) {
	baseImage = strings.TrimSpace(baseImage)
	if baseImage == "" {
		return nil, fmt.Errorf("base_image must be a non-empty string")
	}

	if !strings.HasPrefix(baseImage, OCIPrefix) {
		return &Resolved{Kind: KindHypervisorVM, SrcVMName: baseImage}, nil
	}

	ref := strings.TrimSpace(strings.TrimPrefix(baseImage, OCIPrefix))
	if ref == "" {
		return nil, fmt.Errorf("OCI base_image must be of the form oci://<registry>/<repo>:<tag>")
	}

	dir, err := r.refCacheDir(ref)
	if err != nil {
		return nil, err
	}

	qcow2, metaPath := findPulledFiles(dir)
	if qcow2 == "" {
		r.logger.Info("pulling base image", "ref", ref, "cache", dir)
		if _, err := r.oras.Execute(ctx, "pull", []string{ref},
			command.ExecOpts{Hide: true}, command.F("output", dir)); err != nil {
			return nil, fmt.Errorf("pull OCI image %s: %w", ref, err)
		}
		qcow2, metaPath = findPulledFiles(dir)
	}
	if qcow2 == "" {
		return nil, fmt.Errorf("OCI image %s pulled to %s, but no qcow2 was found", ref, dir)
	}

	meta, err := LoadMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	return &Resolved{
		Kind:         KindLocalQCOW2,
		QCOW2Path:    qcow2,
		MetadataPath: metaPath,
		Ref:          ref,
		Metadata:     meta,
	}, nil
}

// refCacheDir returns a stable per-reference cache directory, creating
// it if needed. The name keeps a readable prefix of the reference and
// appends a short hash to avoid collisions and path-unsafe characters.
func (r *Resolver) refCacheDir(ref string) (string, error) {
	sum := sha256.Sum256([]byte(ref))
	digest := hex.EncodeToString(sum[:])[:20]

	var b strings.Builder
	for _, ch := range ref {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9',
			ch == '-', ch == '_', ch == '.':
			b.WriteRune(ch)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxRefPrefixLen {
			break
		}
	}

	dir := filepath.Join(r.cacheDir, "oci", b.String()+"__"+digest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image cache directory: %w", err)
	}
	return dir, nil
}

// findPulledFiles locates the qcow2 blob and optional vmimage.json in
// a pulled artifact directory. disk.qcow2 wins over other candidates.
func findPulledFiles(dir string) (qcow2, metadata string) {
	preferred := filepath.Join(dir, "disk.qcow2")
	if isFile(preferred) {
		qcow2 = preferred
	} else {
		candidates, _ := filepath.Glob(filepath.Join(dir, "*.qcow2"))
		sort.Strings(candidates)
		if len(candidates) > 0 {
			qcow2 = candidates[0]
		}
	}

	metaPath := filepath.Join(dir, "vmimage.json")
	if isFile(metaPath) {
		metadata = metaPath
	}
	return qcow2, metadata
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvComposeFile names the environment variable that overrides
	// compose descriptor resolution.
	EnvComposeFile = "BOXMAN_COMPOSE_FILE"

	// stateDirName is the per-project state directory holding deployed
	// runtime assets, created next to boxman.yml.
	stateDirName = ".boxman"
)

// ComposeFilePath resolves the compose descriptor to use.
//
// Resolution order:
//  1. The explicit path from configuration.
//  2. The BOXMAN_COMPOSE_FILE environment variable.
//  3. Bundled assets, deployed to .boxman/runtime/docker/ inside the
//     project directory.
//
// Explicitly configured paths that do not exist are an error rather
// than a fallthrough, so a typo never silently starts the bundled
// environment.
func (r *ComposeRuntime) ComposeFilePath() (string, error) {
	if r.opts.ComposeFile != "" {
		path := expandUser(r.opts.ComposeFile)
		if isFile(path) {
			return filepath.Abs(path)
		}
		return "", &ComposeFileNotFoundError{Path: path, Source: "configuration"}
	}

	if envPath := os.Getenv(EnvComposeFile); envPath != "" {
		path := expandUser(envPath)
		if isFile(path) {
			return filepath.Abs(path)
		}
		return "", &ComposeFileNotFoundError{Path: path, Source: EnvComposeFile}
	}

	deployed, err := r.deployBundledAssets()
	if err != nil {
		return "", err
	}
	if deployed != "" {
		return deployed, nil
	}
	return "", &ComposeFileNotFoundError{}
}

// runtimeAssetDir returns .boxman/runtime/docker/ inside the project
// directory.
func (r *ComposeRuntime) runtimeAssetDir() string {
	return filepath.Join(r.projectDir(), stateDirName, "runtime", "docker")
}

// deployBundledAssets copies the embedded docker assets into the
// project's runtime directory. An existing deployment is reused so that
// user edits to the descriptor survive.
func (r *ComposeRuntime) deployBundledAssets() (string, error) {
	localDir := r.runtimeAssetDir()
	localCompose := filepath.Join(localDir, "docker-compose.yml")

	if isFile(localCompose) {
		r.logger.Info("using existing runtime assets", "dir", localDir)
		return localCompose, nil
	}

	r.logger.Info("deploying bundled docker assets", "dir", localDir)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", fmt.Errorf("create runtime dir: %w", err)
	}

	entries, err := bundledAssets.ReadDir(bundledAssetRoot)
	if err != nil {
		return "", fmt.Errorf("read bundled assets: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := bundledAssets.ReadFile(bundledAssetRoot + "/" + entry.Name())
		if err != nil {
			return "", fmt.Errorf("read bundled asset %s: %w", entry.Name(), err)
		}
		dst := filepath.Join(localDir, entry.Name())
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return "", fmt.Errorf("write runtime asset %s: %w", dst, err)
		}
	}

	return localCompose, nil
}

// collectBindMountDirs returns the unique absolute directories that
// must be bind-mounted into the container: the project directory, /tmp
// so host-side temp files (e.g. XML fed to virsh define) are reachable,
// and every configured workdir. The result is sorted for deterministic
// descriptor edits.
func (r *ComposeRuntime) collectBindMountDirs(absProjectDir string) []string {
	seen := map[string]struct{}{
		absProjectDir: {},
		"/tmp":        {},
	}
	for _, wd := range r.opts.Workdirs {
		abs, err := filepath.Abs(wd)
		if err != nil {
			abs = wd
		}
		seen[abs] = struct{}{}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// injectBindMounts adds dir:dir volume entries for each bind dir to the
// first service in the compose descriptor, skipping entries whose
// host-side source is already mounted. The file is rewritten only when
// something was added.
func (r *ComposeRuntime) injectBindMounts(composePath string, bindDirs []string) error {
	data, err := os.ReadFile(composePath)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", composePath, err)
	}
	if len(doc.Content) == 0 {
		return fmt.Errorf("parse %s: empty document", composePath)
	}
	root := doc.Content[0]

	services := mappingValue(root, "services")
	if services == nil || len(services.Content) < 2 {
		r.logger.Warn("no services found in compose descriptor", "path", composePath)
		return nil
	}
	// First (and typically only) service.
	service := services.Content[1]

	volumes := mappingValue(service, "volumes")
	if volumes == nil {
		volumes = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		service.Content = append(service.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "volumes"},
			volumes)
	}

	existing := map[string]struct{}{}
	for _, vol := range volumes.Content {
		if vol.Kind == yaml.ScalarNode && strings.Contains(vol.Value, ":") {
			existing[strings.SplitN(vol.Value, ":", 2)[0]] = struct{}{}
		}
	}

	var added []string
	for _, d := range bindDirs {
		if _, ok := existing[d]; ok {
			continue
		}
		entry := d + ":" + d
		volumes.Content = append(volumes.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: entry})
		added = append(added, entry)
	}

	if len(added) == 0 {
		r.logger.Info("all bind-mount dirs already present in compose descriptor")
		return nil
	}
	r.logger.Info("injecting bind mounts into compose descriptor",
		"path", composePath, "mounts", added)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", composePath, err)
	}
	return os.WriteFile(composePath, out, 0o644)
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// writeEnvFile rewrites the .env next to the compose descriptor with
// the current absolute paths and host identity. It is rewritten on
// every EnsureReady so moved project directories never leave stale
// paths behind.
func (r *ComposeRuntime) writeEnvFile(runtimeDir, absProjectDir string) error {
	absDataDir, err := filepath.Abs(filepath.Join(runtimeDir, "data"))
	if err != nil {
		absDataDir = filepath.Join(runtimeDir, "data")
	}

	instanceName := "default"
	if r.opts.ProjectName != "" {
		instanceName = sanitizeProjectName(r.opts.ProjectName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "BOXMAN_INSTANCE_NAME=%s\n", instanceName)
	fmt.Fprintf(&b, "BOXMAN_DATA_DIR=%s\n", absDataDir)
	fmt.Fprintf(&b, "BOXMAN_PROJECT_DIR=%s\n", absProjectDir)
	fmt.Fprintf(&b, "BOXMAN_SSH_PORT=2222\n")
	fmt.Fprintf(&b, "BOXMAN_LIBVIRT_TCP_PORT=16509\n")
	fmt.Fprintf(&b, "BOXMAN_LIBVIRT_TLS_PORT=16514\n")
	fmt.Fprintf(&b, "HOST_UID=%d\n", os.Getuid())
	fmt.Fprintf(&b, "HOST_GID=%d\n", os.Getgid())

	envPath := filepath.Join(runtimeDir, ".env")
	if err := os.WriteFile(envPath, []byte(b.String()), 0o644); err != nil {
		return err
	}
	r.logger.Debug("wrote runtime env file",
		"path", envPath, "project_dir", absProjectDir, "data_dir", absDataDir)
	return nil
}

// expandUser replaces a leading ~ with the user's home directory.
func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// isFile reports whether path exists and is a regular file.
func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

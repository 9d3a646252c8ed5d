// SPDX-License-Identifier: EPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigNotFoundId Id = iota + 1
	ConfigParseErrorId
	UnknownRuntimeId
	RuntimeNotReadyId
	ContainerEngineNotFoundId
	ComposeFileNotFoundId
	ToolNotFoundId
	BaseImageNotFoundId
	ClusterNotFoundId
	SnapshotNotFoundId
	NetworkConflictId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configNotFoundIssue = &Issue{
		id: ConfigNotFoundId,
		mdMsg: `
# No boxman.yml found!

We searched for a project configuration but couldn't find one in the
expected locations.

## Search locations (in order of precedence):
1. Path given with --config
2. Current directory
3. Parent directories up to the filesystem root

## Things you can try:
- Create a minimal project file in your project directory:
~~~yaml
project: mylab
provider:
  name: libvirt
clusters:
  default:
    base_image: fedora-base
    vms:
      node1: {}
~~~

- Or point boxman at an existing one:
~~~
$ boxman --config /path/to/boxman.yml up
~~~`,
	}

	configParseErrorIssue = &Issue{
		id: ConfigParseErrorId,
		mdMsg: `
# Failed to parse boxman.yml!

Your project file contains syntax errors or invalid configuration.

## Common issues:
- Invalid YAML syntax (bad indentation, missing colons)
- Unknown field names
- Invalid values for known fields
- Missing required fields (project name, cluster base image)

## Things you can try:
- Check the error message above for the specific line/column
- Validate the YAML with any YAML linter
- Run with verbose mode for more details:
~~~
$ boxman --verbose up
~~~`,
	}

	unknownRuntimeIssue = &Issue{
		id: UnknownRuntimeId,
		mdMsg: `
# Unknown runtime!

The runtime named in your configuration is not recognized.

## Valid runtimes:
- **local**: run provider tools directly on this host
- **docker** / **docker-compose**: run provider tools inside a managed
  service container

## Example:
~~~yaml
runtime:
  name: docker-compose
  ready_timeout: 120
~~~`,
	}

	runtimeNotReadyIssue = &Issue{
		id: RuntimeNotReadyId,
		mdMsg: `
# Runtime did not become ready!

The managed runtime container was started but did not reach a usable
state before the deadline.

## Common causes:
- The container image is still building or pulling
- libvirtd failed to start inside the container
- The ready timeout is too short for this machine

## Things you can try:
- Inspect the container logs:
~~~
$ docker logs boxman-libvirt-<project>
~~~

- Raise the timeout in boxman.yml:
~~~yaml
runtime:
  ready_timeout: 300
~~~

- Tear the runtime down and start fresh:
~~~
$ boxman runtime destroy
$ boxman up
~~~`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not found!

The docker-compose runtime needs Docker with the compose plugin, but it
is not available on this host.

## Things you can try:
- Install Docker:
  - https://docs.docker.com/get-docker/

- Verify the compose plugin:
~~~
$ docker compose version
~~~

- Or use the local runtime instead:
~~~yaml
runtime:
  name: local
~~~`,
	}

	composeFileNotFoundIssue = &Issue{
		id: ComposeFileNotFoundId,
		mdMsg: `
# Compose file not found!

A compose file was configured explicitly but does not exist on disk.

## Resolution order:
1. The path set in boxman.yml under runtime.compose_file
2. The BOXMAN_COMPOSE_FILE environment variable
3. The bundled descriptor, deployed to .boxman/runtime/docker/

## Things you can try:
- Fix the configured path, or remove it to fall back to the bundled
  descriptor
- Check the environment:
~~~
$ echo $BOXMAN_COMPOSE_FILE
~~~`,
	}

	toolNotFoundIssue = &Issue{
		id: ToolNotFoundId,
		mdMsg: `
# Provider tool not found!

A required provider tool (virsh, virt-clone, qemu-img, vboxmanage, ...)
was not found in PATH.

## Things you can try:
- Install the provider's client tools:
  - libvirt: ` + "`sudo dnf install libvirt-client virt-install`" + `
  - VirtualBox: https://www.virtualbox.org/wiki/Downloads

- Or point boxman at a custom location:
~~~yaml
provider:
  tool_paths:
    virsh: /opt/libvirt/bin/virsh
~~~

- Or use the docker-compose runtime, which ships the tools inside the
  service container`,
	}

	baseImageNotFoundIssue = &Issue{
		id: BaseImageNotFoundId,
		mdMsg: `
# Base image not found!

The base image referenced by the cluster is neither a defined domain
nor a local disk image.

## Things you can try:
- Pull the image from a registry first:
~~~
$ boxman image pull ghcr.io/example/fedora-base:latest
~~~

- Or define the base domain with your provider tools before running
  boxman up
- Check the base_image value in boxman.yml for typos`,
	}

	clusterNotFoundIssue = &Issue{
		id: ClusterNotFoundId,
		mdMsg: `
# Cluster not found!

The cluster name you specified is not defined in boxman.yml.

## Things you can try:
- List the clusters your project defines:
~~~
$ grep -A1 'clusters:' boxman.yml
~~~

- Check for typos in the cluster name
- Omit the cluster argument to operate on all clusters`,
	}

	snapshotNotFoundIssue = &Issue{
		id: SnapshotNotFoundId,
		mdMsg: `
# Snapshot not found!

The named snapshot does not exist for this virtual machine.

## Things you can try:
- List existing snapshots:
~~~
$ boxman snapshot list
~~~

- Check for typos in the snapshot name
- Take the snapshot first:
~~~
$ boxman snapshot take <name>
~~~`,
	}

	networkConflictIssue = &Issue{
		id: NetworkConflictId,
		mdMsg: `
# Network conflict!

A network or bridge with the requested name already exists but does not
match the desired definition.

## Things you can try:
- Destroy the stale network:
~~~
$ virsh net-destroy <name> && virsh net-undefine <name>
~~~

- Rename the network in boxman.yml
- Run a full teardown and re-provision:
~~~
$ boxman destroy && boxman up
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

You don't have permission to perform this operation.

## Common causes:
- The hypervisor socket requires elevated privileges
- The container engine requires membership in the docker group
- The project directory is not writable

## Things you can try:
- Enable sudo for provider tools:
~~~yaml
provider:
  use_sudo: true
~~~

- For containers, ensure you're in the docker group:
~~~
$ sudo usermod -aG docker $USER
~~~

- Run boxman from a directory you own`,
	}

	issues = map[Id]*Issue{
		configNotFoundIssue.Id():          configNotFoundIssue,
		configParseErrorIssue.Id():        configParseErrorIssue,
		unknownRuntimeIssue.Id():          unknownRuntimeIssue,
		runtimeNotReadyIssue.Id():         runtimeNotReadyIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		composeFileNotFoundIssue.Id():     composeFileNotFoundIssue,
		toolNotFoundIssue.Id():            toolNotFoundIssue,
		baseImageNotFoundIssue.Id():       baseImageNotFoundIssue,
		clusterNotFoundIssue.Id():         clusterNotFoundIssue,
		snapshotNotFoundIssue.Id():        snapshotNotFoundIssue,
		networkConflictIssue.Id():         networkConflictIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}

// SPDX-License-Identifier: MPL-2.0

// Package runtime controls where provider commands execute.
//
// A Runtime wraps provider command lines so they run in the right
// place: the local runtime is a pass-through to the host shell, while
// the docker-compose runtime starts a managed service container and
// rewrites commands into docker exec invocations targeting it.
//
// Runtimes are not safe for concurrent use by multiple processes
// operating on the same project directory; a single writer at a time
// is assumed.
package runtime

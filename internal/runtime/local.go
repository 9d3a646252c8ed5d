// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"

	"boxman-cli/internal/provider"
)

// LocalRuntime executes provider commands directly on the host.
type LocalRuntime struct{}

// Name implements Runtime.
func (r *LocalRuntime) Name() string { return Local }

// WrapCommand implements Runtime. Commands run on the host unchanged.
func (r *LocalRuntime) WrapCommand(command string) string { return command }

// EnsureReady implements Runtime. The host needs no preparation.
func (r *LocalRuntime) EnsureReady(ctx context.Context) error { return nil }

// InjectProviderConfig implements Runtime.
func (r *LocalRuntime) InjectProviderConfig(cfg *provider.Config) *provider.Config {
	out := cfg.Clone()
	out.Runtime = Local
	return out
}

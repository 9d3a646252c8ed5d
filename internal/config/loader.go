// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific config file when set.
	ConfigFilePath string
	// ConfigDirPath overrides the config directory lookup when set.
	ConfigDirPath string
}

// Loader loads application configuration from explicit options.
type Loader interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type fileLoader struct{}

// NewLoader creates a configuration loader.
func NewLoader() Loader {
	return &fileLoader{}
}

// Load reads configuration from the requested source.
func (l *fileLoader) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

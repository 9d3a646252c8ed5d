// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// RuntimeLocal runs provider tools directly on the host.
	RuntimeLocal RuntimeName = "local"
	// RuntimeDocker runs provider tools inside the managed compose
	// container.
	RuntimeDocker RuntimeName = "docker"
	// RuntimeDockerCompose is the long form of RuntimeDocker.
	RuntimeDockerCompose RuntimeName = "docker-compose"

	// ProviderLibvirt provisions through libvirt/QEMU.
	ProviderLibvirt ProviderName = "libvirt"
	// ProviderVirtualBox provisions through VBoxManage.
	ProviderVirtualBox ProviderName = "virtualbox"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidRuntimeName is returned when a RuntimeName value is not recognized.
	ErrInvalidRuntimeName = errors.New("invalid runtime name")
	// ErrInvalidProviderName is returned when a ProviderName value is not recognized.
	ErrInvalidProviderName = errors.New("invalid provider name")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
)

type (
	// RuntimeName selects where provider commands execute.
	RuntimeName string

	// InvalidRuntimeNameError is returned when a RuntimeName value is not
	// recognized. It wraps ErrInvalidRuntimeName for errors.Is() compatibility.
	InvalidRuntimeNameError struct {
		Value RuntimeName
	}

	// ProviderName selects the virtualization provider.
	ProviderName string

	// InvalidProviderNameError is returned when a ProviderName value is not
	// recognized. It wraps ErrInvalidProviderName for errors.Is() compatibility.
	InvalidProviderNameError struct {
		Value ProviderName
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not
	// recognized. It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// UIConfig holds terminal presentation settings.
	UIConfig struct {
		ColorScheme ColorScheme `mapstructure:"color_scheme" yaml:"color_scheme"`
		Verbose     bool        `mapstructure:"verbose" yaml:"verbose"`
	}

	// ProviderDefaults holds user-wide provider preferences applied when
	// a project does not override them.
	ProviderDefaults struct {
		Name      ProviderName      `mapstructure:"name" yaml:"name"`
		UseSudo   bool              `mapstructure:"use_sudo" yaml:"use_sudo"`
		URI       string            `mapstructure:"uri" yaml:"uri"`
		ToolPaths map[string]string `mapstructure:"tool_paths" yaml:"tool_paths"`
	}

	// Config is the application-wide configuration.
	Config struct {
		DefaultRuntime RuntimeName      `mapstructure:"default_runtime" yaml:"default_runtime"`
		Provider       ProviderDefaults `mapstructure:"provider" yaml:"provider"`
		ImageCacheDir  string           `mapstructure:"image_cache_dir" yaml:"image_cache_dir"`
		UI             UIConfig         `mapstructure:"ui" yaml:"ui"`
	}
)

// Validate checks that the runtime name is one of the known values.
func (r RuntimeName) Validate() error {
	switch r {
	case RuntimeLocal, RuntimeDocker, RuntimeDockerCompose:
		return nil
	default:
		return &InvalidRuntimeNameError{Value: r}
	}
}

// Error implements the error interface.
func (e *InvalidRuntimeNameError) Error() string {
	return fmt.Sprintf("invalid runtime name %q (valid: %s, %s, %s)",
		e.Value, RuntimeLocal, RuntimeDocker, RuntimeDockerCompose)
}

// Unwrap returns ErrInvalidRuntimeName for use with errors.Is.
func (e *InvalidRuntimeNameError) Unwrap() error { return ErrInvalidRuntimeName }

// Validate checks that the provider name is one of the known values.
func (p ProviderName) Validate() error {
	switch p {
	case ProviderLibvirt, ProviderVirtualBox:
		return nil
	default:
		return &InvalidProviderNameError{Value: p}
	}
}

// Error implements the error interface.
func (e *InvalidProviderNameError) Error() string {
	return fmt.Sprintf("invalid provider name %q (valid: %s, %s)",
		e.Value, ProviderLibvirt, ProviderVirtualBox)
}

// Unwrap returns ErrInvalidProviderName for use with errors.Is.
func (e *InvalidProviderNameError) Unwrap() error { return ErrInvalidProviderName }

// Validate checks that the color scheme is one of the known values.
func (c ColorScheme) Validate() error {
	switch c {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return &InvalidColorSchemeError{Value: c}
	}
}

// Error implements the error interface.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: %s, %s, %s)",
		e.Value, ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight)
}

// Unwrap returns ErrInvalidColorScheme for use with errors.Is.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		DefaultRuntime: RuntimeLocal,
		Provider: ProviderDefaults{
			Name: ProviderLibvirt,
			URI:  "qemu:///system",
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}

// Validate checks the whole application config.
func (c *Config) Validate() error {
	if err := c.DefaultRuntime.Validate(); err != nil {
		return err
	}
	if err := c.Provider.Name.Validate(); err != nil {
		return err
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		return err
	}
	for tool, path := range c.Provider.ToolPaths {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("tool path for %q is empty", tool)
		}
	}
	return nil
}

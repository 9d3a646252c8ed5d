// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"testing"
)

func TestRuntimeNameValidate(t *testing.T) {
	tests := []struct {
		name    string
		value   RuntimeName
		wantErr bool
	}{
		{"local", RuntimeLocal, false},
		{"docker", RuntimeDocker, false},
		{"docker-compose", RuntimeDockerCompose, false},
		{"unknown", RuntimeName("vagrant"), true},
		{"empty", RuntimeName(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRuntimeName) {
					t.Errorf("Validate() error = %v, want ErrInvalidRuntimeName", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestProviderNameValidate(t *testing.T) {
	tests := []struct {
		name    string
		value   ProviderName
		wantErr bool
	}{
		{"libvirt", ProviderLibvirt, false},
		{"virtualbox", ProviderVirtualBox, false},
		{"unknown", ProviderName("hyperv"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProviderName) {
					t.Errorf("Validate() error = %v, want ErrInvalidProviderName", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestColorSchemeValidate(t *testing.T) {
	for _, valid := range []ColorScheme{ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight} {
		if err := valid.Validate(); err != nil {
			t.Errorf("Validate(%q) error = %v", valid, err)
		}
	}
	if err := ColorScheme("neon").Validate(); !errors.Is(err, ErrInvalidColorScheme) {
		t.Errorf("Validate() error = %v, want ErrInvalidColorScheme", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DefaultRuntime != RuntimeLocal {
		t.Errorf("DefaultRuntime = %q", cfg.DefaultRuntime)
	}
	if cfg.Provider.Name != ProviderLibvirt {
		t.Errorf("Provider.Name = %q", cfg.Provider.Name)
	}
	if cfg.Provider.URI != "qemu:///system" {
		t.Errorf("Provider.URI = %q", cfg.Provider.URI)
	}
	if cfg.UI.ColorScheme != ColorSchemeAuto {
		t.Errorf("UI.ColorScheme = %q", cfg.UI.ColorScheme)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigValidateRejectsEmptyToolPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.ToolPaths = map[string]string{"virsh": "  "}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for empty tool path")
	}
}

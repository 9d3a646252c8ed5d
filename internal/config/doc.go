// SPDX-License-Identifier: MPL-2.0

// Package config handles the two configuration layers of boxman.
//
// The application config is loaded with Viper from
// ~/.config/boxman/config.yaml (or the XDG equivalent on Linux,
// ~/Library/Application Support/boxman/config.yaml on macOS,
// %APPDATA%\boxman\config.yaml on Windows) and holds user-wide
// preferences: default runtime, sudo usage, tool paths, UI settings.
//
// The project config is the boxman.yml found in (or above) the working
// directory. It describes what to provision: clusters of virtual
// machines, their networks, disks and the runtime used to reach the
// hypervisor.
package config

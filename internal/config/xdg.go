// SPDX-License-Identifier: GPL-3.0-only

// Package config loads the daemon configuration file and resolves XDG paths.
package config

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "ambient-brightness"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), AppName, "config.toml")
}

// DefaultProfilePath returns the default calibration profile path.
func DefaultProfilePath() string {
	return filepath.Join(XDGDataHome(), AppName, "ambient_light_profile.json")
}

// DefaultHistoryPath returns the default path for the cycle history database.
func DefaultHistoryPath() string {
	return filepath.Join(XDGDataHome(), AppName, "history.db")
}

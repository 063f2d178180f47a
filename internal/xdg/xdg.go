// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package xdg provides XDG Base Directory paths for hotbridge.
package xdg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const appName = "hotbridge"

// ConfigFileName is the default configuration file inside ConfigDir.
const ConfigFileName = "config.yaml"

var errNoHome = errors.New("neither the XDG variable nor HOME is set")

func base(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return dir, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("%s: %w", env, errNoHome)
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// ConfigDir returns the XDG config directory for hotbridge.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	dir, err := base("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ConfigFile returns the default configuration file path. The file may not exist.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

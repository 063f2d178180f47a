// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package bridge

import (
	"os"
	"strings"

	"github.com/samber/oops"

	"github.com/hotbridge/hotbridge/internal/reclaim"
)

// Defaults for Config.
const (
	DefaultPluginSegment   = "Plugins"
	DefaultManagedDir      = "Managed"
	DefaultFrameworkModule = "Framework"
)

// DefaultModulePatterns are the file name patterns scanned for modules.
var DefaultModulePatterns = []string{"*.wasm", "*.lua"}

// Config controls module discovery and unloading.
type Config struct {
	// ManagedRoot is the directory scanned for modules. When empty it is
	// derived from InstallPath.
	ManagedRoot string
	// InstallPath is the bridge's install location; the executable path when empty.
	InstallPath string
	// PluginSegment marks where the install path is cut to derive the managed root.
	PluginSegment string
	// ManagedDir replaces the install path from PluginSegment on.
	ManagedDir string
	// FrameworkModule names the framework module plugins depend on.
	FrameworkModule string
	// ModulePatterns are base name patterns of module files.
	ModulePatterns []string
	// WarnAfter and GiveUpAfter are the unload attempt thresholds.
	WarnAfter   int
	GiveUpAfter int
}

func (c Config) withDefaults() Config {
	if c.PluginSegment == "" {
		c.PluginSegment = DefaultPluginSegment
	}
	if c.ManagedDir == "" {
		c.ManagedDir = DefaultManagedDir
	}
	if c.FrameworkModule == "" {
		c.FrameworkModule = DefaultFrameworkModule
	}
	if len(c.ModulePatterns) == 0 {
		c.ModulePatterns = DefaultModulePatterns
	}
	if c.WarnAfter <= 0 {
		c.WarnAfter = reclaim.DefaultWarnAfter
	}
	if c.GiveUpAfter <= 0 {
		c.GiveUpAfter = reclaim.DefaultGiveUpAfter
	}
	return c
}

// Root returns the directory scanned for modules.
func (c Config) Root() (string, error) {
	c = c.withDefaults()
	if c.ManagedRoot != "" {
		return c.ManagedRoot, nil
	}

	install := c.InstallPath
	if install == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", oops.Code("MANAGED_ROOT_UNRESOLVED").Wrap(err)
		}
		install = exe
	}
	return DeriveManagedRoot(install, c.PluginSegment, c.ManagedDir)
}

// DeriveManagedRoot replaces everything in install from the first occurrence
// of segment with managed.
func DeriveManagedRoot(install, segment, managed string) (string, error) {
	i := strings.Index(install, segment)
	if i < 0 {
		return "", oops.Code("MANAGED_ROOT_UNRESOLVED").
			With("install_path", install).
			With("segment", segment).
			Errorf("install path %q does not contain %q", install, segment)
	}
	return install[:i] + managed, nil
}

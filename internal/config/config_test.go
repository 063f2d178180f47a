// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotbridge/hotbridge/internal/config"
	"github.com/hotbridge/hotbridge/pkg/errutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", false, nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_FlagDefaultsMatchDefault(t *testing.T) {
	cfg, err := config.Load("", false, flags(t))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
managed-root: /srv/game/Managed
framework-module: Engine
module-patterns: ["*.lua"]
checksum: 42
warn-after: 10
give-up-after: 20
log-format: text
debounce: 1s
`)

	cfg, err := config.Load(path, false, flags(t))
	require.NoError(t, err)

	assert.Equal(t, "/srv/game/Managed", cfg.ManagedRoot)
	assert.Equal(t, "Engine", cfg.FrameworkModule)
	assert.Equal(t, []string{"*.lua"}, cfg.ModulePatterns)
	assert.Equal(t, int32(42), cfg.Checksum)
	assert.Equal(t, 10, cfg.WarnAfter)
	assert.Equal(t, 20, cfg.GiveUpAfter)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.Equal(t, "Plugins", cfg.PluginSegment, "keys missing from the file keep their defaults")
}

func TestLoad_ChangedFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "checksum: 42\nframework-module: Engine\n")

	cfg, err := config.Load(path, false, flags(t, "--checksum=7", "--module-patterns=*.wasm"))
	require.NoError(t, err)

	assert.Equal(t, int32(7), cfg.Checksum)
	assert.Equal(t, []string{"*.wasm"}, cfg.ModulePatterns)
	assert.Equal(t, "Engine", cfg.FrameworkModule, "unchanged flags must not override the file")
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := config.Load(missing, false, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_READ_FAILED")

	cfg, err := config.Load(missing, true, nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_SchemaViolation(t *testing.T) {
	path := writeConfig(t, "unknown-key: 1\n")

	_, err := config.Load(path, false, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_INVALID")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"log format", []string{"--log-format=xml"}, "LOG_FORMAT_INVALID"},
		{"warn after give up", []string{"--warn-after=20", "--give-up-after=10"}, "CONFIG_INVALID"},
		{"warn equals give up", []string{"--warn-after=10", "--give-up-after=10"}, "CONFIG_INVALID"},
		{"zero give up", []string{"--give-up-after=0"}, "CONFIG_INVALID"},
		{"negative debounce", []string{"--debounce=-1s"}, "CONFIG_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load("", false, flags(t, tt.args...))
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestConfig_Bridge(t *testing.T) {
	cfg := config.Default()
	cfg.ManagedRoot = "/managed"
	cfg.WarnAfter = 3

	b := cfg.Bridge()
	assert.Equal(t, "/managed", b.ManagedRoot)
	assert.Equal(t, cfg.FrameworkModule, b.FrameworkModule)
	assert.Equal(t, cfg.ModulePatterns, b.ModulePatterns)
	assert.Equal(t, 3, b.WarnAfter)
	assert.Equal(t, cfg.GiveUpAfter, b.GiveUpAfter)
}

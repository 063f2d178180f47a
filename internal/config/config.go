// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package config loads hotbridge configuration from defaults, an optional YAML
// file and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/hotbridge/hotbridge/internal/bridge"
	"github.com/hotbridge/hotbridge/internal/logging"
	"github.com/hotbridge/hotbridge/internal/reclaim"
)

// Defaults not owned by other packages.
const (
	DefaultChecksum    int32 = 1
	DefaultLogFormat         = logging.FormatJSON
	DefaultMetricsAddr       = ""
	DefaultDebounce          = 250 * time.Millisecond
)

// Config is the complete hotbridge configuration.
type Config struct {
	ManagedRoot     string        `koanf:"managed-root" json:"managed-root,omitempty" jsonschema:"description=Directory scanned for modules; derived from install-path when empty"`
	InstallPath     string        `koanf:"install-path" json:"install-path,omitempty" jsonschema:"description=Install location used to derive the managed root; the executable path when empty"`
	PluginSegment   string        `koanf:"plugin-segment" json:"plugin-segment,omitempty" jsonschema:"description=Path segment replaced to derive the managed root,minLength=1"`
	ManagedDir      string        `koanf:"managed-dir" json:"managed-dir,omitempty" jsonschema:"description=Directory name substituted for plugin-segment,minLength=1"`
	FrameworkModule string        `koanf:"framework-module" json:"framework-module,omitempty" jsonschema:"description=Name of the framework module plugins depend on,minLength=1"`
	ModulePatterns  []string      `koanf:"module-patterns" json:"module-patterns,omitempty" jsonschema:"description=Glob patterns matched against module file names"`
	Checksum        int32         `koanf:"checksum" json:"checksum,omitempty" jsonschema:"description=Compatibility checksum passed to Initialize"`
	WarnAfter       int           `koanf:"warn-after" json:"warn-after,omitempty" jsonschema:"description=Unload attempts before the slow unload warning,minimum=1"`
	GiveUpAfter     int           `koanf:"give-up-after" json:"give-up-after,omitempty" jsonschema:"description=Unload attempts before unloading is abandoned,minimum=1"`
	LogFormat       string        `koanf:"log-format" json:"log-format,omitempty" jsonschema:"description=Operator log format,enum=json,enum=text"`
	MetricsAddr     string        `koanf:"metrics-addr" json:"metrics-addr,omitempty" jsonschema:"description=Metrics and health HTTP address; disabled when empty"`
	Debounce        time.Duration `koanf:"debounce" json:"debounce,omitempty" jsonschema:"type=string,description=Quiet period before a file change triggers a reload (e.g. 250ms)"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		PluginSegment:   bridge.DefaultPluginSegment,
		ManagedDir:      bridge.DefaultManagedDir,
		FrameworkModule: bridge.DefaultFrameworkModule,
		ModulePatterns:  append([]string(nil), bridge.DefaultModulePatterns...),
		Checksum:        DefaultChecksum,
		WarnAfter:       reclaim.DefaultWarnAfter,
		GiveUpAfter:     reclaim.DefaultGiveUpAfter,
		LogFormat:       DefaultLogFormat,
		MetricsAddr:     DefaultMetricsAddr,
		Debounce:        DefaultDebounce,
	}
}

// RegisterFlags adds a flag for every configuration key to fs, with the
// defaults from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("managed-root", d.ManagedRoot, "directory scanned for modules (default: derived from install-path)")
	fs.String("install-path", d.InstallPath, "install location used to derive the managed root (default: executable path)")
	fs.String("plugin-segment", d.PluginSegment, "install path segment replaced to derive the managed root")
	fs.String("managed-dir", d.ManagedDir, "directory name substituted for plugin-segment")
	fs.String("framework-module", d.FrameworkModule, "framework module name")
	fs.StringSlice("module-patterns", d.ModulePatterns, "module file name patterns")
	fs.Int32("checksum", d.Checksum, "compatibility checksum passed to Initialize")
	fs.Int("warn-after", d.WarnAfter, "unload attempts before warning")
	fs.Int("give-up-after", d.GiveUpAfter, "unload attempts before giving up")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.Duration("debounce", d.Debounce, "quiet period before a file change triggers a reload")
}

// Load builds the configuration. path names a YAML file; it is skipped when
// empty, and when missing only if optional is set. fs may be nil.
func Load(path string, optional bool, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		switch {
		case errors.Is(err, os.ErrNotExist) && optional:
		case err != nil:
			return Config{}, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		default:
			if err := ValidateSchema(data); err != nil {
				return Config{}, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
			}
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the schema cannot express.
func (c Config) Validate() error {
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return err
	}
	if c.WarnAfter <= 0 || c.GiveUpAfter <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("warn_after", c.WarnAfter).
			With("give_up_after", c.GiveUpAfter).
			Errorf("warn-after and give-up-after must be positive")
	}
	if c.WarnAfter >= c.GiveUpAfter {
		return oops.Code("CONFIG_INVALID").
			With("warn_after", c.WarnAfter).
			With("give_up_after", c.GiveUpAfter).
			Errorf("warn-after (%d) must be below give-up-after (%d)", c.WarnAfter, c.GiveUpAfter)
	}
	if c.Debounce < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("debounce must not be negative, got %s", c.Debounce)
	}
	return nil
}

// Bridge returns the bridge settings.
func (c Config) Bridge() bridge.Config {
	return bridge.Config{
		ManagedRoot:     c.ManagedRoot,
		InstallPath:     c.InstallPath,
		PluginSegment:   c.PluginSegment,
		ManagedDir:      c.ManagedDir,
		FrameworkModule: c.FrameworkModule,
		ModulePatterns:  c.ModulePatterns,
		WarnAfter:       c.WarnAfter,
		GiveUpAfter:     c.GiveUpAfter,
	}
}

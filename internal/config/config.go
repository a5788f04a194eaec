// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package config loads and validates host configuration from a YAML file
// and command-line flags.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Defaults.
const (
	DefaultPluginsDirectory = "plugins"
	DefaultArtifactSuffix   = ".plugin"
	DefaultGracePeriod      = 30
	DefaultHTTPAddr         = ":8080"
	DefaultMetricsAddr      = "127.0.0.1:9100"
	DefaultLogFormat        = "json"
)

// Config is the host configuration.
type Config struct {
	// PluginsDirectory is the watched directory; created at startup if
	// missing.
	PluginsDirectory string `koanf:"plugins_directory" json:"plugins_directory" jsonschema:"required,minLength=1"`

	// ArtifactSuffix selects loadable artifacts by file extension.
	ArtifactSuffix string `koanf:"artifact_suffix" json:"artifact_suffix,omitempty" jsonschema:"minLength=2"`

	// PluginManager tunes the lifecycle engine.
	PluginManager PluginManagerConfig `koanf:"plugin_manager" json:"plugin_manager,omitempty"`

	// AllowedOrigins is the CORS allow-list for the web host.
	AllowedOrigins []string `koanf:"allowed_origins" json:"allowed_origins,omitempty"`

	// HTTPAddr is the web host listen address.
	HTTPAddr string `koanf:"http_addr" json:"http_addr,omitempty"`

	// MetricsAddr is the metrics/health listen address (empty = disabled).
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text"`
}

// PluginManagerConfig tunes hot-swap behavior.
type PluginManagerConfig struct {
	// EnableHotSwap keeps replaced instances alive for the grace period so
	// in-flight requests complete.
	EnableHotSwap bool `koanf:"enable_hot_swap" json:"enable_hot_swap,omitempty"`

	// GracePeriodSeconds bounds how long a swapped-out instance survives.
	GracePeriodSeconds int `koanf:"grace_period_seconds" json:"grace_period_seconds,omitempty" jsonschema:"minimum=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PluginsDirectory: DefaultPluginsDirectory,
		ArtifactSuffix:   DefaultArtifactSuffix,
		PluginManager: PluginManagerConfig{
			EnableHotSwap:      true,
			GracePeriodSeconds: DefaultGracePeriod,
		},
		HTTPAddr:    DefaultHTTPAddr,
		MetricsAddr: DefaultMetricsAddr,
		LogFormat:   DefaultLogFormat,
	}
}

// RegisterFlags adds the shared host flags to a flag set. Flag names map to
// config keys (hyphens become underscores; lifecycle flags live under
// plugin_manager).
func RegisterFlags(f *pflag.FlagSet) {
	def := Default()
	f.String("plugins-directory", def.PluginsDirectory, "plugin directory to watch")
	f.String("artifact-suffix", def.ArtifactSuffix, "loadable artifact suffix")
	f.Bool("enable-hot-swap", def.PluginManager.EnableHotSwap, "keep replaced plugins alive for the grace period")
	f.Int("grace-period-seconds", def.PluginManager.GracePeriodSeconds, "grace period for hot-swapped plugins")
	f.StringSlice("allowed-origins", nil, "CORS allowed origins")
	f.String("http-addr", def.HTTPAddr, "HTTP listen address (web host)")
	f.String("metrics-addr", def.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	f.String("log-format", def.LogFormat, "log format (json or text)")
}

// flagKey maps a flag name to its config key.
func flagKey(name string) string {
	key := strings.ReplaceAll(name, "-", "_")
	switch key {
	case "enable_hot_swap", "grace_period_seconds":
		return "plugin_manager." + key
	}
	return key
}

// Load builds the configuration: defaults, then the optional YAML file, then
// any flags changed on the command line.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	if c.PluginsDirectory == "" {
		return oops.Code("CONFIG_INVALID").New("plugins_directory is required")
	}
	if !strings.HasPrefix(c.ArtifactSuffix, ".") || len(c.ArtifactSuffix) < 2 {
		return oops.Code("CONFIG_INVALID").
			With("artifact_suffix", c.ArtifactSuffix).
			New("artifact_suffix must start with '.'")
	}
	if c.PluginManager.GracePeriodSeconds < 0 {
		return oops.Code("CONFIG_INVALID").
			With("grace_period_seconds", c.PluginManager.GracePeriodSeconds).
			New("grace_period_seconds must not be negative")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			New("log_format must be 'json' or 'text'")
	}
	return nil
}

// ArtifactPattern returns the watcher glob for the configured suffix.
func (c Config) ArtifactPattern() string {
	return "*" + c.ArtifactSuffix
}

// SDKArtifactName is the base name of the shared SDK support artifact; the
// watcher ignores it to prevent self-reload.
func (c Config) SDKArtifactName() string {
	return "plugmesh-sdk" + c.ArtifactSuffix
}

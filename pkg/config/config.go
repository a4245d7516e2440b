// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package config loads and exposes the root agent configuration.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/serversentry/serversentry/pkg/errs"
)

// Sentry is the global configuration object.
var Sentry = viper.New()

// DefaultCheckInterval is the default number of seconds between ticks.
const DefaultCheckInterval = 60

// DefaultCheckTimeout is the default per-plugin check timeout in seconds.
const DefaultCheckTimeout = 30

func init() {
	setupDefaults(Sentry)
}

func setupDefaults(cfg *viper.Viper) {
	cfg.SetDefault("system.enabled", true)
	cfg.SetDefault("system.log_level", "info")
	cfg.SetDefault("system.check_interval", DefaultCheckInterval)
	cfg.SetDefault("system.check_timeout", DefaultCheckTimeout)
	cfg.SetDefault("system.pid_file", "/var/run/serversentry.pid")
	cfg.SetDefault("system.state_directory", "/var/lib/serversentry")
	cfg.SetDefault("system.log_directory", "/var/log/serversentry")

	cfg.SetDefault("plugins.enabled", []string{"cpu", "memory", "disk", "process"})

	cfg.SetDefault("notifications.enabled", true)
	cfg.SetDefault("notifications.channels", []string{})
	cfg.SetDefault("notifications.min_interval", 60)

	cfg.SetDefault("anomaly_detection.enabled", false)
	cfg.SetDefault("anomaly_detection.default_sensitivity", 2.0)
	cfg.SetDefault("anomaly_detection.data_retention_days", 30)

	cfg.SetDefault("composite_checks.enabled", false)
	cfg.SetDefault("composite_checks.config_directory", "/etc/serversentry/composite.d")

	cfg.SetEnvPrefix("SERVERSENTRY")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
}

// Load reads the configuration file at confPath into the global object and
// validates it. An empty confPath searches the default locations.
func Load(confPath string) error {
	if confPath != "" {
		Sentry.SetConfigFile(confPath)
	} else {
		Sentry.SetConfigName("serversentry")
		Sentry.SetConfigType("yaml")
		Sentry.AddConfigPath("/etc/serversentry")
		Sentry.AddConfigPath(".")
	}

	if err := Sentry.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && confPath == "" {
			// Running on defaults is fine for one-shot commands.
			return Validate(Sentry)
		}
		return errs.New(errs.InvalidInput, confPath, err).
			WithRemedy("check the configuration file syntax")
	}

	return Validate(Sentry)
}

// Validate enforces the invariants of the root configuration.
func Validate(cfg *viper.Viper) error {
	interval := cfg.GetInt("system.check_interval")
	if interval <= 0 {
		return errs.Newf(errs.InvalidInput, "system.check_interval",
			"check_interval must be a positive integer, got %d", interval).
			WithRemedy("set system.check_interval to a positive number of seconds")
	}

	timeout := cfg.GetInt("system.check_timeout")
	if timeout <= 0 {
		return errs.Newf(errs.InvalidInput, "system.check_timeout",
			"check_timeout must be a positive integer, got %d", timeout).
			WithRemedy("set system.check_timeout to a positive number of seconds")
	}

	level := strings.ToLower(cfg.GetString("system.log_level"))
	switch level {
	case "debug", "info", "warning", "error", "critical":
	default:
		return errs.Newf(errs.InvalidInput, "system.log_level",
			"unknown log level %q", level).
			WithRemedy("use one of debug, info, warning, error, critical")
	}

	sensitivity := cfg.GetFloat64("anomaly_detection.default_sensitivity")
	if sensitivity <= 0 {
		return errs.Newf(errs.InvalidInput, "anomaly_detection.default_sensitivity",
			"sensitivity must be > 0, got %v", sensitivity)
	}

	return nil
}

// CheckInterval returns the tick interval.
func CheckInterval() time.Duration {
	return time.Duration(Sentry.GetInt("system.check_interval")) * time.Second
}

// CheckTimeout returns the per-plugin check timeout.
func CheckTimeout() time.Duration {
	return time.Duration(Sentry.GetInt("system.check_timeout")) * time.Second
}

// EnabledPlugins returns the ordered set of plugin ids to register.
func EnabledPlugins() []string {
	return Sentry.GetStringSlice("plugins.enabled")
}

// PluginConfig returns the raw configuration map for one plugin.
func PluginConfig(name string) map[string]interface{} {
	return Sentry.GetStringMap(fmt.Sprintf("plugins.%s", name))
}

// EnabledChannels returns the set of notification channel ids to enable.
func EnabledChannels() []string {
	return Sentry.GetStringSlice("notifications.channels")
}

// ChannelConfig returns the raw configuration map for one channel.
func ChannelConfig(name string) map[string]interface{} {
	return Sentry.GetStringMap(fmt.Sprintf("notifications.%s", name))
}

// AnomalyOverrides returns the per-plugin anomaly configuration overrides.
func AnomalyOverrides(name string) map[string]interface{} {
	return Sentry.GetStringMap(fmt.Sprintf("anomaly_detection.plugins.%s", name))
}

// StateDirectory returns the directory holding persisted alert state.
func StateDirectory() string {
	return Sentry.GetString("system.state_directory")
}

// AnomalyLogDirectory returns the directory holding anomaly history and
// result logs.
func AnomalyLogDirectory() string {
	return filepath.Join(Sentry.GetString("system.log_directory"), "anomaly")
}

// Reset replaces the global configuration with a fresh one carrying only
// defaults. Used by tests.
func Reset() {
	Sentry = viper.New()
	setupDefaults(Sentry)
}

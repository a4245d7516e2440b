// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	"github.com/serversentry/serversentry/pkg/alert"
	"github.com/serversentry/serversentry/pkg/anomaly"
	"github.com/serversentry/serversentry/pkg/composite"
	"github.com/serversentry/serversentry/pkg/config"
	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/history"
	"github.com/serversentry/serversentry/pkg/notify"
	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/scheduler"
	"github.com/serversentry/serversentry/pkg/threshold"
	"github.com/serversentry/serversentry/pkg/util/log"
)

// buildRegistry instantiates and configures every enabled plugin.
func buildRegistry(only string) (*plugin.Registry, error) {
	registry := plugin.NewRegistry()
	for _, name := range config.EnabledPlugins() {
		if only != "" && name != only {
			continue
		}
		factory, err := plugin.GetFactory(name)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(name, factory(), config.PluginConfig(name)); err != nil {
			return nil, err
		}
	}
	if only != "" && len(registry.Names()) == 0 {
		return nil, errs.Newf(errs.NotFound, only, "plugin %q is not enabled", only).
			WithRemedy("add it to plugins.enabled")
	}
	return registry, nil
}

// thresholdOverrides reads the per-plugin threshold keys, falling back to
// each plugin's declared defaults.
func thresholdOverrides(registry *plugin.Registry) (map[string]threshold.Config, error) {
	out := make(map[string]threshold.Config)
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		cfg := threshold.FromDefaults(p.Info().Defaults)

		var raw struct {
			Warning        *float64 `mapstructure:"warning_threshold"`
			Critical       *float64 `mapstructure:"critical_threshold"`
			Hysteresis     *float64 `mapstructure:"hysteresis"`
			MinConsecutive *int     `mapstructure:"min_consecutive"`
		}
		if err := mapstructure.WeakDecode(config.PluginConfig(name), &raw); err != nil {
			return nil, errs.New(errs.InvalidInput, name, err)
		}
		if raw.Warning != nil {
			cfg.Warning = *raw.Warning
		}
		if raw.Critical != nil {
			cfg.Critical = *raw.Critical
		}
		if raw.Hysteresis != nil {
			cfg.Hysteresis = *raw.Hysteresis
		}
		if raw.MinConsecutive != nil {
			cfg.MinConsecutive = *raw.MinConsecutive
		}
		if err := cfg.Validate(); err != nil {
			return nil, errs.New(errs.InvalidInput, name, err).
				WithRemedy("fix the plugin's threshold configuration")
		}
		out[name] = cfg
	}
	return out, nil
}

// errorSeverities reads each plugin's error_severity key, which sets the
// severity of the event emitted when its check fails.
func errorSeverities(registry *plugin.Registry) (map[string]plugin.Status, error) {
	out := make(map[string]plugin.Status)
	for _, name := range registry.Names() {
		var raw struct {
			ErrorSeverity string `mapstructure:"error_severity"`
		}
		if err := mapstructure.WeakDecode(config.PluginConfig(name), &raw); err != nil {
			return nil, errs.New(errs.InvalidInput, name, err)
		}
		sev, err := scheduler.ParseErrorSeverity(raw.ErrorSeverity)
		if err != nil {
			return nil, errs.New(errs.InvalidInput, name, err).
				WithRemedy("fix plugins." + name + ".error_severity")
		}
		out[name] = sev
	}
	return out, nil
}

// anomalyConfigs builds the per-plugin detection configuration when anomaly
// detection is enabled.
func anomalyConfigs(registry *plugin.Registry) (map[string]anomaly.Config, error) {
	if !config.Sentry.GetBool("anomaly_detection.enabled") {
		return nil, nil
	}
	out := make(map[string]anomaly.Config)
	for _, name := range registry.Names() {
		cfg := anomaly.DefaultConfig()
		cfg.Sensitivity = config.Sentry.GetFloat64("anomaly_detection.default_sensitivity")
		if err := mapstructure.WeakDecode(config.AnomalyOverrides(name), &cfg); err != nil {
			return nil, errs.New(errs.InvalidInput, name, err)
		}
		if !cfg.Enabled {
			continue
		}
		if err := cfg.Validate(); err != nil {
			return nil, errs.New(errs.InvalidInput, name, err).
				WithRemedy("fix anomaly_detection.plugins." + name)
		}
		out[name] = cfg
	}
	return out, nil
}

// buildDispatcher configures every enabled channel and the template
// registry. A channel that fails to configure is skipped with an error so
// the rest still deliver.
func buildDispatcher() (*notify.Dispatcher, error) {
	interval := time.Duration(config.Sentry.GetInt("notifications.min_interval")) * time.Second
	d := notify.NewDispatcher(
		notify.WithTemplates(loadTemplates()),
		notify.WithThrottleInterval(interval),
	)

	if !config.Sentry.GetBool("notifications.enabled") {
		return d, nil
	}

	var result *multierror.Error
	for _, name := range config.EnabledChannels() {
		factory, err := notify.GetChannelFactory(name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		ch := factory()
		if err := ch.Configure(config.ChannelConfig(name)); err != nil {
			result = multierror.Append(result, err)
			log.Warnf("notify: channel %s disabled: %s", name, err) //nolint:errcheck
			continue
		}
		d.AddChannel(name, ch)
	}
	return d, result.ErrorOrNil()
}

// loadTemplates reads notifications.templates.<channel>.<kind> keys; the
// channel "default" sets the per-kind wildcard.
func loadTemplates() *notify.Templates {
	templates := notify.NewTemplates()
	raw := config.Sentry.GetStringMap("notifications.templates")
	for channel, v := range raw {
		kinds, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		for kind, tmpl := range kinds {
			text, ok := tmpl.(string)
			if !ok {
				continue
			}
			name := channel
			if channel == "default" {
				name = ""
			}
			templates.Set(name, notify.Kind(kind), text)
		}
	}
	return templates
}

// buildEngine loads and compiles the composite rules when enabled. Bad rule
// files are reported but do not abort startup.
func buildEngine(registry *plugin.Registry) *composite.Engine {
	if !config.Sentry.GetBool("composite_checks.enabled") {
		return nil
	}
	lookup := func(pluginName string) (plugin.Meta, bool) {
		p, ok := registry.Get(pluginName)
		if !ok {
			return plugin.Meta{}, false
		}
		return p.Info(), true
	}
	dir := config.Sentry.GetString("composite_checks.config_directory")
	rules, errors := composite.LoadDir(dir, lookup)
	for _, err := range errors {
		log.Warnf("composite: %s", err) //nolint:errcheck
	}
	if len(rules) == 0 {
		log.Infof("composite: no enabled rules in %s", dir)
		return nil
	}
	return composite.NewEngine(rules)
}

func buildMachine() (*alert.Machine, error) {
	windows, err := alert.ParseWindows(config.Sentry.GetStringSlice("notifications.silence_windows"))
	if err != nil {
		return nil, err
	}
	return alert.NewMachine(config.StateDirectory(), alert.WithSilenceWindows(windows)), nil
}

// buildScheduler assembles the full pipeline behind one tick driver.
func buildScheduler(registry *plugin.Registry) (*scheduler.Scheduler, error) {
	thresholds, err := thresholdOverrides(registry)
	if err != nil {
		return nil, err
	}
	anomalies, err := anomalyConfigs(registry)
	if err != nil {
		return nil, err
	}
	severities, err := errorSeverities(registry)
	if err != nil {
		return nil, err
	}
	machine, err := buildMachine()
	if err != nil {
		return nil, err
	}
	dispatcher, err := buildDispatcher()
	if err != nil {
		// Partially configured channels are not fatal.
		log.Warnf("notify: %s", err) //nolint:errcheck
	}

	anomalyDir := config.AnomalyLogDirectory()
	opts := scheduler.Options{
		Registry:      registry,
		Store:         history.NewStore(history.WithPersistence(anomalyDir)),
		Machine:       machine,
		Dispatcher:    dispatcher,
		Engine:        buildEngine(registry),
		Interval:      config.CheckInterval(),
		CheckTimeout:  config.CheckTimeout(),
		Thresholds:    thresholds,
		Anomaly:       anomalies,
		ErrorSeverity: severities,
		RetentionDays: config.Sentry.GetInt("anomaly_detection.data_retention_days"),
	}
	if len(anomalies) > 0 {
		opts.ResultLog = anomaly.NewResultLog(anomalyDir, nil)
	}
	return scheduler.New(opts)
}

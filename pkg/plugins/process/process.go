// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package process implements the named-process liveness plugin. The primary
// value is the count of configured processes that are not running.
package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/serversentry/serversentry/pkg/plugin"
)

const pluginName = "process"

// for testing
var processList = process.ProcessesWithContext

type processConfig struct {
	Processes         []string `mapstructure:"processes"`
	WarningThreshold  float64  `mapstructure:"warning_threshold"`
	CriticalThreshold float64  `mapstructure:"critical_threshold"`
}

// Check verifies that the configured process names are running.
type Check struct {
	cfg processConfig
}

func init() {
	plugin.RegisterFactory(pluginName, func() plugin.Plugin { return &Check{} })
}

// Info returns the plugin metadata.
func (c *Check) Info() plugin.Meta {
	return plugin.Meta{
		Name:        pluginName,
		Version:     "2.0.0",
		Description: "Count of configured processes that are not running",
		Attributes:  []string{"missing", "watched", "running_count"},
		Defaults:    plugin.Thresholds{Warning: 1, Critical: 2},
	}
}

// Configure binds the plugin configuration.
func (c *Check) Configure(cfg map[string]interface{}) error {
	c.cfg = processConfig{
		WarningThreshold:  c.Info().Defaults.Warning,
		CriticalThreshold: c.Info().Defaults.Critical,
	}
	if err := mapstructure.Decode(cfg, &c.cfg); err != nil {
		return fmt.Errorf("invalid process plugin configuration: %w", err)
	}
	return nil
}

// Check produces one process reading.
func (c *Check) Check(ctx context.Context) (*plugin.Reading, error) {
	procs, err := processList(ctx)
	if err != nil {
		return nil, err
	}

	running := make(map[string]bool, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		running[name] = true
	}

	missing := make([]string, 0)
	for _, want := range c.cfg.Processes {
		if !running[want] {
			missing = append(missing, want)
		}
	}

	msg := "All watched processes are running"
	if len(missing) > 0 {
		msg = fmt.Sprintf("Missing processes: %s", strings.Join(missing, ", "))
	}

	return &plugin.Reading{
		PluginID:  pluginName,
		Timestamp: time.Now().UTC(),
		Value:     float64(len(missing)),
		Attributes: map[string]interface{}{
			"missing":       strings.Join(missing, ","),
			"watched":       strings.Join(c.cfg.Processes, ","),
			"running_count": float64(len(c.cfg.Processes) - len(missing)),
		},
		Message: msg,
	}, nil
}

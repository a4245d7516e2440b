// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package cpu implements the cpu utilisation plugin.
package cpu

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/util/log"
)

const pluginName = "cpu"

// for testing
var (
	cpuPercent   = cpu.PercentWithContext
	loadAvg      = load.AvgWithContext
	processesFor = process.ProcessesWithContext
)

type cpuConfig struct {
	WarningThreshold  float64 `mapstructure:"warning_threshold"`
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
	TopConsumers      int     `mapstructure:"top_consumers"`
}

// Check samples total cpu utilisation over a one second interval.
type Check struct {
	cfg cpuConfig
}

func init() {
	plugin.RegisterFactory(pluginName, func() plugin.Plugin { return &Check{} })
}

// Info returns the plugin metadata.
func (c *Check) Info() plugin.Meta {
	return plugin.Meta{
		Name:        pluginName,
		Version:     "2.0.0",
		Description: "Percent CPU utilisation over a 1s sampling interval",
		Attributes:  []string{"load_avg_1", "load_avg_5", "load_avg_15", "core_count", "top_consumers"},
		Defaults:    plugin.Thresholds{Warning: 80, Critical: 90},
	}
}

// Configure binds the plugin configuration.
func (c *Check) Configure(cfg map[string]interface{}) error {
	c.cfg = cpuConfig{
		WarningThreshold:  c.Info().Defaults.Warning,
		CriticalThreshold: c.Info().Defaults.Critical,
		TopConsumers:      3,
	}
	if err := mapstructure.Decode(cfg, &c.cfg); err != nil {
		return fmt.Errorf("invalid cpu plugin configuration: %w", err)
	}
	if c.cfg.CriticalThreshold < c.cfg.WarningThreshold {
		return fmt.Errorf("cpu critical threshold %.1f below warning threshold %.1f",
			c.cfg.CriticalThreshold, c.cfg.WarningThreshold)
	}
	return nil
}

// Check produces one cpu reading.
func (c *Check) Check(ctx context.Context) (*plugin.Reading, error) {
	percents, err := cpuPercent(ctx, time.Second, false)
	if err != nil {
		return nil, err
	}
	if len(percents) == 0 {
		return nil, fmt.Errorf("cpu sampling returned no data")
	}
	usage := percents[0]

	attrs := map[string]interface{}{
		"core_count": float64(coreCount()),
	}

	if avg, err := loadAvg(ctx); err == nil {
		attrs["load_avg_1"] = avg.Load1
		attrs["load_avg_5"] = avg.Load5
		attrs["load_avg_15"] = avg.Load15
	} else {
		log.Debugf("cpu: load average unavailable: %s", err)
	}

	if top, err := c.topConsumers(ctx); err == nil && top != "" {
		attrs["top_consumers"] = top
	}

	return &plugin.Reading{
		PluginID:   pluginName,
		Timestamp:  time.Now().UTC(),
		Value:      usage,
		Attributes: attrs,
		Message:    fmt.Sprintf("CPU usage: %.1f%%", usage),
	}, nil
}

func coreCount() int {
	n, err := cpu.Counts(true)
	if err != nil {
		return 0
	}
	return n
}

// topConsumers returns the names of the busiest processes, best effort.
func (c *Check) topConsumers(ctx context.Context) (string, error) {
	procs, err := processesFor(ctx)
	if err != nil {
		return "", err
	}

	type consumer struct {
		name string
		pct  float64
	}
	consumers := make([]consumer, 0, len(procs))
	for _, p := range procs {
		pct, err := p.CPUPercentWithContext(ctx)
		if err != nil || pct <= 0 {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		consumers = append(consumers, consumer{name: name, pct: pct})
	}
	sort.Slice(consumers, func(i, j int) bool { return consumers[i].pct > consumers[j].pct })

	n := c.cfg.TopConsumers
	if n > len(consumers) {
		n = len(consumers)
	}
	names := make([]string, 0, n)
	for _, top := range consumers[:n] {
		names = append(names, fmt.Sprintf("%s(%.1f%%)", top.name, top.pct))
	}
	return strings.Join(names, ", "), nil
}

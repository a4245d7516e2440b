// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package memory implements the physical memory plugin.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/serversentry/serversentry/pkg/plugin"
)

const pluginName = "memory"

const mbSize float64 = 1024 * 1024

// for testing
var (
	virtualMemory = mem.VirtualMemoryWithContext
	swapMemory    = mem.SwapMemoryWithContext
)

type memConfig struct {
	WarningThreshold  float64 `mapstructure:"warning_threshold"`
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
}

// Check reports the percent of used physical memory, excluding buffers and
// cache where the platform distinguishes them.
type Check struct {
	cfg memConfig
}

func init() {
	plugin.RegisterFactory(pluginName, func() plugin.Plugin { return &Check{} })
}

// Info returns the plugin metadata.
func (c *Check) Info() plugin.Meta {
	return plugin.Meta{
		Name:        pluginName,
		Version:     "2.0.0",
		Description: "Percent of used physical memory",
		Attributes:  []string{"total_mb", "used_mb", "available_mb", "swap_used_percent"},
		Defaults:    plugin.Thresholds{Warning: 80, Critical: 95},
	}
}

// Configure binds the plugin configuration.
func (c *Check) Configure(cfg map[string]interface{}) error {
	c.cfg = memConfig{
		WarningThreshold:  c.Info().Defaults.Warning,
		CriticalThreshold: c.Info().Defaults.Critical,
	}
	if err := mapstructure.Decode(cfg, &c.cfg); err != nil {
		return fmt.Errorf("invalid memory plugin configuration: %w", err)
	}
	if c.cfg.CriticalThreshold < c.cfg.WarningThreshold {
		return fmt.Errorf("memory critical threshold %.1f below warning threshold %.1f",
			c.cfg.CriticalThreshold, c.cfg.WarningThreshold)
	}
	return nil
}

// Check produces one memory reading.
func (c *Check) Check(ctx context.Context) (*plugin.Reading, error) {
	v, err := virtualMemory(ctx)
	if err != nil {
		return nil, err
	}
	if v.Total == 0 {
		return nil, fmt.Errorf("memory sampling returned a zero total")
	}

	// Available already excludes buffers/cache on platforms that
	// distinguish them, which is what "used" should not count.
	used := float64(v.Total-v.Available) / float64(v.Total) * 100

	attrs := map[string]interface{}{
		"total_mb":     float64(v.Total) / mbSize,
		"used_mb":      float64(v.Total-v.Available) / mbSize,
		"available_mb": float64(v.Available) / mbSize,
	}
	if swap, err := swapMemory(ctx); err == nil && swap.Total > 0 {
		attrs["swap_used_percent"] = swap.UsedPercent
	}

	return &plugin.Reading{
		PluginID:   pluginName,
		Timestamp:  time.Now().UTC(),
		Value:      used,
		Attributes: attrs,
		Message:    fmt.Sprintf("Memory usage: %.1f%%", used),
	}, nil
}

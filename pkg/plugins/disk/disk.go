// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package disk implements the disk usage plugin.
package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/util/log"
)

const pluginName = "disk"

const gbSize float64 = 1024 * 1024 * 1024

// for testing
var (
	diskUsage = disk.UsageWithContext
	readDir   = os.ReadDir
)

type diskConfig struct {
	Mount             string  `mapstructure:"mount"`
	WarningThreshold  float64 `mapstructure:"warning_threshold"`
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
}

// Check reports percent used space for the configured mount.
type Check struct {
	cfg diskConfig
}

func init() {
	plugin.RegisterFactory(pluginName, func() plugin.Plugin { return &Check{} })
}

// Info returns the plugin metadata.
func (c *Check) Info() plugin.Meta {
	return plugin.Meta{
		Name:        pluginName,
		Version:     "2.0.0",
		Description: "Percent used disk space for a configured mount",
		Attributes:  []string{"mount", "total_gb", "used_gb", "free_gb", "inodes_used_percent", "largest_dir"},
		Defaults:    plugin.Thresholds{Warning: 85, Critical: 95},
	}
}

// Configure binds the plugin configuration.
func (c *Check) Configure(cfg map[string]interface{}) error {
	c.cfg = diskConfig{
		Mount:             "/",
		WarningThreshold:  c.Info().Defaults.Warning,
		CriticalThreshold: c.Info().Defaults.Critical,
	}
	if err := mapstructure.Decode(cfg, &c.cfg); err != nil {
		return fmt.Errorf("invalid disk plugin configuration: %w", err)
	}
	if c.cfg.CriticalThreshold < c.cfg.WarningThreshold {
		return fmt.Errorf("disk critical threshold %.1f below warning threshold %.1f",
			c.cfg.CriticalThreshold, c.cfg.WarningThreshold)
	}
	return nil
}

// Check produces one disk reading.
func (c *Check) Check(ctx context.Context) (*plugin.Reading, error) {
	usage, err := diskUsage(ctx, c.cfg.Mount)
	if err != nil {
		return nil, err
	}
	if usage.Total == 0 {
		return nil, fmt.Errorf("disk %s reports a zero total size", c.cfg.Mount)
	}

	attrs := map[string]interface{}{
		"mount":    c.cfg.Mount,
		"total_gb": float64(usage.Total) / gbSize,
		"used_gb":  float64(usage.Used) / gbSize,
		"free_gb":  float64(usage.Free) / gbSize,
	}
	if usage.InodesTotal > 0 {
		attrs["inodes_used_percent"] = usage.InodesUsedPercent
	}
	if largest, err := largestDir(ctx, c.cfg.Mount); err == nil && largest != "" {
		attrs["largest_dir"] = largest
	} else if err != nil {
		log.Debugf("disk: largest-directory sketch unavailable for %s: %s", c.cfg.Mount, err)
	}

	return &plugin.Reading{
		PluginID:   pluginName,
		Timestamp:  time.Now().UTC(),
		Value:      usage.UsedPercent,
		Attributes: attrs,
		Message:    fmt.Sprintf("Disk usage on %s: %.1f%%", c.cfg.Mount, usage.UsedPercent),
	}, nil
}

// largestDir is a one-level sketch of the biggest directory under mount. It
// only sums regular files directly inside each first-level directory to keep
// the scan bounded.
func largestDir(ctx context.Context, mount string) (string, error) {
	entries, err := readDir(mount)
	if err != nil {
		return "", err
	}

	var best string
	var bestSize int64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(mount, entry.Name())
		children, err := readDir(dir)
		if err != nil {
			continue
		}
		var size int64
		for _, child := range children {
			info, err := child.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			size += info.Size()
		}
		if size > bestSize {
			bestSize = size
			best = dir
		}
	}
	return best, nil
}

// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package disk

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	diskUsage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		assert.Equal(t, "/data", path)
		return &disk.UsageStat{
			Total:             100 * 1024 * 1024 * 1024,
			Used:              91 * 1024 * 1024 * 1024,
			Free:              9 * 1024 * 1024 * 1024,
			UsedPercent:       91,
			InodesTotal:       1000,
			InodesUsedPercent: 10,
		}, nil
	}
	readDir = func(string) ([]os.DirEntry, error) {
		return nil, fmt.Errorf("not scanned in tests")
	}

	c := &Check{}
	require.NoError(t, c.Configure(map[string]interface{}{"mount": "/data"}))

	r, err := c.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "disk", r.PluginID)
	assert.Equal(t, 91.0, r.Value)
	assert.Equal(t, "/data", r.Attributes["mount"])
	assert.InDelta(t, 100.0, r.Attributes["total_gb"].(float64), 0.001)
	assert.Equal(t, 10.0, r.Attributes["inodes_used_percent"])
	assert.NotContains(t, r.Attributes, "largest_dir")
}

func TestCheckDefaultsToRoot(t *testing.T) {
	var sampled string
	diskUsage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		sampled = path
		return &disk.UsageStat{Total: 1, UsedPercent: 50}, nil
	}
	readDir = func(string) ([]os.DirEntry, error) { return nil, nil }

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/", sampled)
}

func TestCheckUsageError(t *testing.T) {
	diskUsage = func(context.Context, string) (*disk.UsageStat, error) {
		return nil, fmt.Errorf("some error")
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	assert.Error(t, err)
}

func TestCheckZeroTotal(t *testing.T) {
	diskUsage = func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{}, nil
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	assert.Error(t, err)
}

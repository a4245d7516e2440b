// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{
			Total:     16 * 1024 * 1024 * 1024,
			Available: 4 * 1024 * 1024 * 1024,
		}, nil
	}
	swapMemory = func(context.Context) (*mem.SwapMemoryStat, error) {
		return &mem.SwapMemoryStat{Total: 1024, UsedPercent: 12.5}, nil
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	r, err := c.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "memory", r.PluginID)
	assert.InDelta(t, 75.0, r.Value, 0.001)
	assert.InDelta(t, 16384.0, r.Attributes["total_mb"].(float64), 0.001)
	assert.InDelta(t, 4096.0, r.Attributes["available_mb"].(float64), 0.001)
	assert.Equal(t, 12.5, r.Attributes["swap_used_percent"])
}

func TestCheckError(t *testing.T) {
	virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, fmt.Errorf("some error")
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	assert.Error(t, err)
}

func TestCheckZeroTotal(t *testing.T) {
	virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{}, nil
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	assert.Error(t, err)
}

func TestConfigureRejectsInvertedThresholds(t *testing.T) {
	c := &Check{}
	err := c.Configure(map[string]interface{}{
		"warning_threshold":  96.0,
		"critical_threshold": 90.0,
	})
	assert.Error(t, err)
}

// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package cpu

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubSamplers(usage float64) {
	cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return []float64{usage}, nil
	}
	loadAvg = func(context.Context) (*load.AvgStat, error) {
		return &load.AvgStat{Load1: 1.5, Load5: 1.2, Load15: 0.9}, nil
	}
	processesFor = func(context.Context) ([]*process.Process, error) {
		return nil, nil
	}
}

func TestCheck(t *testing.T) {
	stubSamplers(42.5)

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	r, err := c.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cpu", r.PluginID)
	assert.Equal(t, 42.5, r.Value)
	assert.Equal(t, "CPU usage: 42.5%", r.Message)
	assert.Equal(t, 1.5, r.Attributes["load_avg_1"])
	assert.Equal(t, 0.9, r.Attributes["load_avg_15"])
	assert.False(t, r.Timestamp.IsZero())
}

func TestCheckSamplerError(t *testing.T) {
	stubSamplers(0)
	cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, fmt.Errorf("some error")
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	assert.Error(t, err)
}

func TestCheckNoData(t *testing.T) {
	stubSamplers(0)
	cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return []float64{}, nil
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	assert.Error(t, err)
}

func TestConfigureOverrides(t *testing.T) {
	c := &Check{}
	err := c.Configure(map[string]interface{}{
		"warning_threshold":  70.0,
		"critical_threshold": 85.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, c.cfg.WarningThreshold)
	assert.Equal(t, 85.0, c.cfg.CriticalThreshold)
}

func TestConfigureRejectsInvertedThresholds(t *testing.T) {
	c := &Check{}
	err := c.Configure(map[string]interface{}{
		"warning_threshold":  90.0,
		"critical_threshold": 70.0,
	})
	assert.Error(t, err)
}

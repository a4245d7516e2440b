// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package process

import (
	"context"
	"fmt"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAllMissing(t *testing.T) {
	processList = func(context.Context) ([]*process.Process, error) {
		return nil, nil
	}

	c := &Check{}
	require.NoError(t, c.Configure(map[string]interface{}{
		"processes": []string{"nginx", "postgres"},
	}))

	r, err := c.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "process", r.PluginID)
	assert.Equal(t, 2.0, r.Value)
	assert.Equal(t, "nginx,postgres", r.Attributes["missing"])
	assert.Equal(t, 0.0, r.Attributes["running_count"])
	assert.Contains(t, r.Message, "nginx")
}

func TestCheckNothingWatched(t *testing.T) {
	processList = func(context.Context) ([]*process.Process, error) {
		return nil, nil
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	r, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Value)
	assert.Equal(t, "All watched processes are running", r.Message)
}

func TestCheckListError(t *testing.T) {
	processList = func(context.Context) ([]*process.Process, error) {
		return nil, fmt.Errorf("some error")
	}

	c := &Check{}
	require.NoError(t, c.Configure(nil))

	_, err := c.Check(context.Background())
	assert.Error(t, err)
}

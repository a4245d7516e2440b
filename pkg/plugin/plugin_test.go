// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package plugin

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	meta     Meta
	cfgErr   error
	received map[string]interface{}
}

func (f *fakePlugin) Info() Meta { return f.meta }

func (f *fakePlugin) Configure(cfg map[string]interface{}) error {
	f.received = cfg
	return f.cfgErr
}

func (f *fakePlugin) Check(_ context.Context) (*Reading, error) {
	return &Reading{PluginID: f.meta.Name, Timestamp: time.Now(), Value: 1}, nil
}

func TestStatusWorse(t *testing.T) {
	assert.True(t, StatusCritical.Worse(StatusWarning))
	assert.True(t, StatusWarning.Worse(StatusOK))
	assert.False(t, StatusOK.Worse(StatusWarning))
	assert.False(t, StatusUnknown.Worse(StatusOK))
	assert.True(t, StatusOK.Worse(StatusUnknown))
}

func TestValidateReading(t *testing.T) {
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(&Reading{Timestamp: time.Now()}))
	assert.Error(t, Validate(&Reading{PluginID: "cpu"}))
	assert.Error(t, Validate(&Reading{PluginID: "cpu", Timestamp: time.Now(), Value: math.NaN()}))
	assert.NoError(t, Validate(&Reading{PluginID: "cpu", Timestamp: time.Now(), Value: math.NaN(), Status: StatusUnknown}))
	assert.NoError(t, Validate(&Reading{PluginID: "cpu", Timestamp: time.Now(), Value: 42}))
}

func TestRegistryConfigureFailure(t *testing.T) {
	r := NewRegistry()
	p := &fakePlugin{meta: Meta{Name: "broken"}, cfgErr: errors.New("bad config")}

	err := r.Register("broken", p, nil)
	require.Error(t, err)

	_, active := r.Get("broken")
	assert.False(t, active)
	assert.Empty(t, r.Names())
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("cpu", &fakePlugin{meta: Meta{Name: "cpu"}}, nil))
	require.NoError(t, r.Register("disk", &fakePlugin{meta: Meta{Name: "disk"}}, nil))
	assert.Error(t, r.Register("cpu", &fakePlugin{meta: Meta{Name: "cpu"}}, nil))

	assert.Equal(t, []string{"cpu", "disk"}, r.Names())
	assert.NotNil(t, r.Stats("cpu"))
}

func TestRegistryPassesConfig(t *testing.T) {
	r := NewRegistry()
	p := &fakePlugin{meta: Meta{Name: "cpu"}}
	cfg := map[string]interface{}{"warning_threshold": 70}

	require.NoError(t, r.Register("cpu", p, cfg))
	assert.Equal(t, cfg, p.received)
}

func TestStatsAdd(t *testing.T) {
	s := NewStats("cpu")
	now := time.Now()

	s.Add(120*time.Millisecond, now, nil)
	s.Add(80*time.Millisecond, now.Add(time.Minute), errors.New("boom"))

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.TotalRuns)
	assert.EqualValues(t, 1, snap.TotalErrors)
	assert.Equal(t, 80*time.Millisecond, snap.LastDuration)
	assert.Equal(t, "boom", snap.LastError)
}

func TestMetaHasAttribute(t *testing.T) {
	m := Meta{Name: "cpu", Attributes: []string{"load_avg_1", "top_consumers"}}
	assert.True(t, m.HasAttribute("value"))
	assert.True(t, m.HasAttribute("load_avg_1"))
	assert.False(t, m.HasAttribute("iowait"))
}

// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversentry/serversentry/pkg/plugin"
)

func stubHostMetrics(t *testing.T) {
	origCPU := webhookCPUPercent
	origMem := webhookVirtualMemory
	origDisk := webhookDiskUsage
	origLoad := webhookLoadAvg
	t.Cleanup(func() {
		webhookCPUPercent = origCPU
		webhookVirtualMemory = origMem
		webhookDiskUsage = origDisk
		webhookLoadAvg = origLoad
	})

	webhookCPUPercent = func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
		return []float64{12.5}, nil
	}
	webhookVirtualMemory = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 41.2}, nil
	}
	webhookDiskUsage = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{UsedPercent: 73.9}, nil
	}
	webhookLoadAvg = func(ctx context.Context) (*load.AvgStat, error) {
		return &load.AvgStat{Load1: 1.1, Load5: 0.8, Load15: 0.5}, nil
	}
}

func newWebhook(t *testing.T, url string) *webhookChannel {
	factory, err := GetChannelFactory("webhook")
	require.NoError(t, err)
	ch := factory().(*webhookChannel)
	require.NoError(t, ch.Configure(map[string]interface{}{"url": url}))
	return ch
}

func TestWebhookEnvelope(t *testing.T) {
	stubHostMetrics(t)

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		captured, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := newWebhook(t, srv.URL)

	e := testEvent(plugin.StatusCritical)
	e.Timestamp = time.Date(2024, 6, 15, 12, 30, 0, 0, time.UTC)
	e.Reading = &plugin.Reading{
		PluginID:   "cpu",
		Value:      92.0,
		Attributes: map[string]interface{}{"value": 92.0},
	}

	res := ch.Send(context.Background(), e)
	require.Equal(t, SendOK, res.Outcome, "send error: %v", res.Err)

	var env Envelope
	require.NoError(t, json.Unmarshal(captured, &env))
	assert.Equal(t, "ServerSentry", env.Source)
	assert.Equal(t, "CPU usage high", env.Title)
	assert.Equal(t, "cpu at 92%", env.Message)
	assert.Equal(t, "web-01", env.Hostname)
	assert.Equal(t, "alert", env.Status)
	assert.Equal(t, "2024-06-15T12:30:00Z", env.Timestamp)
	assert.Equal(t, 12.5, env.CPUUsage)
	assert.Equal(t, "12.5%", env.CPU)
	assert.Equal(t, 41.2, env.MemoryUsage)
	assert.Equal(t, 73.9, env.DiskUsage)
	assert.Equal(t, "1.10, 0.80, 0.50", env.LoadAvg)

	require.Len(t, env.Attachments, 1)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", env.Attachments[0].ContentType)
	assert.NotNil(t, env.Attachments[0].Content)
	assert.NotNil(t, env.Content)
}

func TestWebhookAttachmentsAlwaysPresent(t *testing.T) {
	stubHostMetrics(t)

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ch := newWebhook(t, srv.URL)
	res := ch.Send(context.Background(), testEvent(plugin.StatusOK))
	require.Equal(t, SendOK, res.Outcome)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &raw))
	attachments, ok := raw["attachments"].([]interface{})
	require.True(t, ok, "attachments must be a JSON array")
	assert.NotEmpty(t, attachments)
}

func TestWebhookStatusClassification(t *testing.T) {
	stubHostMetrics(t)

	cases := []struct {
		code int
		want Outcome
	}{
		{http.StatusOK, SendOK},
		{http.StatusNoContent, SendOK},
		{http.StatusTooManyRequests, SendTransient},
		{http.StatusInternalServerError, SendTransient},
		{http.StatusBadGateway, SendTransient},
		{http.StatusNotFound, SendPermanent},
		{http.StatusUnauthorized, SendPermanent},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))
		ch := newWebhook(t, srv.URL)
		res := ch.Send(context.Background(), testEvent(plugin.StatusWarning))
		assert.Equal(t, tc.want, res.Outcome, "status %d", tc.code)
		srv.Close()
	}
}

func TestWebhookTimeoutIsTransient(t *testing.T) {
	stubHostMetrics(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ch := newWebhook(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := ch.Send(ctx, testEvent(plugin.StatusWarning))
	assert.Equal(t, SendTransient, res.Outcome)
}

func TestWebhookCustomHeaders(t *testing.T) {
	stubHostMetrics(t)

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	factory, err := GetChannelFactory("webhook")
	require.NoError(t, err)
	ch := factory().(*webhookChannel)
	require.NoError(t, ch.Configure(map[string]interface{}{
		"url":     srv.URL,
		"headers": map[string]string{"Authorization": "Bearer tok"},
	}))

	res := ch.Send(context.Background(), testEvent(plugin.StatusWarning))
	require.Equal(t, SendOK, res.Outcome)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestWebhookRequiresURL(t *testing.T) {
	factory, err := GetChannelFactory("webhook")
	require.NoError(t, err)
	assert.Error(t, factory().Configure(map[string]interface{}{}))
}

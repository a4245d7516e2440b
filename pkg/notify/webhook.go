// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/serversentry/serversentry/pkg/errs"
)

// envelopeSource identifies this agent in outgoing generic webhooks.
const envelopeSource = "ServerSentry"

// for testing
var (
	webhookCPUPercent    = cpu.PercentWithContext
	webhookVirtualMemory = mem.VirtualMemoryWithContext
	webhookDiskUsage     = disk.UsageWithContext
	webhookLoadAvg       = load.AvgWithContext
)

// Envelope is the generic webhook payload. The attachments array is always
// present, even when empty, so consumers can iterate it for Teams-style
// posting without a nil check.
type Envelope struct {
	Title       string       `json:"title"`
	Message     string       `json:"message"`
	Hostname    string       `json:"hostname"`
	IP          string       `json:"ip"`
	Timestamp   string       `json:"timestamp"`
	Source      string       `json:"source"`
	OS          string       `json:"os"`
	Kernel      string       `json:"kernel"`
	Uptime      string       `json:"uptime"`
	LoadAvg     string       `json:"loadavg"`
	CPU         string       `json:"cpu"`
	CPUUsage    float64      `json:"cpu_usage"`
	Memory      string       `json:"memory"`
	MemoryUsage float64      `json:"memory_usage"`
	Disk        string       `json:"disk"`
	DiskUsage   float64      `json:"disk_usage"`
	Status      string       `json:"status"`
	Content     interface{}  `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is one Teams-style card attachment.
type Attachment struct {
	ContentType string      `json:"contentType"`
	Content     interface{} `json:"content"`
}

type webhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type webhookChannel struct {
	cfg    webhookConfig
	client *http.Client
}

func init() {
	RegisterChannelFactory("webhook", func() Channel {
		return &webhookChannel{client: defaultHTTPClient}
	})
}

func (w *webhookChannel) Info() ChannelMeta {
	return ChannelMeta{Name: "webhook", Description: "Generic JSON webhook"}
}

func (w *webhookChannel) Configure(cfg map[string]interface{}) error {
	if err := mapstructure.Decode(cfg, &w.cfg); err != nil {
		return errs.New(errs.InvalidInput, "webhook", err)
	}
	if w.cfg.URL == "" {
		return errs.Newf(errs.InvalidInput, "webhook", "webhook channel needs a url").
			WithRemedy("set notifications.webhook.url")
	}
	return nil
}

func (w *webhookChannel) Send(ctx context.Context, event *Event) Result {
	env := w.buildEnvelope(ctx, event)
	return w.post(ctx, env)
}

func (w *webhookChannel) post(ctx context.Context, env *Envelope) Result {
	// postJSON sets Content-Type; extra headers ride on a custom client
	// round trip only when configured.
	if len(w.cfg.Headers) == 0 {
		return postJSON(ctx, w.client, w.cfg.URL, env)
	}
	client := *w.client
	client.Transport = headerTransport{base: w.client.Transport, headers: w.cfg.Headers}
	return postJSON(ctx, &client, w.cfg.URL, env)
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	base := h.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (w *webhookChannel) buildEnvelope(ctx context.Context, event *Event) *Envelope {
	env := &Envelope{
		Title:       event.Title,
		Message:     event.Message,
		Hostname:    event.Facts.Hostname,
		IP:          event.Facts.IP,
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
		Source:      envelopeSource,
		OS:          event.Facts.OS,
		Kernel:      event.Facts.Kernel,
		Uptime:      formatUptime(event.Facts.Uptime),
		Status:      string(event.Kind),
		Attachments: []Attachment{},
	}

	// Best effort host metrics; a sampling failure leaves the field zeroed
	// rather than failing the notification.
	if avg, err := webhookLoadAvg(ctx); err == nil {
		env.LoadAvg = fmt.Sprintf("%.2f, %.2f, %.2f", avg.Load1, avg.Load5, avg.Load15)
	}
	if pcts, err := webhookCPUPercent(ctx, 0, false); err == nil && len(pcts) > 0 {
		env.CPUUsage = pcts[0]
		env.CPU = fmt.Sprintf("%.1f%%", pcts[0])
	}
	if vm, err := webhookVirtualMemory(ctx); err == nil {
		env.MemoryUsage = vm.UsedPercent
		env.Memory = fmt.Sprintf("%.1f%%", vm.UsedPercent)
	}
	if du, err := webhookDiskUsage(ctx, "/"); err == nil {
		env.DiskUsage = du.UsedPercent
		env.Disk = fmt.Sprintf("%.1f%%", du.UsedPercent)
	}

	card := adaptiveCard(event)
	env.Content = card
	env.Attachments = append(env.Attachments, Attachment{
		ContentType: "application/vnd.microsoft.card.adaptive",
		Content:     card,
	})
	return env
}

// adaptiveCard renders the event as a minimal Adaptive Card body.
func adaptiveCard(event *Event) map[string]interface{} {
	body := []map[string]interface{}{
		{
			"type":   "TextBlock",
			"size":   "Medium",
			"weight": "Bolder",
			"text":   event.Title,
		},
		{
			"type": "TextBlock",
			"text": event.Message,
			"wrap": true,
		},
	}
	if metrics := event.MetricsLine(); metrics != "" {
		body = append(body, map[string]interface{}{
			"type":     "TextBlock",
			"text":     metrics,
			"wrap":     true,
			"isSubtle": true,
		})
	}
	return map[string]interface{}{
		"type":    "AdaptiveCard",
		"version": "1.4",
		"body":    body,
	}
}

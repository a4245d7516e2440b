// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/serversentry/serversentry/pkg/errs"
)

type discordConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
}

type discordChannel struct {
	cfg    discordConfig
	client *http.Client
}

func init() {
	RegisterChannelFactory("discord", func() Channel {
		return &discordChannel{client: defaultHTTPClient}
	})
}

func (d *discordChannel) Info() ChannelMeta {
	return ChannelMeta{Name: "discord", Description: "Discord incoming webhook (embeds)"}
}

func (d *discordChannel) Configure(cfg map[string]interface{}) error {
	if err := mapstructure.Decode(cfg, &d.cfg); err != nil {
		return errs.New(errs.InvalidInput, "discord", err)
	}
	if d.cfg.WebhookURL == "" {
		return errs.Newf(errs.InvalidInput, "discord", "discord channel needs a webhook url").
			WithRemedy("set notifications.discord.webhook_url")
	}
	if d.cfg.Username == "" {
		d.cfg.Username = "ServerSentry"
	}
	return nil
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func (d *discordChannel) Send(ctx context.Context, event *Event) Result {
	return postJSON(ctx, d.client, d.cfg.WebhookURL, d.buildPayload(event))
}

func (d *discordChannel) buildPayload(event *Event) *discordPayload {
	color, _ := strconv.ParseInt(event.Color(), 16, 32)

	fields := []discordField{
		{Name: "Host", Value: event.Facts.Hostname, Inline: true},
		{Name: "Status", Value: event.Severity.String(), Inline: true},
	}
	if event.Reading != nil {
		keys := make([]string, 0, len(event.Reading.Attributes))
		for k := range event.Reading.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, discordField{
				Name:   k,
				Value:  fmt.Sprintf("%v", event.Reading.Attributes[k]),
				Inline: true,
			})
		}
	}

	return &discordPayload{
		Username: d.cfg.Username,
		Embeds: []discordEmbed{
			{
				Title:       event.Title,
				Description: event.Message,
				Color:       int(color),
				Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
				Fields:      fields,
				Footer:      &discordFooter{Text: string(event.Source) + " / " + event.SourceID},
			},
		},
	}
}

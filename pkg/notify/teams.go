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
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/serversentry/serversentry/pkg/errs"
)

type teamsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

type teamsChannel struct {
	cfg    teamsConfig
	client *http.Client
}

func init() {
	RegisterChannelFactory("teams", func() Channel {
		return &teamsChannel{client: defaultHTTPClient}
	})
}

func (t *teamsChannel) Info() ChannelMeta {
	return ChannelMeta{Name: "teams", Description: "Microsoft Teams incoming webhook"}
}

func (t *teamsChannel) Configure(cfg map[string]interface{}) error {
	if err := mapstructure.Decode(cfg, &t.cfg); err != nil {
		return errs.New(errs.InvalidInput, "teams", err)
	}
	if t.cfg.WebhookURL == "" {
		return errs.Newf(errs.InvalidInput, "teams", "teams channel needs a webhook url").
			WithRemedy("set notifications.teams.webhook_url")
	}
	return nil
}

type messageCard struct {
	Type       string        `json:"@type"`
	Context    string        `json:"@context"`
	ThemeColor string        `json:"themeColor"`
	Summary    string        `json:"summary"`
	Sections   []cardSection `json:"sections"`
}

type cardSection struct {
	ActivityTitle    string     `json:"activityTitle"`
	ActivitySubtitle string     `json:"activitySubtitle,omitempty"`
	Text             string     `json:"text,omitempty"`
	Facts            []cardFact `json:"facts,omitempty"`
	Markdown         bool       `json:"markdown"`
}

type cardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (t *teamsChannel) Send(ctx context.Context, event *Event) Result {
	return postJSON(ctx, t.client, t.cfg.WebhookURL, t.buildCard(event))
}

func (t *teamsChannel) buildCard(event *Event) *messageCard {
	facts := []cardFact{
		{Name: "Host", Value: event.Facts.Hostname},
		{Name: "Status", Value: event.Severity.String()},
		{Name: "Time", Value: event.Timestamp.UTC().Format(time.RFC1123)},
	}
	if event.Reading != nil {
		keys := make([]string, 0, len(event.Reading.Attributes))
		for k := range event.Reading.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			facts = append(facts, cardFact{Name: k, Value: fmt.Sprintf("%v", event.Reading.Attributes[k])})
		}
	}

	return &messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: event.Color(),
		Summary:    event.Title,
		Sections: []cardSection{
			{
				ActivityTitle:    event.Title,
				ActivitySubtitle: string(event.Source) + " / " + event.SourceID,
				Text:             event.Message,
				Facts:            facts,
				Markdown:         true,
			},
		},
	}
}

// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/slack-go/slack"

	"github.com/serversentry/serversentry/pkg/errs"
)

type slackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

type slackChannel struct {
	cfg    slackConfig
	client *http.Client
}

func init() {
	RegisterChannelFactory("slack", func() Channel {
		return &slackChannel{client: defaultHTTPClient}
	})
}

func (s *slackChannel) Info() ChannelMeta {
	return ChannelMeta{Name: "slack", Description: "Slack incoming webhook (Block Kit)"}
}

func (s *slackChannel) Configure(cfg map[string]interface{}) error {
	if err := mapstructure.Decode(cfg, &s.cfg); err != nil {
		return errs.New(errs.InvalidInput, "slack", err)
	}
	if s.cfg.WebhookURL == "" {
		return errs.Newf(errs.InvalidInput, "slack", "slack channel needs a webhook url").
			WithRemedy("set notifications.slack.webhook_url")
	}
	return nil
}

func (s *slackChannel) Send(ctx context.Context, event *Event) Result {
	msg := s.buildMessage(event)
	err := slack.PostWebhookCustomHTTPContext(ctx, s.cfg.WebhookURL, s.client, msg)
	if err == nil {
		return okResult()
	}
	if ctx.Err() != nil {
		return transient(errs.New(errs.Timeout, "slack", ctx.Err()))
	}

	var scErr slack.StatusCodeError
	if errors.As(err, &scErr) {
		switch {
		case scErr.Code == http.StatusRequestTimeout,
			scErr.Code == http.StatusTooManyRequests,
			scErr.Code >= 500:
			return transient(errs.New(errs.Transport, "slack", err))
		default:
			return permanent(errs.New(errs.InvalidInput, "slack", err).
				WithRemedy("check the Slack webhook URL"))
		}
	}
	return transient(errs.New(errs.Transport, "slack", err))
}

func (s *slackChannel) buildMessage(event *Event) *slack.WebhookMessage {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, event.Title, false, false))
	body := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, event.Message, false, false), nil, nil)
	contextLine := fmt.Sprintf("%s | %s | %s",
		event.Facts.Hostname, event.Severity.String(),
		event.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	footer := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, contextLine, false, false))

	blocks := []slack.Block{header, body}
	if metrics := event.MetricsLine(); metrics != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "`"+metrics+"`", false, false), nil, nil))
	}
	blocks = append(blocks, footer)

	msg := &slack.WebhookMessage{
		Channel: s.cfg.Channel,
		Attachments: []slack.Attachment{
			{
				Color:  "#" + event.Color(),
				Blocks: slack.Blocks{BlockSet: blocks},
			},
		},
	}
	return msg
}

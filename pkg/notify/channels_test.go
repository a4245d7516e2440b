// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/plugin"
)

func TestTeamsMessageCard(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	factory, err := GetChannelFactory("teams")
	require.NoError(t, err)
	ch := factory()
	require.NoError(t, ch.Configure(map[string]interface{}{"webhook_url": srv.URL}))

	e := testEvent(plugin.StatusCritical)
	e.Reading = &plugin.Reading{
		PluginID:   "cpu",
		Value:      92.0,
		Attributes: map[string]interface{}{"value": 92.0},
	}
	res := ch.Send(context.Background(), e)
	require.Equal(t, SendOK, res.Outcome)

	var card map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &card))
	assert.Equal(t, "MessageCard", card["@type"])
	assert.Equal(t, "cc0000", card["themeColor"])
	sections := card["sections"].([]interface{})
	require.Len(t, sections, 1)
	facts := sections[0].(map[string]interface{})["facts"].([]interface{})
	assert.GreaterOrEqual(t, len(facts), 3)
}

func TestTeamsRequiresWebhookURL(t *testing.T) {
	factory, err := GetChannelFactory("teams")
	require.NoError(t, err)
	assert.Error(t, factory().Configure(map[string]interface{}{}))
}

func TestSlackBlockKitPayload(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	factory, err := GetChannelFactory("slack")
	require.NoError(t, err)
	ch := factory()
	require.NoError(t, ch.Configure(map[string]interface{}{
		"webhook_url": srv.URL,
		"channel":     "#alerts",
	}))

	res := ch.Send(context.Background(), testEvent(plugin.StatusWarning))
	require.Equal(t, SendOK, res.Outcome, "send error: %v", res.Err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &payload))
	assert.Equal(t, "#alerts", payload["channel"])
	attachments := payload["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "#ffaa00", att["color"])
	blocks := att["blocks"].([]interface{})
	require.NotEmpty(t, blocks)
	assert.Equal(t, "header", blocks[0].(map[string]interface{})["type"])
}

func TestSlackServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	factory, err := GetChannelFactory("slack")
	require.NoError(t, err)
	ch := factory()
	require.NoError(t, ch.Configure(map[string]interface{}{"webhook_url": srv.URL}))

	res := ch.Send(context.Background(), testEvent(plugin.StatusWarning))
	assert.Equal(t, SendTransient, res.Outcome)
}

func TestDiscordEmbed(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	factory, err := GetChannelFactory("discord")
	require.NoError(t, err)
	ch := factory()
	require.NoError(t, ch.Configure(map[string]interface{}{"webhook_url": srv.URL}))

	res := ch.Send(context.Background(), testEvent(plugin.StatusCritical))
	require.Equal(t, SendOK, res.Outcome)

	var payload discordPayload
	require.NoError(t, json.Unmarshal(captured, &payload))
	assert.Equal(t, "ServerSentry", payload.Username)
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "CPU usage high", payload.Embeds[0].Title)
	assert.Equal(t, 0xcc0000, payload.Embeds[0].Color)
}

func TestEmailMessageBuild(t *testing.T) {
	ch := &emailChannel{cfg: emailConfig{
		From: "sentry@example.com",
		To:   []string{"ops@example.com", "oncall@example.com"},
	}}

	e := testEvent(plugin.StatusWarning)
	msg := string(ch.buildMessage(e))

	assert.Contains(t, msg, "Subject: [WARNING] CPU usage high")
	assert.Contains(t, msg, "To: ops@example.com, oncall@example.com")
	assert.Contains(t, msg, "Content-Type: multipart/alternative")
	assert.Contains(t, msg, "text/plain")
	assert.Contains(t, msg, "text/html")
	assert.True(t, strings.HasSuffix(msg, "--"+emailBoundary+"--\r\n"))
}

func TestEmailDeliveryClassification(t *testing.T) {
	ch := &emailChannel{cfg: emailConfig{
		SMTPServer: "smtp.example.com",
		From:       "sentry@example.com",
		To:         []string{"ops@example.com"},
	}}

	ch.deliver = func(ctx context.Context, msg []byte) error { return nil }
	assert.Equal(t, SendOK, ch.Send(context.Background(), testEvent(plugin.StatusOK)).Outcome)

	ch.deliver = func(ctx context.Context, msg []byte) error {
		return errs.New(errs.Transport, "smtp", errors.New("connection refused"))
	}
	assert.Equal(t, SendTransient, ch.Send(context.Background(), testEvent(plugin.StatusOK)).Outcome)

	ch.deliver = func(ctx context.Context, msg []byte) error {
		return errs.New(errs.PermissionDenied, "smtp", errors.New("bad credentials"))
	}
	assert.Equal(t, SendPermanent, ch.Send(context.Background(), testEvent(plugin.StatusOK)).Outcome)
}

func TestEmailConfigValidation(t *testing.T) {
	factory, err := GetChannelFactory("email")
	require.NoError(t, err)

	assert.Error(t, factory().Configure(map[string]interface{}{}))
	assert.Error(t, factory().Configure(map[string]interface{}{
		"smtp_server": "smtp.example.com",
	}))
	assert.NoError(t, factory().Configure(map[string]interface{}{
		"smtp_server": "smtp.example.com",
		"from":        "a@example.com",
		"to":          []string{"b@example.com"},
	}))
}

func TestUnknownChannelFactory(t *testing.T) {
	_, err := GetChannelFactory("pager")
	assert.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

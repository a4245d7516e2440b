// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/serversentry/serversentry/pkg/errs"
)

// defaultHTTPClient is shared by the JSON-posting channels. Per-attempt
// deadlines come from the dispatcher's context; this timeout is a backstop.
var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// postJSON marshals payload, posts it to url and classifies the response.
// 2xx is success; 408, 429 and 5xx are worth retrying; everything else is
// permanent.
func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return permanent(errs.New(errs.Internal, url, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return permanent(errs.New(errs.InvalidInput, url, err).
			WithRemedy("check the channel's configured URL"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return transient(errs.New(errs.Timeout, url, ctx.Err()))
		}
		return transient(errs.New(errs.Transport, url, err))
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return okResult()
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return transient(errs.Newf(errs.Transport, url, "server returned %s", resp.Status))
	default:
		return permanent(errs.Newf(errs.InvalidInput, url, "server returned %s", resp.Status).
			WithRemedy("check the webhook URL and payload permissions"))
	}
}

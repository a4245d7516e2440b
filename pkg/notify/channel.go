// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/serversentry/serversentry/pkg/errs"
)

// Outcome is the delivery verdict for one send attempt.
type Outcome int

const (
	// SendOK means the channel accepted the event.
	SendOK Outcome = iota
	// SendTransient means the attempt failed but a retry may succeed
	// (timeouts, 5xx, connection resets).
	SendTransient
	// SendPermanent means retrying is pointless (bad config, 4xx).
	SendPermanent
)

// Result couples an outcome with the error that produced it.
type Result struct {
	Outcome Outcome
	Err     error
}

func okResult() Result {
	return Result{Outcome: SendOK}
}

func transient(err error) Result {
	return Result{Outcome: SendTransient, Err: err}
}

func permanent(err error) Result {
	return Result{Outcome: SendPermanent, Err: err}
}

// ChannelMeta describes a notification channel.
type ChannelMeta struct {
	Name        string
	Description string
}

// Channel delivers rendered events to one destination kind.
type Channel interface {
	// Info returns the channel's metadata.
	Info() ChannelMeta

	// Configure applies the channel's section of the configuration. It is
	// called once before the first Send.
	Configure(cfg map[string]interface{}) error

	// Send delivers one event. It must respect ctx cancellation; the
	// dispatcher bounds each attempt with a timeout.
	Send(ctx context.Context, event *Event) Result
}

// ChannelFactory builds an unconfigured channel.
type ChannelFactory func() Channel

var (
	channelCatalog   = make(map[string]ChannelFactory)
	channelCatalogMu sync.RWMutex
)

// RegisterChannelFactory adds a channel constructor to the catalogue. Called
// from init in each channel file.
func RegisterChannelFactory(name string, factory ChannelFactory) {
	channelCatalogMu.Lock()
	defer channelCatalogMu.Unlock()
	if _, dup := channelCatalog[name]; dup {
		panic(fmt.Sprintf("notify: channel factory %q registered twice", name))
	}
	channelCatalog[name] = factory
}

// GetChannelFactory looks a channel constructor up by name.
func GetChannelFactory(name string) (ChannelFactory, error) {
	channelCatalogMu.RLock()
	defer channelCatalogMu.RUnlock()
	factory, ok := channelCatalog[name]
	if !ok {
		return nil, errs.Newf(errs.NotFound, name, "unknown notification channel %q", name).
			WithRemedy("valid channels: teams, slack, discord, email, webhook")
	}
	return factory, nil
}
